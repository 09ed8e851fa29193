package strategies

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/indicators"
	"cryptoPaperTrader/internal/ports"
)

func init() {
	Register("rsi-reversal", func(deps Deps) (ports.Strategy, error) {
		return NewRSIReversal(deps)
	})
}

// RSIReversal opens a long when RSI crosses up out of the oversold zone and
// a short when it crosses down out of the overbought zone. Acting on the
// exit of the zone rather than its depth avoids stacking entries while the
// market stays pinned.
type RSIReversal struct {
	logger   ports.Logger
	executor ports.TradeExecutor
	market   ports.MarketDataProvider
	rsi      *indicators.RSI

	mu        sync.Mutex
	lastEntry map[string]time.Time
}

// NewRSIReversal creates the RSI reversal strategy.
func NewRSIReversal(deps Deps) (*RSIReversal, error) {
	if deps.Logger == nil || deps.Executor == nil || deps.Market == nil {
		return nil, fmt.Errorf("missing required dependencies for RSIReversal")
	}
	cfg := deps.Config
	if cfg.RSIPeriod <= 0 || cfg.RSIOverbought <= cfg.RSIOversold {
		return nil, fmt.Errorf("invalid RSI parameters: %w", ports.ErrConfigurationError)
	}
	return &RSIReversal{
		logger:   deps.Logger,
		executor: deps.Executor,
		market:   deps.Market,
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		}),
		lastEntry: make(map[string]time.Time),
	}, nil
}

// Name returns the registry tag.
func (s *RSIReversal) Name() string { return "rsi-reversal" }

// RequiredDataPoints returns the minimum candle count for a decision.
func (s *RSIReversal) RequiredDataPoints() int {
	return s.rsi.RequiredDataPoints()*2 + 3
}

// Run evaluates one symbol in live mode, fetching its own candles.
func (s *RSIReversal) Run(ctx context.Context, symbol, interval string) error {
	klines, err := s.market.FetchRecentCandles(ctx, symbol, interval, s.RequiredDataPoints())
	if err != nil {
		return fmt.Errorf("%s: fetching candles for %s: %w", s.Name(), symbol, err)
	}
	return s.evaluate(ctx, symbol, klines)
}

// RunWithSnapshot evaluates one symbol from the shared per-cycle snapshot.
func (s *RSIReversal) RunWithSnapshot(ctx context.Context, symbol, interval string, snap *ports.MarketSnapshot) error {
	klines := snap.Candles[symbol]
	if len(klines) == 0 {
		s.logger.Debug(ctx, s.Name()+": symbol missing from snapshot, fetching directly", map[string]interface{}{"symbol": symbol})
		return s.Run(ctx, symbol, interval)
	}
	return s.evaluate(ctx, symbol, klines)
}

// RunOnHistoricalData replays the full candle sequence.
func (s *RSIReversal) RunOnHistoricalData(ctx context.Context, symbol string, klines []*domain.Kline) error {
	for i := s.RequiredDataPoints(); i <= len(klines); i++ {
		window := klines[:i]
		if err := s.evaluate(ctx, symbol, window); err != nil {
			return err
		}
		current := window[len(window)-1]
		s.executor.CheckAndCloseTrades(ctx, map[string]float64{symbol: current.Close}, current.CloseTime)
	}
	return nil
}

func (s *RSIReversal) evaluate(ctx context.Context, symbol string, klines []*domain.Kline) error {
	idx := domain.SignalIndex(len(klines))
	if idx <= s.rsi.RequiredDataPoints() {
		return fmt.Errorf("%s: not enough candles (%d) for %s", s.Name(), len(klines), symbol)
	}
	signal := klines[idx]

	now, err := s.rsi.Calculate(ctx, klines[:idx+1])
	if err != nil {
		return err
	}
	prev, err := s.rsi.Calculate(ctx, klines[:idx])
	if err != nil {
		return err
	}

	exitedOversold := s.rsi.IsOversold(prev) && !s.rsi.IsOversold(now)
	exitedOverbought := s.rsi.IsOverbought(prev) && !s.rsi.IsOverbought(now)
	if !exitedOversold && !exitedOverbought {
		return nil
	}
	if !s.claimCandle(symbol, signal.CloseTime) {
		return nil
	}

	var placeErr error
	if exitedOversold {
		_, placeErr = s.executor.PlaceLongOrder(ctx, symbol, signal.Close, s.Name(), signal.CloseTime, 0, 0)
	} else {
		_, placeErr = s.executor.PlaceShortOrder(ctx, symbol, signal.Close, s.Name(), signal.CloseTime, 0, 0)
	}
	if placeErr != nil {
		return fmt.Errorf("%s: placing order for %s: %w", s.Name(), symbol, placeErr)
	}
	return nil
}

func (s *RSIReversal) claimCandle(symbol string, closeTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastEntry[symbol]; ok && !closeTime.After(last) {
		return false
	}
	s.lastEntry[symbol] = closeTime
	return true
}
