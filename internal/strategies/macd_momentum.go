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
	Register("macd-momentum", func(deps Deps) (ports.Strategy, error) {
		return NewMACDMomentum(deps)
	})
}

// MACDMomentum opens in the direction of a MACD/signal-line cross. Unlike
// the snapshot-aware strategies it deliberately fetches its own candle
// window through the market provider, exercising the self-fetching path.
type MACDMomentum struct {
	logger   ports.Logger
	executor ports.TradeExecutor
	market   ports.MarketDataProvider
	macd     *indicators.MACD

	mu        sync.Mutex
	lastEntry map[string]time.Time
}

// NewMACDMomentum creates the MACD momentum strategy.
func NewMACDMomentum(deps Deps) (*MACDMomentum, error) {
	if deps.Logger == nil || deps.Executor == nil || deps.Market == nil {
		return nil, fmt.Errorf("missing required dependencies for MACDMomentum")
	}
	cfg := deps.Config
	if cfg.MACDFastPeriod <= 0 || cfg.MACDSlowPeriod <= cfg.MACDFastPeriod || cfg.MACDSignalPeriod <= 0 {
		return nil, fmt.Errorf("invalid MACD parameters: %w", ports.ErrConfigurationError)
	}
	return &MACDMomentum{
		logger:   deps.Logger,
		executor: deps.Executor,
		market:   deps.Market,
		macd: indicators.NewMACD(indicators.MACDConfig{
			FastPeriod:   cfg.MACDFastPeriod,
			SlowPeriod:   cfg.MACDSlowPeriod,
			SignalPeriod: cfg.MACDSignalPeriod,
		}),
		lastEntry: make(map[string]time.Time),
	}, nil
}

// Name returns the registry tag.
func (s *MACDMomentum) Name() string { return "macd-momentum" }

// RequiredDataPoints returns the minimum candle count for a decision.
func (s *MACDMomentum) RequiredDataPoints() int {
	return s.macd.RequiredDataPoints() + 3
}

// Run evaluates one symbol in live mode, fetching its own candles.
func (s *MACDMomentum) Run(ctx context.Context, symbol, interval string) error {
	klines, err := s.market.FetchRecentCandles(ctx, symbol, interval, s.RequiredDataPoints())
	if err != nil {
		return fmt.Errorf("%s: fetching candles for %s: %w", s.Name(), symbol, err)
	}
	return s.evaluate(ctx, symbol, klines)
}

// RunOnHistoricalData replays the full candle sequence.
func (s *MACDMomentum) RunOnHistoricalData(ctx context.Context, symbol string, klines []*domain.Kline) error {
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

func (s *MACDMomentum) evaluate(ctx context.Context, symbol string, klines []*domain.Kline) error {
	idx := domain.SignalIndex(len(klines))
	if idx < s.macd.RequiredDataPoints() {
		return fmt.Errorf("%s: not enough candles (%d) for %s", s.Name(), len(klines), symbol)
	}
	signal := klines[idx]

	now, err := s.macd.CalculateValue(ctx, klines[:idx+1])
	if err != nil {
		return err
	}
	prev, err := s.macd.CalculateValue(ctx, klines[:idx])
	if err != nil {
		return err
	}

	crossedUp := prev.Histogram <= 0 && now.Histogram > 0
	crossedDown := prev.Histogram >= 0 && now.Histogram < 0
	if !crossedUp && !crossedDown {
		return nil
	}
	if !s.claimCandle(symbol, signal.CloseTime) {
		return nil
	}

	var placeErr error
	if crossedUp {
		_, placeErr = s.executor.PlaceLongOrder(ctx, symbol, signal.Close, s.Name(), signal.CloseTime, 0, 0)
	} else {
		_, placeErr = s.executor.PlaceShortOrder(ctx, symbol, signal.Close, s.Name(), signal.CloseTime, 0, 0)
	}
	if placeErr != nil {
		return fmt.Errorf("%s: placing order for %s: %w", s.Name(), symbol, placeErr)
	}
	return nil
}

func (s *MACDMomentum) claimCandle(symbol string, closeTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastEntry[symbol]; ok && !closeTime.After(last) {
		return false
	}
	s.lastEntry[symbol] = closeTime
	return true
}
