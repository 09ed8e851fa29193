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
	Register("ma-crossover", func(deps Deps) (ports.Strategy, error) {
		return NewMACrossover(deps)
	})
}

// MACrossover opens a long when the short moving average crosses above the
// long one on the signal candle, and a short on the opposite cross. One
// instance serves all symbols; the last-triggered candle is tracked per
// symbol so repeated polls of the same candle do not re-open.
type MACrossover struct {
	logger   ports.Logger
	executor ports.TradeExecutor
	market   ports.MarketDataProvider
	shortMA  *indicators.MovingAverage
	longMA   *indicators.MovingAverage

	mu        sync.Mutex
	lastEntry map[string]time.Time // symbol -> close time of the last acted-on candle
}

// NewMACrossover creates the MA crossover strategy.
func NewMACrossover(deps Deps) (*MACrossover, error) {
	if deps.Logger == nil || deps.Executor == nil || deps.Market == nil {
		return nil, fmt.Errorf("missing required dependencies for MACrossover")
	}
	if deps.Config.ShortMAPeriod <= 0 || deps.Config.LongMAPeriod <= deps.Config.ShortMAPeriod {
		return nil, fmt.Errorf("MA periods must be positive and short < long: %w", ports.ErrConfigurationError)
	}
	return &MACrossover{
		logger:   deps.Logger,
		executor: deps.Executor,
		market:   deps.Market,
		shortMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: deps.Config.ShortMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		longMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: deps.Config.LongMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		lastEntry: make(map[string]time.Time),
	}, nil
}

// Name returns the registry tag.
func (s *MACrossover) Name() string { return "ma-crossover" }

// RequiredDataPoints returns the minimum candle count for a decision. The
// extra candles cover the previous evaluation point and the closed-candle
// policy offset.
func (s *MACrossover) RequiredDataPoints() int {
	return s.longMA.RequiredDataPoints() + 3
}

// Run evaluates one symbol in live mode, fetching its own candles.
func (s *MACrossover) Run(ctx context.Context, symbol, interval string) error {
	klines, err := s.market.FetchRecentCandles(ctx, symbol, interval, s.RequiredDataPoints())
	if err != nil {
		return fmt.Errorf("%s: fetching candles for %s: %w", s.Name(), symbol, err)
	}
	return s.evaluate(ctx, symbol, klines)
}

// RunWithSnapshot evaluates one symbol from the shared per-cycle snapshot.
func (s *MACrossover) RunWithSnapshot(ctx context.Context, symbol, interval string, snap *ports.MarketSnapshot) error {
	klines := snap.Candles[symbol]
	if len(klines) == 0 {
		s.logger.Debug(ctx, s.Name()+": symbol missing from snapshot, fetching directly", map[string]interface{}{"symbol": symbol})
		return s.Run(ctx, symbol, interval)
	}
	return s.evaluate(ctx, symbol, klines)
}

// RunOnHistoricalData replays the full candle sequence, advancing simulated
// time one candle at a time and driving the ledger's close-check at every
// step.
func (s *MACrossover) RunOnHistoricalData(ctx context.Context, symbol string, klines []*domain.Kline) error {
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

func (s *MACrossover) evaluate(ctx context.Context, symbol string, klines []*domain.Kline) error {
	idx := domain.SignalIndex(len(klines))
	if idx < s.longMA.RequiredDataPoints() {
		return fmt.Errorf("%s: not enough candles (%d) for %s", s.Name(), len(klines), symbol)
	}
	signal := klines[idx]

	shortNow, err := s.shortMA.Calculate(ctx, klines[:idx+1])
	if err != nil {
		return err
	}
	longNow, err := s.longMA.Calculate(ctx, klines[:idx+1])
	if err != nil {
		return err
	}
	shortPrev, err := s.shortMA.Calculate(ctx, klines[:idx])
	if err != nil {
		return err
	}
	longPrev, err := s.longMA.Calculate(ctx, klines[:idx])
	if err != nil {
		return err
	}

	crossedUp := shortPrev <= longPrev && shortNow > longNow
	crossedDown := shortPrev >= longPrev && shortNow < longNow
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

// claimCandle marks the signal candle as acted on for the symbol. Returns
// false when this candle already triggered an entry.
func (s *MACrossover) claimCandle(symbol string, closeTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastEntry[symbol]; ok && !closeTime.After(last) {
		return false
	}
	s.lastEntry[symbol] = closeTime
	return true
}
