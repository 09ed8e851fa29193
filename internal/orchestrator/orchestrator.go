package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
)

// TradeLedger is the ledger surface the orchestrator drives: the executor
// contract strategies use plus forced liquidation for shutdown and
// end-of-backtest flushes.
type TradeLedger interface {
	ports.TradeExecutor
	CloseAllActiveTrades(ctx context.Context, priceOverride float64, timeOverride time.Time) []*domain.Trade
}

// Config holds the orchestrator dependencies and run parameters.
type Config struct {
	Logger     ports.Logger
	Market     ports.MarketDataProvider
	Ledger     TradeLedger
	Report     ports.ReportSink // optional
	Symbols    []string
	Interval   string
	Strategies []ports.Strategy

	// PrefetchSnapshot fetches one multi-symbol snapshot per cycle and
	// shares it with snapshot-aware strategies, cutting per-cycle fetches
	// from symbols*strategies to one.
	PrefetchSnapshot bool
}

// Orchestrator fans out strategy evaluation across symbols and drives the
// ledger's close-checks, in live polling mode or historical replay.
type Orchestrator struct {
	logger     ports.Logger
	market     ports.MarketDataProvider
	ledger     TradeLedger
	report     ports.ReportSink
	symbols    []string
	interval   string
	cadence    time.Duration
	strategies []ports.Strategy
	prefetch   bool
	depth      int
}

// New validates the configuration and creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	const op = "orchestrator.New"
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%s: logger is required: %w", op, ports.ErrConfigurationError)
	}
	if cfg.Market == nil {
		return nil, fmt.Errorf("%s: market data provider is required: %w", op, ports.ErrConfigurationError)
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("%s: ledger is required: %w", op, ports.ErrConfigurationError)
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("%s: at least one symbol is required: %w", op, ports.ErrConfigurationError)
	}
	if len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("%s: at least one strategy is required: %w", op, ports.ErrConfigurationError)
	}
	cadence, err := IntervalDuration(cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	depth := 0
	for _, s := range cfg.Strategies {
		if n := s.RequiredDataPoints(); n > depth {
			depth = n
		}
	}

	return &Orchestrator{
		logger:     cfg.Logger,
		market:     cfg.Market,
		ledger:     cfg.Ledger,
		report:     cfg.Report,
		symbols:    cfg.Symbols,
		interval:   cfg.Interval,
		cadence:    cadence,
		strategies: cfg.Strategies,
		prefetch:   cfg.PrefetchSnapshot,
		depth:      depth,
	}, nil
}

// Run polls on the configured cadence until the context is canceled, then
// liquidates every open position and flushes the report. Liquidation runs
// to completion regardless of why the context ended.
func (o *Orchestrator) Run(ctx context.Context) error {
	const op = "Orchestrator.Run"
	o.logger.Info(ctx, op+": starting live loop", map[string]interface{}{
		"symbols":    o.symbols,
		"strategies": len(o.strategies),
		"interval":   o.interval,
		"prefetch":   o.prefetch,
	})

	ticker := time.NewTicker(o.cadence)
	defer ticker.Stop()

	o.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case <-ticker.C:
			o.runCycle(ctx)
		}
	}
}

// runCycle executes one polling cycle: optional snapshot prefetch, fan-out
// of one task per (symbol, strategy), then a single close-check against the
// latest prices. A failing task is logged and never aborts its siblings.
func (o *Orchestrator) runCycle(ctx context.Context) {
	const op = "Orchestrator.runCycle"
	if ctx.Err() != nil {
		return
	}

	var snap *ports.MarketSnapshot
	if o.prefetch {
		s, err := o.market.FetchSnapshot(ctx, o.symbols, o.interval, o.depth)
		if err != nil {
			o.logger.Warn(ctx, op+": snapshot fetch failed, strategies will fetch directly", map[string]interface{}{"error": err.Error()})
		} else {
			snap = s
		}
	}

	var wg sync.WaitGroup
	for _, symbol := range o.symbols {
		for _, strat := range o.strategies {
			wg.Add(1)
			go func(symbol string, strat ports.Strategy) {
				defer wg.Done()
				o.runTask(ctx, symbol, strat, snap)
			}(symbol, strat)
		}
	}
	wg.Wait()

	prices, err := o.market.FetchCurrentPrices(ctx, o.symbols)
	if err != nil {
		o.logger.Warn(ctx, op+": price fetch failed, skipping close-check this cycle", map[string]interface{}{"error": err.Error()})
		return
	}
	if closed := o.ledger.CheckAndCloseTrades(ctx, prices, time.Time{}); len(closed) > 0 {
		o.logger.Info(ctx, op+": trades closed", map[string]interface{}{"count": len(closed)})
	}
}

// runTask evaluates one (symbol, strategy) pair, isolating panics and
// errors to this task.
func (o *Orchestrator) runTask(ctx context.Context, symbol string, strat ports.Strategy, snap *ports.MarketSnapshot) {
	const op = "Orchestrator.runTask"
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(ctx, fmt.Errorf("%w: panic: %v", ports.ErrStrategyFault, r), op+": strategy panicked", map[string]interface{}{
				"strategy": strat.Name(),
				"symbol":   symbol,
			})
		}
	}()

	var err error
	if sa, ok := strat.(ports.SnapshotAware); ok && snap != nil {
		err = sa.RunWithSnapshot(ctx, symbol, o.interval, snap)
	} else {
		err = strat.Run(ctx, symbol, o.interval)
	}
	if err != nil {
		o.logger.Warn(ctx, op+": strategy evaluation failed", map[string]interface{}{
			"strategy": strat.Name(),
			"symbol":   symbol,
			"error":    err.Error(),
		})
	}
}

func (o *Orchestrator) shutdown() {
	const op = "Orchestrator.shutdown"
	ctx := context.Background()
	closed := o.ledger.CloseAllActiveTrades(ctx, 0, time.Time{})
	o.logger.Info(ctx, op+": liquidated open positions", map[string]interface{}{"count": len(closed)})
	if o.report != nil {
		if err := o.report.Flush(); err != nil {
			o.logger.Error(ctx, err, op+": flushing report")
		}
	}
}

// RunBacktest replays one ordered candle sequence per symbol through every
// strategy. Each strategy receives the entire sequence once and iterates
// internally; after its pass over a symbol the orchestrator forces
// liquidation at the final candle's close, so every run ends with zero open
// positions and a reproducible wallet balance. An error aborts that
// strategy's pass but the liquidation still happens.
func (o *Orchestrator) RunBacktest(ctx context.Context, series map[string][]*domain.Kline) error {
	const op = "Orchestrator.RunBacktest"

	symbols := o.backtestSymbols(series)
	if len(symbols) == 0 {
		return fmt.Errorf("%s: no candle data for any configured symbol: %w", op, ports.ErrDataUnavailable)
	}

	for _, strat := range o.strategies {
		runner, ok := strat.(ports.HistoricalRunner)
		if !ok {
			o.logger.Warn(ctx, op+": strategy cannot replay historical data, skipping", map[string]interface{}{"strategy": strat.Name()})
			continue
		}
		for _, symbol := range symbols {
			klines := series[symbol]
			last := klines[len(klines)-1]

			err := o.replay(ctx, runner, symbol, klines)
			closed := o.ledger.CloseAllActiveTrades(ctx, last.Close, last.CloseTime)
			if err != nil {
				o.logger.Error(ctx, err, op+": strategy pass aborted, positions liquidated", map[string]interface{}{
					"strategy":   strat.Name(),
					"symbol":     symbol,
					"liquidated": len(closed),
				})
				break
			}
			o.logger.Info(ctx, op+": strategy pass complete", map[string]interface{}{
				"strategy":   strat.Name(),
				"symbol":     symbol,
				"candles":    len(klines),
				"liquidated": len(closed),
			})
		}
	}

	if o.report != nil {
		if err := o.report.Flush(); err != nil {
			return fmt.Errorf("%s: flushing report: %w", op, err)
		}
	}
	return nil
}

// replay runs one strategy pass with panic isolation.
func (o *Orchestrator) replay(ctx context.Context, runner ports.HistoricalRunner, symbol string, klines []*domain.Kline) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ports.ErrStrategyFault, r)
		}
	}()
	return runner.RunOnHistoricalData(ctx, symbol, klines)
}

// backtestSymbols returns the configured symbols that have candle data, in
// configured order, so repeated runs replay in the same sequence.
func (o *Orchestrator) backtestSymbols(series map[string][]*domain.Kline) []string {
	out := make([]string, 0, len(series))
	seen := make(map[string]bool, len(o.symbols))
	for _, s := range o.symbols {
		if len(series[s]) > 0 {
			out = append(out, s)
			seen[s] = true
		}
	}
	// Data for symbols outside the configured roster still replays, after
	// the configured ones.
	extras := make([]string, 0)
	for s, k := range series {
		if !seen[s] && len(k) > 0 {
			extras = append(extras, s)
		}
	}
	sort.Strings(extras)
	return append(out, extras...)
}

// IntervalDuration converts a candle interval tag like "1m", "15m", "4h" or
// "1d" into its duration.
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q: %w", interval, ports.ErrConfigurationError)
	}
	unit := interval[len(interval)-1]
	var n int
	if _, err := fmt.Sscanf(interval[:len(interval)-1], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q: %w", interval, ports.ErrConfigurationError)
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid interval unit %q: %w", interval, ports.ErrConfigurationError)
	}
}
