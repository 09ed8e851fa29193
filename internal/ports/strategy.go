package ports

import (
	"context"

	"cryptoPaperTrader/internal/domain"
)

// Strategy defines the interface for signal-detection strategies. One
// strategy instance serves all symbols; any per-symbol state must be held
// in an explicit per-symbol context inside the strategy, never in globals.
type Strategy interface {
	// Name returns the registry tag identifying the strategy.
	Name() string

	// RequiredDataPoints returns the minimum number of klines needed for the
	// strategy's indicator calculations.
	RequiredDataPoints() int

	// Run evaluates one symbol in live mode, fetching its own market data.
	Run(ctx context.Context, symbol, interval string) error
}

// SnapshotAware is an optional capability: strategies implementing it
// consume the orchestrator's shared per-cycle snapshot instead of issuing
// their own fetch.
type SnapshotAware interface {
	Strategy

	// RunWithSnapshot evaluates one symbol using the shared snapshot.
	RunWithSnapshot(ctx context.Context, symbol, interval string, snap *MarketSnapshot) error
}

// HistoricalRunner is the backtest capability: the strategy is invoked once
// with the entire ordered candle sequence for a symbol and is responsible
// for internally iterating and calling the ledger as simulated time
// advances.
type HistoricalRunner interface {
	RunOnHistoricalData(ctx context.Context, symbol string, klines []*domain.Kline) error
}
