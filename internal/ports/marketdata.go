package ports

import (
	"context"
	"time"

	"cryptoPaperTrader/internal/domain"
)

// MarketSnapshot is one per-cycle batch of recent candle data covering all
// configured symbols. Snapshot-aware strategies consume it instead of
// issuing their own fetch, reducing per-cycle network calls from
// O(symbols x strategies) to O(symbols). Symbols whose fetch failed are
// simply absent from Candles.
type MarketSnapshot struct {
	Interval  string
	Candles   map[string][]*domain.Kline
	FetchedAt time.Time
}

// MarketDataProvider defines the interface for fetching candle and price
// data. This abstraction decouples the orchestrator and strategies from the
// concrete exchange REST client.
type MarketDataProvider interface {
	// FetchCurrentPrices retrieves the latest price for each requested symbol.
	// Symbols that could not be quoted are absent from the result.
	FetchCurrentPrices(ctx context.Context, symbols []string) (map[string]float64, error)

	// FetchRecentCandles retrieves the most recent candles for one symbol.
	FetchRecentCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error)

	// FetchHistoricalCandles retrieves the full ordered candle sequence for a
	// symbol between start and end, paginating as needed.
	FetchHistoricalCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error)

	// FetchSnapshot retrieves one batch of recent candles for all symbols.
	// A failing symbol is logged and omitted; it never fails the whole batch.
	FetchSnapshot(ctx context.Context, symbols []string, interval string, limit int) (*MarketSnapshot, error)
}
