package ports

import (
	"context"
	"time"

	"cryptoPaperTrader/internal/domain"
)

// TradeExecutor is the core-facing contract exposed to strategy
// collaborators. It is implemented by the trade ledger; strategies never
// mutate trades directly.
//
// takeProfit and stopLoss are explicit trigger-price overrides; pass 0 to
// derive them from the configured default percentages adjusted for
// leverage. sourceTime is the timestamp of the data point that triggered
// the signal, not wall-clock time; a zero value falls back to the current
// time (live mode only).
type TradeExecutor interface {
	PlaceLongOrder(ctx context.Context, symbol string, price float64, signal string, sourceTime time.Time, takeProfit, stopLoss float64) (*domain.Trade, error)
	PlaceShortOrder(ctx context.Context, symbol string, price float64, signal string, sourceTime time.Time, takeProfit, stopLoss float64) (*domain.Trade, error)

	// CheckAndCloseTrades evaluates every active trade whose symbol appears
	// in prices against stop-loss, take-profit and trailing-stop rules, and
	// returns the trades closed by this call. Idempotent with respect to
	// already-closed trades.
	CheckAndCloseTrades(ctx context.Context, prices map[string]float64, sourceTime time.Time) []*domain.Trade

	// GetActiveTrades returns a point-in-time snapshot of the active set.
	GetActiveTrades() []*domain.Trade
}
