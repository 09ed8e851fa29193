package ports

import (
	"context"

	"cryptoPaperTrader/internal/domain"
)

// SymbolStats is one row of the per-symbol ranking maintained alongside the
// trade history.
type SymbolStats struct {
	Symbol      string
	TotalProfit float64
	Trades      int
	Wins        int
}

// TradeHistoryRepository defines the interface for persisting closed trades
// and the per-symbol profit ranking derived from them.
type TradeHistoryRepository interface {
	// RecordClosedTrade saves a closed trade and updates the symbol ranking.
	RecordClosedTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindBySymbol retrieves the most recent closed trades for a symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	// TotalProfit returns the sum of realized P&L across all recorded trades.
	TotalProfit(ctx context.Context) (float64, error)
	// SymbolRanking returns symbols ordered by total realized profit, best first.
	SymbolRanking(ctx context.Context, limit int) ([]*SymbolStats, error)
}
