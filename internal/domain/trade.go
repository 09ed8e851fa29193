package domain

import "time"

// Trade represents a single simulated position tracked by the ledger.
// Once opened, a Trade is owned exclusively by the ledger: strategies and
// reporting only ever see snapshots.
type Trade struct {
	ID            int64   // Unique identifier, allocated atomically at open
	Symbol        string  // Trading symbol (e.g., "ETHUSDT")
	IsLong        bool    // Direction of the position
	Signal        string  // Tag identifying the originating strategy
	EntryPrice    float64 // Price at which the position was entered
	InitialMargin float64 // Capital reserved from the wallet at open
	Leverage      int     // Leverage multiplier applied to P&L

	TakeProfitPrice float64 // Price level that triggers a profitable close
	StopLossPrice   float64 // Price level that triggers a protective close
	TrailingActive  bool    // True once the stop has been tightened by the trailing rule

	EntryTime time.Time // Source-data timestamp of the signal candle (not wall clock)
	ExitTime  time.Time // Zero value while open; set exactly once at close
	ExitPrice float64   // 0 while open

	Profit      float64     // Realized P&L, set exactly once at close
	Status      TradeStatus // open or closed
	CloseReason CloseReason // Why the trade was closed (empty while open)
}

// IsOpen reports whether the trade is still in the active set.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// Direction returns the side of the trade as a Direction value.
func (t *Trade) Direction() Direction {
	if t.IsLong {
		return Long
	}
	return Short
}

// Duration returns how long the position was held. Meaningful only after
// the trade has closed.
func (t *Trade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}
