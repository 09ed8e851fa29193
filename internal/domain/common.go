package domain

// Direction represents the side of a simulated position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// TradeStatus represents the lifecycle state of a trade.
// A trade moves from open to closed exactly once and never back.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "open"
	StatusClosed TradeStatus = "closed"
)

// CloseReason indicates why a trade was closed.
type CloseReason string

const (
	CloseReasonStopLoss     CloseReason = "SL"
	CloseReasonTakeProfit   CloseReason = "TP"
	CloseReasonTrailingStop CloseReason = "TRAILING_SL"
	CloseReasonLiquidation  CloseReason = "LIQUIDATION" // Forced close on shutdown or end of data
	CloseReasonUnknown      CloseReason = "Unknown"
)
