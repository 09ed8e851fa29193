package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Ledger / Wallet Errors
	ErrInsufficientFunds = errors.New("insufficient wallet balance to reserve margin")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrRiskLimitExceeded = errors.New("risk limits prevent opening the position")

	// Market Data Errors
	ErrDataUnavailable  = errors.New("market data unavailable for symbol")
	ErrConnectionFailed = errors.New("failed to connect to the market data source")
	ErrRateLimited      = errors.New("API rate limit exceeded")
	ErrInvalidAPIKeys   = errors.New("invalid API keys or permissions")

	// Strategy Errors
	ErrStrategyFault   = errors.New("strategy task failed")
	ErrUnknownStrategy = errors.New("no registered strategy with that name")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
