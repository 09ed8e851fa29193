package ports

import "cryptoPaperTrader/internal/domain"

// ReportSink receives every closed trade from the ledger. The core does not
// format or persist reports itself; implementations decide where the
// records go (CSV file, database, stdout).
type ReportSink interface {
	// RecordClosedTrade is called once per closed trade, from the goroutine
	// that closed it. Implementations must be safe for concurrent use.
	RecordClosedTrade(trade *domain.Trade)

	// Flush writes out everything recorded so far. Called on shutdown after
	// forced liquidation, and at the end of a backtest run. Must complete
	// fully before returning.
	Flush() error
}
