package report

import (
	"context"
	"errors"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
)

// DBSink adapts a TradeHistoryRepository to the ReportSink interface so the
// ledger can persist closed trades as they happen. A failed write is logged
// and dropped; losing one history row must not block trade settlement.
type DBSink struct {
	logger ports.Logger
	repo   ports.TradeHistoryRepository
}

// NewDBSink creates a sink persisting closed trades to the repository.
func NewDBSink(logger ports.Logger, repo ports.TradeHistoryRepository) *DBSink {
	return &DBSink{logger: logger, repo: repo}
}

// RecordClosedTrade persists one closed trade.
func (s *DBSink) RecordClosedTrade(t *domain.Trade) {
	if _, err := s.repo.RecordClosedTrade(context.Background(), t); err != nil {
		s.logger.Error(context.Background(), err, "failed to persist closed trade", map[string]interface{}{
			"tradeID": t.ID,
			"symbol":  t.Symbol,
		})
	}
}

// Flush is a no-op; the repository writes through on every record.
func (s *DBSink) Flush() error { return nil }

// MultiSink fans closed trades out to several sinks.
type MultiSink []ports.ReportSink

// RecordClosedTrade forwards the trade to every sink.
func (m MultiSink) RecordClosedTrade(t *domain.Trade) {
	for _, s := range m {
		s.RecordClosedTrade(t)
	}
}

// Flush flushes every sink and joins their errors.
func (m MultiSink) Flush() error {
	var errs []error
	for _, s := range m {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
