package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.TradeHistoryRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/paper_trader.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		signal TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		margin REAL NOT NULL,
		leverage INTEGER NOT NULL,
		profit REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		close_reason TEXT NULL
	);

	CREATE TABLE IF NOT EXISTS symbol_stats (
		symbol TEXT PRIMARY KEY,
		total_profit REAL NOT NULL DEFAULT 0,
		trades INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_trade_history_symbol_entry_time ON trade_history (symbol, entry_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// RecordClosedTrade saves a closed trade and updates the per-symbol ranking
// in the same transaction, so the history and the ranking never diverge.
func (r *Repository) RecordClosedTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const insertTrade = `
	INSERT INTO trade_history (symbol, direction, signal, entry_price, exit_price, margin,
	                           leverage, profit, entry_time, exit_time, close_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	const upsertStats = `
	INSERT INTO symbol_stats (symbol, total_profit, trades, wins)
	VALUES (?, ?, 1, ?)
	ON CONFLICT(symbol) DO UPDATE SET
		total_profit = total_profit + excluded.total_profit,
		trades = trades + 1,
		wins = wins + excluded.wins`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for symbol %s: %w: %w", trade.Symbol, ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, insertTrade,
		trade.Symbol, string(trade.Direction()), trade.Signal, trade.EntryPrice, trade.ExitPrice,
		trade.InitialMargin, trade.Leverage, trade.Profit, trade.EntryTime, trade.ExitTime, string(trade.CloseReason))
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade history for symbol %s: %w: %w", trade.Symbol, ports.ErrUpdateFailed, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade history %s: %w", trade.Symbol, err)
	}

	win := 0
	if trade.Profit > 0 {
		win = 1
	}
	if _, err := tx.ExecContext(ctx, upsertStats, trade.Symbol, trade.Profit, win); err != nil {
		return 0, fmt.Errorf("failed to update symbol stats for %s: %w: %w", trade.Symbol, ports.ErrUpdateFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trade history for %s: %w: %w", trade.Symbol, ports.ErrUpdateFailed, err)
	}

	r.logger.Debug(ctx, "Trade history recorded", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "profit": trade.Profit})
	return id, nil
}

// FindBySymbol retrieves the most recent closed trades for a symbol, up to a limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, symbol, direction, signal, entry_price, exit_price, margin,
	       leverage, profit, entry_time, exit_time, close_reason
	FROM trade_history
	WHERE symbol = ? ORDER BY entry_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade history for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade history during FindBySymbol: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade history rows: %w", err)
	}
	return trades, nil
}

// TotalProfit returns the sum of realized P&L across all recorded trades.
func (r *Repository) TotalProfit(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(profit), 0) FROM trade_history`
	var totalProfit float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&totalProfit); err != nil {
		return 0, fmt.Errorf("failed to calculate total profit: %w: %w", ports.ErrQueryFailed, err)
	}
	return totalProfit, nil
}

// SymbolRanking returns symbols ordered by total realized profit, best first.
func (r *Repository) SymbolRanking(ctx context.Context, limit int) ([]*ports.SymbolStats, error) {
	const query = `
	SELECT symbol, total_profit, trades, wins
	FROM symbol_stats
	ORDER BY total_profit DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbol ranking: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	stats := make([]*ports.SymbolStats, 0)
	for rows.Next() {
		s := &ports.SymbolStats{}
		if err := rows.Scan(&s.Symbol, &s.TotalProfit, &s.Trades, &s.Wins); err != nil {
			return nil, fmt.Errorf("failed to scan symbol stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbol stats rows: %w", err)
	}
	return stats, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{Status: domain.StatusClosed}
	var direction string
	var closeReason sql.NullString
	err := s.Scan(
		&t.ID, &t.Symbol, &direction, &t.Signal, &t.EntryPrice, &t.ExitPrice, &t.InitialMargin,
		&t.Leverage, &t.Profit, &t.EntryTime, &t.ExitTime, &closeReason)
	if err != nil {
		return nil, err // handle sql.ErrNoRows in the caller
	}
	t.IsLong = direction == string(domain.Long)
	if closeReason.Valid {
		t.CloseReason = domain.CloseReason(closeReason.String)
	} else {
		t.CloseReason = domain.CloseReasonUnknown
	}
	return t, nil
}
