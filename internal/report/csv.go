package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
)

// CSVReporter implements the ports.ReportSink interface. Closed trades are
// buffered in memory; Flush writes one trades file and one summary file per
// run, tagged with a unique run ID so repeated runs never clobber each
// other.
type CSVReporter struct {
	logger         ports.Logger
	dir            string
	runID          string
	initialBalance float64

	mu     sync.Mutex
	trades []*domain.Trade
}

// Config holds configuration for the CSV reporter.
type Config struct {
	Logger         ports.Logger
	Dir            string
	InitialBalance float64
}

// New creates a CSV reporter writing into the given directory.
func New(cfg Config) (*CSVReporter, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for CSV reporter")
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "./reports"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory '%s': %w", dir, err)
	}
	return &CSVReporter{
		logger:         cfg.Logger,
		dir:            dir,
		runID:          uuid.NewString(),
		initialBalance: cfg.InitialBalance,
	}, nil
}

// RunID returns the unique tag of this reporting run.
func (r *CSVReporter) RunID() string { return r.runID }

// RecordClosedTrade buffers one closed trade. Safe for concurrent use; the
// ledger calls this from whichever goroutine closed the trade.
func (r *CSVReporter) RecordClosedTrade(t *domain.Trade) {
	r.mu.Lock()
	r.trades = append(r.trades, t)
	r.mu.Unlock()
}

// Flush writes the buffered trades and their summary to disk. Calling Flush
// again after more trades closed rewrites both files with the full set.
func (r *CSVReporter) Flush() error {
	r.mu.Lock()
	trades := make([]*domain.Trade, len(r.trades))
	copy(trades, r.trades)
	r.mu.Unlock()

	tradesPath := filepath.Join(r.dir, fmt.Sprintf("trades_%s.csv", r.runID))
	if err := r.writeTrades(tradesPath, trades); err != nil {
		return err
	}

	summaryPath := filepath.Join(r.dir, fmt.Sprintf("summary_%s.csv", r.runID))
	summary := Summarize(trades, r.initialBalance)
	if err := r.writeSummary(summaryPath, summary); err != nil {
		return err
	}

	r.logger.Info(context.Background(), "Report flushed", map[string]interface{}{
		"runID":   r.runID,
		"trades":  len(trades),
		"net":     summary.NetProfit,
		"winRate": summary.WinRate,
	})
	return nil
}

func (r *CSVReporter) writeTrades(path string, trades []*domain.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trades report '%s': %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"id", "symbol", "direction", "signal", "leverage", "margin",
		"entry_time", "exit_time", "duration", "entry_price", "exit_price", "profit", "close_reason"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write trades header: %w", err)
	}
	for _, t := range trades {
		row := []string{
			strconv.FormatInt(t.ID, 10),
			t.Symbol,
			string(t.Direction()),
			t.Signal,
			strconv.Itoa(t.Leverage),
			formatFloat(t.InitialMargin),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			t.Duration().String(),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.Profit),
			string(t.CloseReason),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write trade row for %s: %w", t.Symbol, err)
		}
	}
	w.Flush()
	return w.Error()
}

func (r *CSVReporter) writeSummary(path string, s Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary report '%s': %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := [][]string{
		{"metric", "value"},
		{"total_trades", strconv.Itoa(s.TotalTrades)},
		{"wins", strconv.Itoa(s.Wins)},
		{"losses", strconv.Itoa(s.Losses)},
		{"win_rate", formatFloat(s.WinRate)},
		{"gross_profit", formatFloat(s.GrossProfit)},
		{"gross_loss", formatFloat(s.GrossLoss)},
		{"profit_factor", formatFloat(s.ProfitFactor)},
		{"net_profit", formatFloat(s.NetProfit)},
		{"max_drawdown", formatFloat(s.MaxDrawdown)},
		{"roi", formatFloat(s.ROI)},
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Summary aggregates realized results over a set of closed trades.
type Summary struct {
	TotalTrades  int
	Wins         int
	Losses       int
	WinRate      float64 // wins / total, 0 when no trades
	GrossProfit  float64 // sum of positive P&L
	GrossLoss    float64 // absolute sum of negative P&L
	ProfitFactor float64 // gross profit / gross loss, +Inf when lossless
	NetProfit    float64
	MaxDrawdown  float64 // largest peak-to-trough equity decline, in balance units
	ROI          float64 // net profit / initial balance, 0 when balance unknown
}

// Summarize computes the run summary for a set of closed trades, walking the
// equity curve in close order.
func Summarize(trades []*domain.Trade, initialBalance float64) Summary {
	s := Summary{TotalTrades: len(trades)}
	equity := initialBalance
	peak := initialBalance
	for _, t := range trades {
		s.NetProfit += t.Profit
		if t.Profit > 0 {
			s.Wins++
			s.GrossProfit += t.Profit
		} else if t.Profit < 0 {
			s.Losses++
			s.GrossLoss += -t.Profit
		}
		equity += t.Profit
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	} else if s.GrossProfit > 0 {
		s.ProfitFactor = math.Inf(1)
	}
	if initialBalance > 0 {
		s.ROI = s.NetProfit / initialBalance
	}
	return s
}

// WriteKlinesToCSV dumps a candle sequence to a CSV file, one row per
// candle. Used by the kline fetcher to build offline backtest datasets.
func WriteKlinesToCSV(path string, klines []*domain.Kline) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create klines file '%s': %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write klines header: %w", err)
	}
	for _, k := range klines {
		row := []string{
			strconv.FormatInt(k.OpenTime.UnixMilli(), 10),
			strconv.FormatInt(k.CloseTime.UnixMilli(), 10),
			k.Symbol,
			k.Interval,
			formatFloat(k.Open),
			formatFloat(k.High),
			formatFloat(k.Low),
			formatFloat(k.Close),
			formatFloat(k.Volume),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write kline row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// ReadKlinesFromCSV loads a candle sequence previously written by
// WriteKlinesToCSV.
func ReadKlinesFromCSV(path string) ([]*domain.Kline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open klines file '%s': %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read klines file '%s': %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	klines := make([]*domain.Kline, 0, len(rows)-1)
	for i, row := range rows[1:] { // skip header
		if len(row) != 9 {
			return nil, fmt.Errorf("klines file '%s' row %d: expected 9 columns, got %d", path, i+2, len(row))
		}
		openMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("klines file '%s' row %d: parsing open_time: %w", path, i+2, err)
		}
		closeMs, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("klines file '%s' row %d: parsing close_time: %w", path, i+2, err)
		}
		vals := make([]float64, 5)
		for j, col := range row[4:9] {
			v, err := strconv.ParseFloat(col, 64)
			if err != nil {
				return nil, fmt.Errorf("klines file '%s' row %d: parsing column %d: %w", path, i+2, j+5, err)
			}
			vals[j] = v
		}
		klines = append(klines, &domain.Kline{
			OpenTime:  time.UnixMilli(openMs),
			CloseTime: time.UnixMilli(closeMs),
			Symbol:    row[2],
			Interval:  row[3],
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
			IsFinal:   true,
		})
	}
	return klines, nil
}
