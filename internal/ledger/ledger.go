package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/risk"
	"cryptoPaperTrader/internal/wallet"
)

// Ledger owns the set of active simulated positions and the open->close
// state machine. It is the only component allowed to insert, remove or
// mutate a trade; strategies interact with it through ports.TradeExecutor.
//
// The active set is a map guarded by a mutex; closing removes the entry
// under the same lock that found it, which is what makes the close
// exactly-once under arbitrary interleavings of opens and closes.
type Ledger struct {
	logger   ports.Logger
	wallet   *wallet.Wallet
	risk     *risk.Manager
	report   ports.ReportSink // optional
	leverage int

	nextID atomic.Int64

	mu     sync.RWMutex
	active map[int64]*domain.Trade

	closedMu sync.Mutex
	closed   []*domain.Trade
}

// Config holds the ledger's dependencies.
type Config struct {
	Logger   ports.Logger
	Wallet   *wallet.Wallet
	Risk     *risk.Manager
	Report   ports.ReportSink // may be nil
	Leverage int
}

// New creates a trade ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Logger == nil || cfg.Wallet == nil || cfg.Risk == nil {
		return nil, fmt.Errorf("missing required dependencies for Ledger")
	}
	if cfg.Leverage <= 0 {
		return nil, fmt.Errorf("configuration Leverage must be positive: %w", ports.ErrConfigurationError)
	}
	return &Ledger{
		logger:   cfg.Logger,
		wallet:   cfg.Wallet,
		risk:     cfg.Risk,
		report:   cfg.Report,
		leverage: cfg.Leverage,
		active:   make(map[int64]*domain.Trade),
	}, nil
}

// PlaceLongOrder opens a simulated long position.
func (l *Ledger) PlaceLongOrder(ctx context.Context, symbol string, price float64, signal string, sourceTime time.Time, takeProfit, stopLoss float64) (*domain.Trade, error) {
	return l.placeOrder(ctx, symbol, price, signal, sourceTime, takeProfit, stopLoss, true)
}

// PlaceShortOrder opens a simulated short position.
func (l *Ledger) PlaceShortOrder(ctx context.Context, symbol string, price float64, signal string, sourceTime time.Time, takeProfit, stopLoss float64) (*domain.Trade, error) {
	return l.placeOrder(ctx, symbol, price, signal, sourceTime, takeProfit, stopLoss, false)
}

func (l *Ledger) placeOrder(ctx context.Context, symbol string, price float64, signal string, sourceTime time.Time, takeProfit, stopLoss float64, isLong bool) (*domain.Trade, error) {
	op := "placeOrder"
	if symbol == "" {
		return nil, fmt.Errorf("%s: symbol is required: %w", op, ports.ErrInvalidRequest)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%s: price %.4f for %s: %w", op, price, symbol, ports.ErrInvalidPrice)
	}

	margin := l.risk.MarginFor()

	if takeProfit <= 0 {
		takeProfit = l.risk.TakeProfitPrice(price, l.leverage, isLong)
	}
	if stopLoss <= 0 {
		stopLoss = l.risk.StopLossPrice(price, l.leverage, isLong)
	}
	// Zero sourceTime only happens in live mode, where wall clock is the
	// best available entry timestamp. Backtests always pass candle times.
	if sourceTime.IsZero() {
		sourceTime = time.Now().UTC()
	}

	// Limit check, margin reserve and insert form one critical section:
	// validating against a count taken outside the lock would let concurrent
	// opens race past MaxOpenTrades/MaxExposure.
	l.mu.Lock()
	if err := l.risk.ValidateOpen(len(l.active), l.lockedMarginLocked(), margin); err != nil {
		l.mu.Unlock()
		l.logger.Warn(ctx, op+": open rejected by risk limits", map[string]interface{}{"symbol": symbol, "signal": signal})
		return nil, err
	}
	if !l.wallet.Reserve(margin) {
		l.mu.Unlock()
		l.logger.Warn(ctx, op+": margin reserve failed", map[string]interface{}{"symbol": symbol, "margin": margin, "balance": l.wallet.Balance()})
		return nil, fmt.Errorf("%s: reserving %.2f margin for %s: %w", op, margin, symbol, ports.ErrInsufficientFunds)
	}

	trade := &domain.Trade{
		ID:              l.nextID.Add(1),
		Symbol:          symbol,
		IsLong:          isLong,
		Signal:          signal,
		EntryPrice:      price,
		InitialMargin:   margin,
		Leverage:        l.leverage,
		TakeProfitPrice: takeProfit,
		StopLossPrice:   stopLoss,
		EntryTime:       sourceTime,
		Status:          domain.StatusOpen,
	}
	l.active[trade.ID] = trade
	l.mu.Unlock()

	l.logger.Info(ctx, op+": position opened", map[string]interface{}{
		"tradeID":    trade.ID,
		"symbol":     symbol,
		"direction":  trade.Direction(),
		"signal":     signal,
		"entryPrice": price,
		"takeProfit": takeProfit,
		"stopLoss":   stopLoss,
		"margin":     margin,
		"leverage":   l.leverage,
	})

	snapshot := *trade
	return &snapshot, nil
}

// CheckAndCloseTrades evaluates every active trade whose symbol appears in
// prices. Per trade, in order: stop-loss touch, take-profit touch, trailing
// tighten. The trailing rule only tightens the stop and never closes on the
// evaluation that tightened it. A panic while evaluating one trade is
// logged and does not prevent evaluation of the rest.
func (l *Ledger) CheckAndCloseTrades(ctx context.Context, prices map[string]float64, sourceTime time.Time) []*domain.Trade {
	op := "CheckAndCloseTrades"
	ids := l.activeIDs()

	var closedNow []*domain.Trade
	for _, id := range ids {
		trade, reason, exitPrice := l.evaluateOne(ctx, id, prices)
		if trade == nil {
			continue
		}
		closed := l.finalize(ctx, trade, exitPrice, sourceTime, reason)
		l.logger.Info(ctx, op+": position closed", map[string]interface{}{
			"tradeID":   closed.ID,
			"symbol":    closed.Symbol,
			"reason":    reason,
			"exitPrice": exitPrice,
			"profit":    closed.Profit,
		})
		closedNow = append(closedNow, closed)
	}
	return closedNow
}

// evaluateOne inspects one active trade against the price map. When the
// trade must close it is removed from the active set (under the same lock
// that found it) and returned; otherwise nil. Panics are isolated here.
func (l *Ledger) evaluateOne(ctx context.Context, id int64, prices map[string]float64) (trade *domain.Trade, reason domain.CloseReason, exitPrice float64) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(ctx, fmt.Errorf("panic: %v", r), "trade evaluation failed", map[string]interface{}{"tradeID": id})
			trade = nil
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.active[id]
	if !ok {
		// Already closed by a concurrent call; closing again would double
		// count, so this is a no-op rather than an error.
		return nil, "", 0
	}
	price, ok := prices[t.Symbol]
	if !ok || price <= 0 {
		return nil, "", 0
	}

	stopHit := (t.IsLong && price <= t.StopLossPrice) || (!t.IsLong && price >= t.StopLossPrice)
	if stopHit {
		reason = domain.CloseReasonStopLoss
		if t.TrailingActive {
			reason = domain.CloseReasonTrailingStop
		}
		delete(l.active, id)
		return t, reason, price
	}

	tpHit := (t.IsLong && price >= t.TakeProfitPrice) || (!t.IsLong && price <= t.TakeProfitPrice)
	if tpHit {
		delete(l.active, id)
		return t, domain.CloseReasonTakeProfit, price
	}

	if l.risk.TrailingEnabled() {
		candidate := l.risk.TrailingStopPrice(price, t.Leverage, t.IsLong)
		tighter := (t.IsLong && candidate > t.StopLossPrice) || (!t.IsLong && candidate < t.StopLossPrice)
		if tighter {
			t.StopLossPrice = candidate
			t.TrailingActive = true
		}
	}
	return nil, "", 0
}

// CloseAllActiveTrades force-closes every active trade. Callers use it for
// termination-time liquidation and end-of-backtest flushes, so it runs to
// completion over a point-in-time snapshot of the active set. A zero
// priceOverride closes each trade at its entry price (zero P&L); a zero
// timeOverride falls back to the current wall time.
func (l *Ledger) CloseAllActiveTrades(ctx context.Context, priceOverride float64, timeOverride time.Time) []*domain.Trade {
	op := "CloseAllActiveTrades"
	ids := l.activeIDs()

	var closedNow []*domain.Trade
	for _, id := range ids {
		l.mu.Lock()
		t, ok := l.active[id]
		if !ok {
			l.mu.Unlock()
			continue
		}
		delete(l.active, id)
		l.mu.Unlock()

		exitPrice := priceOverride
		if exitPrice <= 0 {
			exitPrice = t.EntryPrice
		}
		closed := l.finalize(ctx, t, exitPrice, timeOverride, domain.CloseReasonLiquidation)
		closedNow = append(closedNow, closed)
	}
	l.logger.Info(ctx, op+": liquidation complete", map[string]interface{}{"closed": len(closedNow), "balance": l.wallet.Balance()})
	return closedNow
}

// finalize settles a trade that has already been removed from the active
// set: computes realized P&L, returns margin plus P&L to the wallet,
// records the trade in the immutable history and hands it to the report
// sink. The caller holds the only reference, so no lock is needed.
func (l *Ledger) finalize(ctx context.Context, t *domain.Trade, exitPrice float64, exitTime time.Time, reason domain.CloseReason) *domain.Trade {
	if exitTime.IsZero() {
		exitTime = time.Now().UTC()
	}

	sign := 1.0
	if !t.IsLong {
		sign = -1.0
	}
	profit := sign * (exitPrice - t.EntryPrice) / t.EntryPrice * float64(t.Leverage) * t.InitialMargin

	t.ExitPrice = exitPrice
	t.ExitTime = exitTime
	t.Profit = profit
	t.Status = domain.StatusClosed
	t.CloseReason = reason

	l.wallet.Release(t.InitialMargin)
	l.wallet.Credit(profit)

	l.closedMu.Lock()
	l.closed = append(l.closed, t)
	l.closedMu.Unlock()

	if l.report != nil {
		l.recordToSink(ctx, t)
	}
	return t
}

// recordToSink hands a settled trade to the report sink. The sink is an
// external collaborator; a panic inside it must not abort the remaining
// closes of the same call, so it is isolated here like trade evaluation is.
func (l *Ledger) recordToSink(ctx context.Context, t *domain.Trade) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(ctx, fmt.Errorf("panic: %v", r), "report sink failed for closed trade", map[string]interface{}{"tradeID": t.ID, "symbol": t.Symbol})
		}
	}()
	l.report.RecordClosedTrade(t)
}

// GetActiveTrades returns a point-in-time snapshot of the active set,
// ordered by ID. The snapshot may be immediately stale; callers use it for
// reporting and diagnostics, not for decisions.
func (l *Ledger) GetActiveTrades() []*domain.Trade {
	l.mu.RLock()
	out := make([]*domain.Trade, 0, len(l.active))
	for _, t := range l.active {
		snapshot := *t
		out = append(out, &snapshot)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClosedTrades returns a snapshot of the closed-trade history in close order.
func (l *Ledger) ClosedTrades() []*domain.Trade {
	l.closedMu.Lock()
	defer l.closedMu.Unlock()
	out := make([]*domain.Trade, len(l.closed))
	copy(out, l.closed)
	return out
}

// LockedMargin returns the total margin reserved by active trades.
func (l *Ledger) LockedMargin() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lockedMarginLocked()
}

// lockedMarginLocked sums the reserved margin. Caller holds l.mu.
func (l *Ledger) lockedMarginLocked() float64 {
	var total float64
	for _, t := range l.active {
		total += t.InitialMargin
	}
	return total
}

// activeIDs returns the IDs of the active set in ascending order, so that
// backtest close sequences are deterministic.
func (l *Ledger) activeIDs() []int64 {
	l.mu.RLock()
	ids := make([]int64, 0, len(l.active))
	for id := range l.active {
		ids = append(ids, id)
	}
	l.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsInsufficientFunds reports whether err is a rejected open due to wallet
// balance, which callers treat as a normal outcome rather than a fault.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ports.ErrInsufficientFunds)
}
