package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/risk"
	"cryptoPaperTrader/internal/wallet"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type captureSink struct {
	mu     sync.Mutex
	trades []*domain.Trade
}

func (c *captureSink) RecordClosedTrade(t *domain.Trade) {
	c.mu.Lock()
	c.trades = append(c.trades, t)
	c.mu.Unlock()
}

func (c *captureSink) Flush() error { return nil }

func newTestLedger(t *testing.T, balance float64, riskCfg risk.Config, leverage int) (*Ledger, *wallet.Wallet, *captureSink) {
	t.Helper()
	w := wallet.New(balance)
	rm, err := risk.NewManager(riskCfg)
	require.NoError(t, err)
	sink := &captureSink{}
	l, err := New(Config{
		Logger:   &mockLogger{},
		Wallet:   w,
		Risk:     rm,
		Report:   sink,
		Leverage: leverage,
	})
	require.NoError(t, err)
	return l, w, sink
}

func defaultRisk() risk.Config {
	return risk.Config{
		DefaultMargin:     100,
		TakeProfitPercent: 0.03,
		StopLossPercent:   0.01,
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	l, w, _ := newTestLedger(t, 1000, defaultRisk(), 5)
	ctx := context.Background()

	_, err := l.PlaceLongOrder(ctx, "ETHUSDT", 0, "test", time.Now(), 0, 0)
	assert.ErrorIs(t, err, ports.ErrInvalidPrice)

	_, err = l.PlaceLongOrder(ctx, "", 100, "test", time.Now(), 0, 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	// Rejected opens leave no state behind
	assert.Empty(t, l.GetActiveTrades())
	assert.Equal(t, 1000.0, w.Balance())
}

func TestPlaceOrderDerivedTriggers(t *testing.T) {
	l, w, _ := newTestLedger(t, 1000, defaultRisk(), 5)
	ctx := context.Background()
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	trade, err := l.PlaceLongOrder(ctx, "ETHUSDT", 2000, "ma-crossover", entry, 0, 0)
	require.NoError(t, err)

	// 3% target / 1% stop at 5x leverage are 0.6% / 0.2% price moves
	assert.InDelta(t, 2000*1.006, trade.TakeProfitPrice, 1e-9)
	assert.InDelta(t, 2000*0.998, trade.StopLossPrice, 1e-9)
	assert.Equal(t, entry, trade.EntryTime)
	assert.True(t, trade.IsOpen())
	assert.Equal(t, 900.0, w.Balance(), "margin should be reserved")

	// Explicit overrides win over derivation
	short, err := l.PlaceShortOrder(ctx, "ETHUSDT", 2000, "rsi", entry, 1900, 2100)
	require.NoError(t, err)
	assert.Equal(t, 1900.0, short.TakeProfitPrice)
	assert.Equal(t, 2100.0, short.StopLossPrice)
}

func TestInsufficientFunds(t *testing.T) {
	l, w, _ := newTestLedger(t, 150, defaultRisk(), 5)
	ctx := context.Background()

	_, err := l.PlaceLongOrder(ctx, "ETHUSDT", 100, "a", time.Now(), 0, 0)
	require.NoError(t, err)

	_, err = l.PlaceLongOrder(ctx, "BTCUSDT", 100, "b", time.Now(), 0, 0)
	assert.ErrorIs(t, err, ports.ErrInsufficientFunds)
	assert.True(t, IsInsufficientFunds(err))

	assert.Len(t, l.GetActiveTrades(), 1)
	assert.Equal(t, 50.0, w.Balance())
}

func TestConcurrentOpensUniqueIDs(t *testing.T) {
	// 40 concurrent opens against a balance that only covers 25 of them:
	// exactly 25 must succeed, every ID must be unique, and the wallet must
	// account for exactly the successful reserves.
	l, w, _ := newTestLedger(t, 2500, defaultRisk(), 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var opened, rejected int

	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = l.PlaceLongOrder(ctx, "ETHUSDT", 2000, "stress", time.Now(), 0, 0)
			} else {
				_, err = l.PlaceShortOrder(ctx, "BTCUSDT", 60000, "stress", time.Now(), 0, 0)
			}
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				opened++
			} else if IsInsufficientFunds(err) {
				rejected++
			} else {
				t.Errorf("unexpected open error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, opened)
	assert.Equal(t, 15, rejected)
	assert.Equal(t, 0.0, w.Balance())

	active := l.GetActiveTrades()
	require.Len(t, active, 25)
	seen := make(map[int64]bool, len(active))
	for _, tr := range active {
		assert.False(t, seen[tr.ID], "duplicate trade ID %d", tr.ID)
		seen[tr.ID] = true
	}
}

func TestConcurrentOpensRespectRiskLimits(t *testing.T) {
	// The limit check and the insert must be one critical section: opens
	// racing past ValidateOpen against a stale count would exceed the caps.
	riskCfg := defaultRisk()
	riskCfg.MaxOpenTrades = 1

	for round := 0; round < 50; round++ {
		l, _, _ := newTestLedger(t, 10000, riskCfg, 5)
		ctx := context.Background()

		start := make(chan struct{})
		var wg sync.WaitGroup
		var mu sync.Mutex
		var opened, limited int
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := l.PlaceLongOrder(ctx, "ETHUSDT", 2000, "limit-race", time.Now(), 0, 0)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					opened++
				} else if errors.Is(err, ports.ErrRiskLimitExceeded) {
					limited++
				} else {
					t.Errorf("unexpected open error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, 1, opened, "round %d: MaxOpenTrades=1 admits exactly one open", round)
		require.Equal(t, 7, limited, "round %d", round)
		require.Len(t, l.GetActiveTrades(), 1, "round %d", round)
	}
}

func TestConcurrentOpensRespectMaxExposure(t *testing.T) {
	riskCfg := defaultRisk()
	riskCfg.MaxExposure = 250 // two 100-margin opens fit, a third does not

	for round := 0; round < 50; round++ {
		l, _, _ := newTestLedger(t, 10000, riskCfg, 5)
		ctx := context.Background()

		start := make(chan struct{})
		var wg sync.WaitGroup
		var mu sync.Mutex
		opened := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := l.PlaceLongOrder(ctx, "ETHUSDT", 2000, "exposure-race", time.Now(), 0, 0); err == nil {
					mu.Lock()
					opened++
					mu.Unlock()
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, 2, opened, "round %d", round)
		require.LessOrEqual(t, l.LockedMargin(), 250.0, "round %d", round)
	}
}

func TestMultipleTradesPerSymbolAllowed(t *testing.T) {
	// The ledger deliberately does not deduplicate positions per symbol;
	// uniqueness, if wanted, is a strategy concern. This pins the
	// permissive behavior.
	l, _, _ := newTestLedger(t, 1000, defaultRisk(), 5)
	ctx := context.Background()

	_, err := l.PlaceLongOrder(ctx, "ETHUSDT", 2000, "a", time.Now(), 0, 0)
	require.NoError(t, err)
	_, err = l.PlaceLongOrder(ctx, "ETHUSDT", 2001, "b", time.Now(), 0, 0)
	require.NoError(t, err)

	assert.Len(t, l.GetActiveTrades(), 2)
}

func TestCheckAndCloseTakeProfitLong(t *testing.T) {
	l, w, sink := newTestLedger(t, 1000, defaultRisk(), 5)
	ctx := context.Background()
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	exitAt := entry.Add(5 * time.Minute)

	trade, err := l.PlaceLongOrder(ctx, "ETHUSDT", 100, "tp-test", entry, 110, 95)
	require.NoError(t, err)

	// Below both triggers: nothing happens
	closed := l.CheckAndCloseTrades(ctx, map[string]float64{"ETHUSDT": 105}, exitAt)
	assert.Empty(t, closed)

	closed = l.CheckAndCloseTrades(ctx, map[string]float64{"ETHUSDT": 111}, exitAt)
	require.Len(t, closed, 1)
	got := closed[0]
	assert.Equal(t, trade.ID, got.ID)
	assert.Equal(t, domain.CloseReasonTakeProfit, got.CloseReason)
	assert.Equal(t, exitAt, got.ExitTime)
	// (111-100)/100 * 5 * 100
	assert.InDelta(t, 55.0, got.Profit, 1e-9)
	assert.Equal(t, 1055.0, w.Balance())
	assert.Empty(t, l.GetActiveTrades())
	assert.Len(t, sink.trades, 1)
}

func TestCheckAndCloseStopLossShort(t *testing.T) {
	l, w, _ := newTestLedger(t, 1000, defaultRisk(), 5)
	ctx := context.Background()
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := l.PlaceShortOrder(ctx, "ETHUSDT", 100, "sl-test", entry, 90, 105)
	require.NoError(t, err)

	closed := l.CheckAndCloseTrades(ctx, map[string]float64{"ETHUSDT": 106}, entry.Add(time.Minute))
	require.Len(t, closed, 1)
	assert.Equal(t, domain.CloseReasonStopLoss, closed[0].CloseReason)
	// Short losing: -(106-100)/100 * 5 * 100
	assert.InDelta(t, -30.0, closed[0].Profit, 1e-9)
	assert.Equal(t, 970.0, w.Balance())
}

func TestCheckAndCloseIdempotent(t *testing.T) {
	l, _, sink := newTestLedger(t, 1000, defaultRisk(), 5)
	ctx := context.Background()
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := l.PlaceLongOrder(ctx, "ETHUSDT", 100, "idem", entry, 110, 95)
	require.NoError(t, err)

	prices := map[string]float64{"ETHUSDT": 111}
	first := l.CheckAndCloseTrades(ctx, prices, entry.Add(time.Minute))
	second := l.CheckAndCloseTrades(ctx, prices, entry.Add(time.Minute))

	assert.Len(t, first, 1)
	assert.Empty(t, second, "second call with unchanged prices must be a no-op")
	assert.Len(t, sink.trades, 1)
}

func TestConcurrentCloseExactlyOnce(t *testing.T) {
	l, w, sink := newTestLedger(t, 1000, defaultRisk(), 5)
	ctx := context.Background()
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := l.PlaceLongOrder(ctx, "ETHUSDT", 100, "race", entry, 110, 95)
		require.NoError(t, err)
	}

	// Many goroutines race to close the same five trades
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			closed := l.CheckAndCloseTrades(ctx, map[string]float64{"ETHUSDT": 111}, entry.Add(time.Minute))
			mu.Lock()
			total += len(closed)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, total, "each trade must close exactly once")
	assert.Len(t, sink.trades, 5)
	assert.Empty(t, l.GetActiveTrades())
	// 5 * ((111-100)/100 * 5 * 100) = 275 profit on top of the initial 1000
	assert.InDelta(t, 1275.0, w.Balance(), 1e-9)
}

// panicSink blows up on every record, standing in for a faulty external
// report sink.
type panicSink struct{}

func (panicSink) RecordClosedTrade(t *domain.Trade) { panic("sink exploded") }
func (panicSink) Flush() error                      { return nil }

func TestSinkPanicDoesNotAbortRemainingCloses(t *testing.T) {
	w := wallet.New(1000)
	rm, err := risk.NewManager(defaultRisk())
	require.NoError(t, err)
	l, err := New(Config{
		Logger:   &mockLogger{},
		Wallet:   w,
		Risk:     rm,
		Report:   panicSink{},
		Leverage: 5,
	})
	require.NoError(t, err)

	ctx := context.Background()
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := l.PlaceLongOrder(ctx, "ETHUSDT", 100, "sink-fault", entry, 110, 95)
		require.NoError(t, err)
	}

	closed := l.CheckAndCloseTrades(ctx, map[string]float64{"ETHUSDT": 111}, entry.Add(time.Minute))
	require.Len(t, closed, 3, "a faulty sink must not abort the remaining closes")
	assert.Empty(t, l.GetActiveTrades())
	assert.Len(t, l.ClosedTrades(), 3, "settlement completes despite the sink")
	// 3 * ((111-100)/100 * 5 * 100) on top of the initial 1000
	assert.InDelta(t, 1165.0, w.Balance(), 1e-9)
}

func TestTrailingStopTightensWithoutClosing(t *testing.T) {
	riskCfg := risk.Config{
		DefaultMargin:       100,
		TakeProfitPercent:   0.10,
		StopLossPercent:     0.02,
		TrailingStopPercent: 0.05,
	}
	l, _, _ := newTestLedger(t, 1000, riskCfg, 1)
	ctx := context.Background()
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	trade, err := l.PlaceLongOrder(ctx, "ETHUSDT", 100, "trail", entry, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 98.0, trade.StopLossPrice, 1e-9)

	// Price rises: the evaluation that tightens must not also close
	closed := l.CheckAndCloseTrades(ctx, map[string]float64{"ETHUSDT": 105}, entry.Add(time.Minute))
	assert.Empty(t, closed)

	active := l.GetActiveTrades()
	require.Len(t, active, 1)
	assert.InDelta(t, 105*0.95, active[0].StopLossPrice, 1e-9)
	assert.True(t, active[0].TrailingActive)

	// A lower trailing candidate must never loosen the stop
	closed = l.CheckAndCloseTrades(ctx, map[string]float64{"ETHUSDT": 104.8}, entry.Add(2*time.Minute))
	assert.Empty(t, closed)
	active = l.GetActiveTrades()
	require.Len(t, active, 1)
	assert.InDelta(t, 105*0.95, active[0].StopLossPrice, 1e-9)

	// Falling through the tightened stop closes with the trailing reason
	closed = l.CheckAndCloseTrades(ctx, map[string]float64{"ETHUSDT": 99.0}, entry.Add(3*time.Minute))
	require.Len(t, closed, 1)
	assert.Equal(t, domain.CloseReasonTrailingStop, closed[0].CloseReason)
}

func TestRoundTripRestoresBalance(t *testing.T) {
	l, w, _ := newTestLedger(t, 1000, defaultRisk(), 5)
	ctx := context.Background()

	_, err := l.PlaceLongOrder(ctx, "ETHUSDT", 2000, "roundtrip", time.Now(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 900.0, w.Balance())

	// Liquidation without a price override closes at the entry price
	closed := l.CloseAllActiveTrades(ctx, 0, time.Time{})
	require.Len(t, closed, 1)
	assert.Equal(t, 0.0, closed[0].Profit)
	assert.Equal(t, 1000.0, w.Balance(), "zero price movement must restore the balance")
}

func TestCloseAllActiveTrades(t *testing.T) {
	l, w, sink := newTestLedger(t, 1000, defaultRisk(), 5)
	ctx := context.Background()
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	liqTime := entry.Add(time.Hour)

	_, err := l.PlaceLongOrder(ctx, "ETHUSDT", 100, "a", entry, 200, 50)
	require.NoError(t, err)
	_, err = l.PlaceShortOrder(ctx, "ETHUSDT", 100, "b", entry, 50, 200)
	require.NoError(t, err)

	closed := l.CloseAllActiveTrades(ctx, 102, liqTime)
	require.Len(t, closed, 2)
	assert.Empty(t, l.GetActiveTrades())
	assert.Equal(t, 0.0, l.LockedMargin())

	var sum float64
	for _, tr := range closed {
		assert.Equal(t, domain.CloseReasonLiquidation, tr.CloseReason)
		assert.Equal(t, liqTime, tr.ExitTime)
		sum += tr.Profit
	}
	// Long +10, short -10 at 5x on 100 margin: net zero
	assert.InDelta(t, 0.0, sum, 1e-9)
	assert.InDelta(t, 1000.0, w.Balance(), 1e-9)
	assert.Len(t, sink.trades, 2)
}

func TestWalletConservation(t *testing.T) {
	// balance + locked margin stays constant until P&L is realized
	l, w, _ := newTestLedger(t, 1000, defaultRisk(), 5)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := l.PlaceLongOrder(ctx, "ETHUSDT", 100, "conserve", time.Now(), 110, 90)
		require.NoError(t, err)
		assert.InDelta(t, 1000.0, w.Balance()+l.LockedMargin(), 1e-9)
	}

	closed := l.CheckAndCloseTrades(ctx, map[string]float64{"ETHUSDT": 111}, time.Now())
	require.Len(t, closed, 4)
	var pnl float64
	for _, tr := range closed {
		pnl += tr.Profit
	}
	assert.InDelta(t, 1000.0+pnl, w.Balance()+l.LockedMargin(), 1e-9)
}

func TestClosedTradesImmutableHistory(t *testing.T) {
	l, _, _ := newTestLedger(t, 1000, defaultRisk(), 5)
	ctx := context.Background()

	_, err := l.PlaceLongOrder(ctx, "ETHUSDT", 100, "hist", time.Now(), 110, 90)
	require.NoError(t, err)
	l.CheckAndCloseTrades(ctx, map[string]float64{"ETHUSDT": 111}, time.Now())

	history := l.ClosedTrades()
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusClosed, history[0].Status)
	assert.False(t, history[0].IsOpen())
}
