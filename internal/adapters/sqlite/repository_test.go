package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoPaperTrader/internal/domain"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func closedTrade(symbol string, isLong bool, profit float64, entry time.Time) *domain.Trade {
	return &domain.Trade{
		Symbol:        symbol,
		IsLong:        isLong,
		Signal:        "ma-crossover",
		EntryPrice:    2000,
		ExitPrice:     2000 + profit,
		InitialMargin: 100,
		Leverage:      5,
		Profit:        profit,
		EntryTime:     entry,
		ExitTime:      entry.Add(10 * time.Minute),
		Status:        domain.StatusClosed,
		CloseReason:   domain.CloseReasonTakeProfit,
	}
}

func TestRepository_RecordAndFindBySymbol(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	id1, err := repo.RecordClosedTrade(ctx, closedTrade("ETHUSDT", true, 55, base))
	require.NoError(t, err)
	id2, err := repo.RecordClosedTrade(ctx, closedTrade("ETHUSDT", false, -30, base.Add(time.Hour)))
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	_, err = repo.RecordClosedTrade(ctx, closedTrade("BTCUSDT", true, 10, base))
	require.NoError(t, err)

	trades, err := repo.FindBySymbol(ctx, "ETHUSDT", 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// Most recent entry first.
	assert.Equal(t, -30.0, trades[0].Profit)
	assert.False(t, trades[0].IsLong)
	assert.Equal(t, 55.0, trades[1].Profit)
	assert.True(t, trades[1].IsLong)
	assert.Equal(t, "ma-crossover", trades[1].Signal)
	assert.Equal(t, domain.CloseReasonTakeProfit, trades[1].CloseReason)
	assert.Equal(t, domain.StatusClosed, trades[1].Status)
}

func TestRepository_FindBySymbolRespectsLimit(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := repo.RecordClosedTrade(ctx, closedTrade("ETHUSDT", true, float64(i), base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	trades, err := repo.FindBySymbol(ctx, "ETHUSDT", 3)
	require.NoError(t, err)
	assert.Len(t, trades, 3)
	assert.Equal(t, 4.0, trades[0].Profit)
}

func TestRepository_TotalProfit(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	total, err := repo.TotalProfit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, total, "empty history sums to zero")

	_, err = repo.RecordClosedTrade(ctx, closedTrade("ETHUSDT", true, 55, base))
	require.NoError(t, err)
	_, err = repo.RecordClosedTrade(ctx, closedTrade("BTCUSDT", true, -30, base))
	require.NoError(t, err)

	total, err = repo.TotalProfit(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, total, 1e-9)
}

func TestRepository_SymbolRanking(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.RecordClosedTrade(ctx, closedTrade("ETHUSDT", true, 55, base))
	require.NoError(t, err)
	_, err = repo.RecordClosedTrade(ctx, closedTrade("ETHUSDT", true, -10, base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = repo.RecordClosedTrade(ctx, closedTrade("BTCUSDT", true, 80, base))
	require.NoError(t, err)

	ranking, err := repo.SymbolRanking(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ranking, 2)

	assert.Equal(t, "BTCUSDT", ranking[0].Symbol)
	assert.InDelta(t, 80.0, ranking[0].TotalProfit, 1e-9)
	assert.Equal(t, 1, ranking[0].Trades)
	assert.Equal(t, 1, ranking[0].Wins)

	assert.Equal(t, "ETHUSDT", ranking[1].Symbol)
	assert.InDelta(t, 45.0, ranking[1].TotalProfit, 1e-9)
	assert.Equal(t, 2, ranking[1].Trades)
	assert.Equal(t, 1, ranking[1].Wins, "losing trades do not count as wins")
}

func TestRepository_SymbolRankingLimit(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, sym := range []string{"AAAUSDT", "BBBUSDT", "CCCUSDT"} {
		_, err := repo.RecordClosedTrade(ctx, closedTrade(sym, true, 1, base))
		require.NoError(t, err)
	}

	ranking, err := repo.SymbolRanking(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, ranking, 2)
}
