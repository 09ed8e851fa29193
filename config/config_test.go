package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoPaperTrader/internal/adapters/logger"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeSettings(t, "symbols: [ETHUSDT, BTCUSDT]\nstrategies: [ma-crossover]\n")
	t.Setenv("SETTINGS_PATH", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10000.0, cfg.InitialBalance)
	assert.Equal(t, 5, cfg.Leverage)
	assert.Equal(t, 100.0, cfg.DefaultMargin)
	assert.Equal(t, 0.03, cfg.TakeProfitPercent)
	assert.Equal(t, 0.01, cfg.StopLossPercent)
	assert.Zero(t, cfg.TrailingStopPercent)
	assert.Equal(t, "1m", cfg.Interval)
	assert.True(t, cfg.ClosedCandlesOnly)
	assert.True(t, cfg.PrefetchSnapshot)
	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT"}, cfg.Symbols)
	assert.Equal(t, []string{"ma-crossover"}, cfg.Strategies)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfigEnvOverridesRoster(t *testing.T) {
	path := writeSettings(t, "symbols: [ETHUSDT]\nstrategies: [ma-crossover]\n")
	t.Setenv("SETTINGS_PATH", path)
	t.Setenv("SYMBOLS", "SOLUSDT, ADAUSDT")
	t.Setenv("STRATEGIES", "rsi-reversal,macd-momentum")
	t.Setenv("LEVERAGE", "10")
	t.Setenv("LOG_FORMAT", "std")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"SOLUSDT", "ADAUSDT"}, cfg.Symbols)
	assert.Equal(t, []string{"rsi-reversal", "macd-momentum"}, cfg.Strategies)
	assert.Equal(t, 10, cfg.Leverage)
	assert.Equal(t, "std", cfg.LogFormat)
}

func TestLoadConfigMissingRoster(t *testing.T) {
	t.Setenv("SETTINGS_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roster")
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	path := writeSettings(t, "symbols: [ETHUSDT]\nstrategies: [ma-crossover]\n")
	t.Setenv("SETTINGS_PATH", path)
	t.Setenv("LEVERAGE", "-3")
	t.Setenv("STOP_LOSS_PERCENT", "1.5")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEVERAGE")
	assert.Contains(t, err.Error(), "STOP_LOSS_PERCENT")
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}

func TestLoadConfigInvalidNumberErrors(t *testing.T) {
	path := writeSettings(t, "symbols: [ETHUSDT]\nstrategies: [ma-crossover]\n")
	t.Setenv("SETTINGS_PATH", path)
	t.Setenv("INITIAL_BALANCE", "lots")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INITIAL_BALANCE")
}
