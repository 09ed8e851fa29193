package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cryptoPaperTrader/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API (optional: only public market-data endpoints are used)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Paper account
	InitialBalance float64
	Leverage       int
	DefaultMargin  float64 // Margin reserved per simulated position
	MaxOpenTrades  int     // 0 disables the limit
	MaxExposure    float64 // Max total locked margin; 0 disables the limit

	// Exit parameters (returns on margin, leverage-adjusted at open)
	TakeProfitPercent   float64
	StopLossPercent     float64
	TrailingStopPercent float64 // 0 disables trailing stops

	// Market data
	Interval          string
	ClosedCandlesOnly bool
	PrefetchSnapshot  bool

	// Roster (from the settings file, overridable via env)
	Symbols    []string
	Strategies []string

	// Strategy Parameters
	StrategyShortMAPeriod    int     // e.g., 20
	StrategyLongMAPeriod     int     // e.g., 50
	StrategyRSIPeriod        int     // e.g., 14
	StrategyRSIOverbought    float64 // e.g., 70.0
	StrategyRSIOversold      float64 // e.g., 30.0
	StrategyMACDFastPeriod   int     // e.g., 12
	StrategyMACDSlowPeriod   int     // e.g., 26
	StrategyMACDSignalPeriod int     // e.g., 9

	// Persistence & reporting
	DBPath       string
	ReportDir    string
	SettingsPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // "std" or "json"
}

// rosterFile is the on-disk shape of the symbol/strategy roster.
type rosterFile struct {
	Symbols    []string `yaml:"symbols"`
	Strategies []string `yaml:"strategies"`
}

// LoadConfig loads configuration from environment variables (.env file) and
// the YAML roster file.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Paper account
	cfg.InitialBalance, err = getEnvAsFloatRequired("INITIAL_BALANCE", 10000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_BALANCE: %v", err))
	} else if cfg.InitialBalance <= 0 {
		errs = append(errs, "INITIAL_BALANCE must be positive")
	}

	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage <= 0 {
		errs = append(errs, "LEVERAGE must be positive")
	}

	cfg.DefaultMargin, err = getEnvAsFloatRequired("DEFAULT_MARGIN", 100.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_MARGIN: %v", err))
	} else if cfg.DefaultMargin <= 0 {
		errs = append(errs, "DEFAULT_MARGIN must be positive")
	}

	cfg.MaxOpenTrades, err = getEnvAsIntRequired("MAX_OPEN_TRADES", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_OPEN_TRADES: %v", err))
	} else if cfg.MaxOpenTrades < 0 {
		errs = append(errs, "MAX_OPEN_TRADES cannot be negative")
	}

	cfg.MaxExposure, err = getEnvAsFloatRequired("MAX_EXPOSURE", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_EXPOSURE: %v", err))
	} else if cfg.MaxExposure < 0 {
		errs = append(errs, "MAX_EXPOSURE cannot be negative")
	}

	// Exit parameters
	cfg.TakeProfitPercent, err = getEnvAsFloatRequired("TAKE_PROFIT_PERCENT", 0.03)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_PERCENT: %v", err))
	} else if cfg.TakeProfitPercent <= 0 {
		errs = append(errs, "TAKE_PROFIT_PERCENT must be positive")
	}

	cfg.StopLossPercent, err = getEnvAsFloatRequired("STOP_LOSS_PERCENT", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PERCENT: %v", err))
	} else if cfg.StopLossPercent <= 0 || cfg.StopLossPercent >= 1.0 {
		errs = append(errs, "STOP_LOSS_PERCENT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.TrailingStopPercent, err = getEnvAsFloatRequired("TRAILING_STOP_PERCENT", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRAILING_STOP_PERCENT: %v", err))
	} else if cfg.TrailingStopPercent < 0 {
		errs = append(errs, "TRAILING_STOP_PERCENT cannot be negative")
	}

	// Market data
	cfg.Interval = getEnv("INTERVAL", "1m")
	if cfg.Interval == "" {
		errs = append(errs, "INTERVAL must be set")
	}
	cfg.ClosedCandlesOnly = getEnvAsBool("CLOSED_CANDLES_ONLY", true)
	cfg.PrefetchSnapshot = getEnvAsBool("PREFETCH_SNAPSHOT", true)

	// Strategy Parameters (using defaults if not set)
	cfg.StrategyShortMAPeriod = getEnvAsInt("STRATEGY_SHORT_MA_PERIOD", 20)
	cfg.StrategyLongMAPeriod = getEnvAsInt("STRATEGY_LONG_MA_PERIOD", 50)
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 14)
	cfg.StrategyRSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70.0)
	cfg.StrategyRSIOversold = getEnvAsFloat("STRATEGY_RSI_OVERSOLD", 30.0)
	cfg.StrategyMACDFastPeriod = getEnvAsInt("STRATEGY_MACD_FAST_PERIOD", 12)
	cfg.StrategyMACDSlowPeriod = getEnvAsInt("STRATEGY_MACD_SLOW_PERIOD", 26)
	cfg.StrategyMACDSignalPeriod = getEnvAsInt("STRATEGY_MACD_SIGNAL_PERIOD", 9)

	// Validate strategy periods
	if cfg.StrategyShortMAPeriod <= 0 || cfg.StrategyLongMAPeriod <= 0 || cfg.StrategyRSIPeriod <= 0 {
		errs = append(errs, "strategy periods (MA, RSI) must be positive")
	}
	if cfg.StrategyShortMAPeriod >= cfg.StrategyLongMAPeriod {
		errs = append(errs, "STRATEGY_SHORT_MA_PERIOD must be less than STRATEGY_LONG_MA_PERIOD")
	}
	if cfg.StrategyRSIOverbought <= cfg.StrategyRSIOversold || cfg.StrategyRSIOverbought > 100 || cfg.StrategyRSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}
	if cfg.StrategyMACDFastPeriod <= 0 || cfg.StrategyMACDSignalPeriod <= 0 || cfg.StrategyMACDSlowPeriod <= cfg.StrategyMACDFastPeriod {
		errs = append(errs, "invalid MACD periods (fast and signal must be positive, slow must exceed fast)")
	}

	// Persistence & reporting
	cfg.DBPath = getEnv("DB_PATH", "./data/paper_trader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}
	cfg.ReportDir = getEnv("REPORT_DIR", "./reports")
	cfg.SettingsPath = getEnv("SETTINGS_PATH", "./settings.yaml")

	// Roster: SYMBOLS/STRATEGIES env lists win over the settings file.
	cfg.Symbols = getEnvAsList("SYMBOLS")
	cfg.Strategies = getEnvAsList("STRATEGIES")
	if len(cfg.Symbols) == 0 || len(cfg.Strategies) == 0 {
		roster, rosterErr := loadRoster(cfg.SettingsPath)
		if rosterErr != nil && (len(cfg.Symbols) == 0 || len(cfg.Strategies) == 0) {
			errs = append(errs, fmt.Sprintf("loading roster: %v", rosterErr))
		}
		if roster != nil {
			if len(cfg.Symbols) == 0 {
				cfg.Symbols = roster.Symbols
			}
			if len(cfg.Strategies) == 0 {
				cfg.Strategies = roster.Strategies
			}
		}
	}
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "at least one symbol is required (SYMBOLS env or settings file)")
	}
	if len(cfg.Strategies) == 0 {
		errs = append(errs, "at least one strategy is required (STRATEGIES env or settings file)")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "json"))
	if cfg.LogFormat != "json" && cfg.LogFormat != "std" {
		errs = append(errs, fmt.Sprintf("invalid LOG_FORMAT '%s' (want 'json' or 'std')", cfg.LogFormat))
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// loadRoster reads the YAML symbol/strategy roster.
func loadRoster(path string) (*rosterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file '%s': %w", path, err)
	}
	var roster rosterFile
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parsing settings file '%s': %w", path, err)
	}
	return &roster, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
