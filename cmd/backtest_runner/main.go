package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"cryptoPaperTrader/config"
	"cryptoPaperTrader/internal/adapters/binanceclient"
	"cryptoPaperTrader/internal/adapters/logger"
	"cryptoPaperTrader/internal/adapters/sqlite"
	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/ledger"
	"cryptoPaperTrader/internal/orchestrator"
	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/report"
	"cryptoPaperTrader/internal/risk"
	"cryptoPaperTrader/internal/strategies"
	"cryptoPaperTrader/internal/wallet"
)

const dateLayout = "2006-01-02"

func main() {
	var (
		startStr = flag.String("start", "", "replay window start (YYYY-MM-DD); default 3 months ago")
		endStr   = flag.String("end", "", "replay window end (YYYY-MM-DD); default now")
		dataDir  = flag.String("data", "", "load candles from <data>/<SYMBOL>_<interval>.csv instead of fetching")
	)
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	if cfg.LogFormat == "std" {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	} else {
		appLogger = logger.NewZerologLogger(cfg.LogLevel)
	}
	ctx := context.Background()

	// Replays always act on final candles.
	domain.SetClosedCandlesOnly(cfg.ClosedCandlesOnly)

	end := time.Now().UTC()
	if *endStr != "" {
		if end, err = time.Parse(dateLayout, *endStr); err != nil {
			log.Fatalf("FATAL: invalid -end date: %v", err)
		}
	}
	start := end.AddDate(0, -3, 0)
	if *startStr != "" {
		if start, err = time.Parse(dateLayout, *startStr); err != nil {
			log.Fatalf("FATAL: invalid -start date: %v", err)
		}
	}
	if !start.Before(end) {
		log.Fatalf("FATAL: -start must be before -end")
	}

	// 3. Load the candle series per symbol
	series, err := loadSeries(ctx, appLogger, cfg, *dataDir, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load candle data")
		log.Fatalf("FATAL: Failed to load candle data: %v", err)
	}

	// 4. Initialize Repository and Reporting
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	csvReporter, err := report.New(report.Config{
		Logger:         appLogger,
		Dir:            cfg.ReportDir,
		InitialBalance: cfg.InitialBalance,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize CSV reporter")
		log.Fatalf("FATAL: Failed to initialize CSV reporter: %v", err)
	}
	sink := report.MultiSink{csvReporter, report.NewDBSink(appLogger, repo)}

	// 5. Paper account, ledger and strategies
	paperWallet := wallet.New(cfg.InitialBalance)
	riskManager, err := risk.NewManager(risk.Config{
		DefaultMargin:       cfg.DefaultMargin,
		MaxOpenTrades:       cfg.MaxOpenTrades,
		MaxExposure:         cfg.MaxExposure,
		TakeProfitPercent:   cfg.TakeProfitPercent,
		StopLossPercent:     cfg.StopLossPercent,
		TrailingStopPercent: cfg.TrailingStopPercent,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}
	tradeLedger, err := ledger.New(ledger.Config{
		Logger:   appLogger,
		Wallet:   paperWallet,
		Risk:     riskManager,
		Report:   sink,
		Leverage: cfg.Leverage,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trade ledger: %v", err)
	}

	// The market provider is only used by strategies that fetch their own
	// data; replays feed candles directly.
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	strats, err := strategies.Build(cfg.Strategies, strategies.Deps{
		Logger:   appLogger,
		Executor: tradeLedger,
		Market:   binanceClient,
		Config: strategies.Config{
			ShortMAPeriod:    cfg.StrategyShortMAPeriod,
			LongMAPeriod:     cfg.StrategyLongMAPeriod,
			RSIPeriod:        cfg.StrategyRSIPeriod,
			RSIOverbought:    cfg.StrategyRSIOverbought,
			RSIOversold:      cfg.StrategyRSIOversold,
			MACDFastPeriod:   cfg.StrategyMACDFastPeriod,
			MACDSlowPeriod:   cfg.StrategyMACDSlowPeriod,
			MACDSignalPeriod: cfg.StrategyMACDSignalPeriod,
		},
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to build strategies: %v", err)
	}

	// 6. Run the replay
	orch, err := orchestrator.New(orchestrator.Config{
		Logger:     appLogger,
		Market:     binanceClient,
		Ledger:     tradeLedger,
		Report:     sink,
		Symbols:    cfg.Symbols,
		Interval:   cfg.Interval,
		Strategies: strats,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize orchestrator: %v", err)
	}

	if err := orch.RunBacktest(ctx, series); err != nil {
		appLogger.Error(ctx, err, "Backtest failed")
		log.Fatalf("FATAL: Backtest failed: %v", err)
	}

	summary := report.Summarize(tradeLedger.ClosedTrades(), cfg.InitialBalance)
	appLogger.Info(ctx, "Backtest complete", map[string]interface{}{
		"runID":        csvReporter.RunID(),
		"trades":       summary.TotalTrades,
		"winRate":      summary.WinRate,
		"netProfit":    summary.NetProfit,
		"roi":          summary.ROI,
		"finalBalance": paperWallet.Balance(),
	})
}

// loadSeries reads one candle sequence per configured symbol, either from
// CSV files or from the exchange.
func loadSeries(ctx context.Context, appLogger ports.Logger, cfg *config.Config, dataDir string, start, end time.Time) (map[string][]*domain.Kline, error) {
	series := make(map[string][]*domain.Kline, len(cfg.Symbols))

	if dataDir != "" {
		for _, symbol := range cfg.Symbols {
			path := filepath.Join(dataDir, fmt.Sprintf("%s_%s.csv", symbol, cfg.Interval))
			klines, err := report.ReadKlinesFromCSV(path)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
			appLogger.Info(ctx, "Loaded candles from CSV", map[string]interface{}{"symbol": symbol, "count": len(klines), "path": path})
			series[symbol] = klines
		}
		return series, nil
	}

	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		return nil, err
	}
	for _, symbol := range cfg.Symbols {
		klines, err := binanceClient.FetchHistoricalCandles(ctx, symbol, cfg.Interval, start, end)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", symbol, err)
		}
		appLogger.Info(ctx, "Fetched candles", map[string]interface{}{"symbol": symbol, "count": len(klines)})
		series[symbol] = klines
	}
	return series, nil
}
