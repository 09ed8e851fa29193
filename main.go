package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

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

func newLogger(cfg *config.Config) ports.Logger {
	if cfg.LogFormat == "std" {
		return logger.NewStdLogger(cfg.LogLevel)
	}
	return logger.NewZerologLogger(cfg.LogLevel)
}

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := newLogger(cfg)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Apply the candle policy before any strategy runs
	domain.SetClosedCandlesOnly(cfg.ClosedCandlesOnly)

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 5. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 6. Initialize Reporting
	csvReporter, err := report.New(report.Config{
		Logger:         appLogger,
		Dir:            cfg.ReportDir,
		InitialBalance: cfg.InitialBalance,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize CSV reporter")
		log.Fatalf("FATAL: Failed to initialize CSV reporter: %v", err)
	}
	sink := report.MultiSink{csvReporter, report.NewDBSink(appLogger, repo)}

	// 7. Initialize the Paper Account and Ledger
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
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize risk manager")
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
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade ledger")
		log.Fatalf("FATAL: Failed to initialize trade ledger: %v", err)
	}

	// 8. Build Strategies
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
		appLogger.Error(context.Background(), err, "FATAL: Failed to build strategies")
		log.Fatalf("FATAL: Failed to build strategies: %v", err)
	}

	// 9. Initialize and run the Orchestrator
	orch, err := orchestrator.New(orchestrator.Config{
		Logger:           appLogger,
		Market:           binanceClient,
		Ledger:           tradeLedger,
		Report:           sink,
		Symbols:          cfg.Symbols,
		Interval:         cfg.Interval,
		Strategies:       strats,
		PrefetchSnapshot: cfg.PrefetchSnapshot,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize orchestrator")
		log.Fatalf("FATAL: Failed to initialize orchestrator: %v", err)
	}

	// A termination signal cancels the context; the orchestrator liquidates
	// open positions before returning.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Run(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Orchestrator exited with error")
		log.Fatalf("FATAL: Orchestrator exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Shutdown complete", map[string]interface{}{
		"finalBalance": paperWallet.Balance(),
		"closedTrades": len(tradeLedger.ClosedTrades()),
	})
}
