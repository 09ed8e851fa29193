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
	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/report"
)

const dateLayout = "2006-01-02"

func main() {
	var (
		startStr = flag.String("start", "", "fetch window start (YYYY-MM-DD); default 3 months ago")
		endStr   = flag.String("end", "", "fetch window end (YYYY-MM-DD); default now")
		outDir   = flag.String("out", "data", "output directory for CSV files")
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

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 4. Fetch and save each configured symbol. Files are named to line up
	// with what backtest_runner's -data flag expects.
	for _, symbol := range cfg.Symbols {
		appLogger.Info(ctx, "Fetching klines", map[string]interface{}{
			"symbol":   symbol,
			"interval": cfg.Interval,
			"start":    start.Format(dateLayout),
			"end":      end.Format(dateLayout),
		})
		klines, err := binanceClient.FetchHistoricalCandles(ctx, symbol, cfg.Interval, start, end)
		if err != nil {
			appLogger.Error(ctx, err, "Error fetching klines", map[string]interface{}{"symbol": symbol})
			log.Fatalf("Error fetching klines for %s: %v", symbol, err)
		}

		filename := filepath.Join(*outDir, fmt.Sprintf("%s_%s.csv", symbol, cfg.Interval))
		if err := report.WriteKlinesToCSV(filename, klines); err != nil {
			appLogger.Error(ctx, err, "Error writing CSV", map[string]interface{}{"filename": filename})
			log.Fatalf("Error writing CSV: %v", err)
		}
		appLogger.Info(ctx, "Saved klines", map[string]interface{}{"filename": filename, "count": len(klines)})
	}
}
