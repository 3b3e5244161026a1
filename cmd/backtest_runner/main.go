package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"qyquant/config"
	"qyquant/internal/adapters/logger"
	"qyquant/internal/app"
	"qyquant/internal/backtest"
)

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "instrument symbol, e.g. BTCUSDT or XAUUSD")
	interval := flag.String("interval", "", "bar interval, e.g. 1h or 1d")
	limit := flag.Int("limit", 0, "number of bars (0 uses BACKTEST_DEFAULT_LIMIT)")
	start := flag.String("start", "", "window start: epoch seconds/ms or ISO-8601")
	end := flag.String("end", "", "window end: epoch seconds/ms or ISO-8601")
	timeout := flag.Duration("timeout", time.Minute, "overall run timeout")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// Logs go to stderr so stdout stays valid JSON.
	appLogger := logger.New(os.Stderr, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// 2. Initialize Engine
	engine, err := app.NewEngine(ctx, cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize backtest engine: %v", err)
	}
	defer engine.Close()

	// 3. Run
	result, err := engine.Runner.Run(ctx, backtest.Request{
		Symbol:   *symbol,
		Interval: *interval,
		Limit:    *limit,
		Start:    *start,
		End:      *end,
	})
	if err != nil {
		appLogger.Error(ctx, err, "Backtest failed", map[string]interface{}{"symbol": *symbol})
		engine.Close()
		log.Fatalf("Backtest failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("Error encoding result: %v", err)
	}
}
