package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"qyquant/config"
	"qyquant/internal/adapters/logger"
	"qyquant/internal/app"
	"qyquant/internal/backtest"
	"qyquant/internal/utils"
)

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "instrument symbol")
	interval := flag.String("interval", "1h", "bar interval")
	limit := flag.Int("limit", 1000, "number of bars")
	start := flag.String("start", "", "window start: epoch seconds/ms or ISO-8601")
	end := flag.String("end", "", "window end: epoch seconds/ms or ISO-8601")
	out := flag.String("out", "", "output CSV path (default data/<symbol>_<interval>_<date>.csv)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// 3. Initialize Engine
	engine, err := app.NewEngine(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize backtest engine")
		log.Fatalf("FATAL: Failed to initialize backtest engine: %v", err)
	}
	defer engine.Close()

	req, err := engine.Runner.Normalize(backtest.Request{
		Symbol:   *symbol,
		Interval: *interval,
		Limit:    *limit,
		Start:    *start,
		End:      *end,
	})
	if err != nil {
		engine.Close()
		log.Fatalf("Invalid request: %v", err)
	}

	appLogger.Info(ctx, "Fetching bars", map[string]interface{}{
		"symbol":   req.Symbol,
		"interval": req.Interval,
		"provider": engine.Provider.Name(),
	})
	bars, err := engine.Provider.GetBars(ctx, req)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching bars")
		engine.Close()
		log.Fatalf("Error fetching bars: %v", err)
	}
	appLogger.Info(ctx, "Fetched bars", map[string]interface{}{"count": len(bars)})

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/%s_%s_%s.csv", req.Symbol, req.Interval, time.Now().UTC().Format("20060102"))
	}
	if err := utils.WriteBarsToCSV(bars, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		engine.Close()
		log.Fatalf("Error writing CSV: %v", err)
	}

	// Read the file back so a truncated or unparsable export fails loudly.
	written, err := utils.ReadBarsFromCSV(filename)
	if err != nil || len(written) != len(bars) {
		if err == nil {
			err = fmt.Errorf("expected %d bars, read back %d", len(bars), len(written))
		}
		appLogger.Error(ctx, err, "CSV verification failed", map[string]interface{}{"filename": filename})
		engine.Close()
		log.Fatalf("CSV verification failed: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename, "bars": len(written)})
}
