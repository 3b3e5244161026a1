package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"qyquant/config"
	"qyquant/internal/adapters/logger"
	"qyquant/internal/app"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{
		"level": cfg.LogLevel.String(),
		"env":   cfg.AppEnv,
	})

	// 3. Initialize Service (cache, vendor clients, provider, repository, jobs, HTTP)
	service, err := app.NewService(context.Background(), cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize backtest service")
		log.Fatalf("FATAL: Failed to initialize backtest service: %v", err)
	}
	appLogger.Info(context.Background(), "Backtest service initialized", map[string]interface{}{
		"provider": cfg.DataProvider,
		"addr":     cfg.HTTPAddr,
	})

	// 4. Start the Service
	if err := service.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Backtest service exited with error")
		log.Fatalf("FATAL: Backtest service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
