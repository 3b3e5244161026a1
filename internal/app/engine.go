// Package app wires configuration into the backtest engine and the HTTP
// service built around it.
package app

import (
	"context"
	"fmt"
	"io"

	"qyquant/config"
	"qyquant/internal/adapters/binanceclient"
	"qyquant/internal/adapters/cache"
	"qyquant/internal/adapters/freegold"
	"qyquant/internal/backtest"
	"qyquant/internal/marketdata"
	"qyquant/internal/ports"
)

// Engine holds the process-wide cache, the configured provider and the
// runner on top of it. Build one per process and share it.
type Engine struct {
	Cache    ports.Cache
	Provider ports.MarketDataProvider
	Runner   *backtest.Runner
	logger   ports.Logger
}

// NewEngine selects the cache backend, builds both vendor clients and
// resolves the configured provider. An unknown provider alias is fatal.
func NewEngine(ctx context.Context, cfg *config.Config, logger ports.Logger) (*Engine, error) {
	if cfg == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}

	store := cache.New(ctx, cache.Config{
		RedisURL:     cfg.RedisURL,
		ProbeTimeout: cfg.CacheProbeTimeout,
		Logger:       logger,
	})
	e := &Engine{Cache: store, logger: logger}

	binance, err := binanceclient.New(binanceclient.Config{
		BaseURL:       cfg.BinanceBaseURL,
		Timeout:       cfg.BinanceTimeout,
		KlineCacheTTL: cfg.BinanceKlineCacheTTL,
		PriceCacheTTL: cfg.BinancePriceCacheTTL,
		Cache:         store,
		Logger:        logger,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create Binance client: %w", err)
	}
	gold, err := freegold.New(freegold.Config{
		BaseURL:      cfg.FreeGoldBaseURL,
		Timeout:      cfg.FreeGoldTimeout,
		DataCacheTTL: cfg.FreeGoldDataCacheTTL,
		Cache:        store,
		Logger:       logger,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create FreeGold client: %w", err)
	}

	e.Provider, err = marketdata.New(marketdata.Config{
		Provider: cfg.DataProvider,
		Binance:  binance,
		Gold:     gold,
		Logger:   logger,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create market data provider: %w", err)
	}

	e.Runner, err = backtest.NewRunner(backtest.Config{
		Provider:     e.Provider,
		Logger:       logger,
		DefaultLimit: cfg.BacktestDefaultLimit,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the cache backend connection, if any.
func (e *Engine) Close() error {
	if closer, ok := e.Cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			e.logger.Error(context.Background(), err, "Error closing cache backend")
			return err
		}
	}
	return nil
}
