package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"qyquant/internal/adapters/logger" // Import the logger package for LogLevel
	"qyquant/internal/marketdata"
	"qyquant/internal/ports"
)

const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
)

// Config holds all application configuration.
type Config struct {
	AppEnv   string
	LogLevel logger.LogLevel
	HTTPAddr string

	// DataProvider is the market data provider alias, see marketdata.ResolveKind.
	DataProvider string

	// Binance
	BinanceBaseURL       string
	BinanceTimeout       time.Duration
	BinanceKlineCacheTTL time.Duration
	BinancePriceCacheTTL time.Duration

	// FreeGold
	FreeGoldBaseURL      string
	FreeGoldTimeout      time.Duration
	FreeGoldDataCacheTTL time.Duration

	// Cache
	RedisURL          string // empty selects the in-process cache
	CacheProbeTimeout time.Duration

	// Database
	DBPath string

	// Jobs
	JobWorkers           int
	JobResultTTL         time.Duration
	BacktestDefaultLimit int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.AppEnv = strings.ToLower(getEnv("APP_ENV", EnvDevelopment))
	switch cfg.AppEnv {
	case EnvDevelopment, EnvTesting, EnvProduction:
	default:
		errs = append(errs, fmt.Sprintf("APP_ENV must be one of %s, %s, %s", EnvDevelopment, EnvTesting, EnvProduction))
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	defaultProvider := "auto"
	if cfg.AppEnv == EnvTesting {
		defaultProvider = "mock"
	}
	cfg.DataProvider = strings.ToLower(strings.TrimSpace(getEnv("BACKTEST_DATA_PROVIDER", defaultProvider)))
	if _, err := marketdata.ResolveKind(cfg.DataProvider); err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKTEST_DATA_PROVIDER: %v", err))
	}

	// Binance
	cfg.BinanceBaseURL = getEnv("BINANCE_BASE_URL", "https://api.binance.com")
	cfg.BinanceTimeout, err = getEnvAsSecondsRequired("BINANCE_API_TIMEOUT", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BINANCE_API_TIMEOUT: %v", err))
	} else if cfg.BinanceTimeout <= 0 {
		errs = append(errs, "BINANCE_API_TIMEOUT must be positive")
	}
	cfg.BinanceKlineCacheTTL, err = getEnvAsSecondsRequired("BINANCE_KLINE_CACHE_TTL", 300)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BINANCE_KLINE_CACHE_TTL: %v", err))
	} else if cfg.BinanceKlineCacheTTL < 0 {
		errs = append(errs, "BINANCE_KLINE_CACHE_TTL cannot be negative")
	}
	cfg.BinancePriceCacheTTL, err = getEnvAsSecondsRequired("BINANCE_PRICE_CACHE_TTL", 2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BINANCE_PRICE_CACHE_TTL: %v", err))
	} else if cfg.BinancePriceCacheTTL < 0 {
		errs = append(errs, "BINANCE_PRICE_CACHE_TTL cannot be negative")
	}

	// FreeGold
	cfg.FreeGoldBaseURL = getEnv("FREEGOLD_BASE_URL", "https://freegoldapi.com")
	cfg.FreeGoldTimeout, err = getEnvAsSecondsRequired("FREEGOLD_API_TIMEOUT", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FREEGOLD_API_TIMEOUT: %v", err))
	} else if cfg.FreeGoldTimeout <= 0 {
		errs = append(errs, "FREEGOLD_API_TIMEOUT must be positive")
	}
	cfg.FreeGoldDataCacheTTL, err = getEnvAsSecondsRequired("FREEGOLD_DATA_CACHE_TTL", 21600)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FREEGOLD_DATA_CACHE_TTL: %v", err))
	} else if cfg.FreeGoldDataCacheTTL < 0 {
		errs = append(errs, "FREEGOLD_DATA_CACHE_TTL cannot be negative")
	}

	// Cache
	cfg.RedisURL = strings.TrimSpace(getEnv("REDIS_URL", ""))
	cfg.CacheProbeTimeout, err = getEnvAsSecondsRequired("CACHE_PROBE_TIMEOUT", 2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CACHE_PROBE_TIMEOUT: %v", err))
	} else if cfg.CacheProbeTimeout <= 0 {
		errs = append(errs, "CACHE_PROBE_TIMEOUT must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/backtests.db")

	// Jobs
	cfg.JobWorkers, err = getEnvAsIntRequired("JOB_WORKERS", 2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid JOB_WORKERS: %v", err))
	} else if cfg.JobWorkers <= 0 {
		errs = append(errs, "JOB_WORKERS must be positive")
	}
	cfg.JobResultTTL, err = getEnvAsSecondsRequired("JOB_RESULT_TTL", 3600)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid JOB_RESULT_TTL: %v", err))
	} else if cfg.JobResultTTL <= 0 {
		errs = append(errs, "JOB_RESULT_TTL must be positive")
	}
	cfg.BacktestDefaultLimit = getEnvAsInt("BACKTEST_DEFAULT_LIMIT", 120)
	if cfg.BacktestDefaultLimit <= 0 {
		errs = append(errs, "BACKTEST_DEFAULT_LIMIT must be positive")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s: %w", strings.Join(errs, "; "), ports.ErrConfigurationError)
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
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

// getEnvAsSecondsRequired reads a (possibly fractional) number of seconds.
func getEnvAsSecondsRequired(key string, defaultSeconds float64) (time.Duration, error) {
	seconds, err := getEnvAsFloatRequired(key, defaultSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
