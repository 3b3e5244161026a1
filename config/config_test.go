package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qyquant/internal/adapters/logger"
	"qyquant/internal/ports"
)

var allKeys = []string{
	"APP_ENV", "LOG_LEVEL", "HTTP_ADDR", "BACKTEST_DATA_PROVIDER",
	"BINANCE_BASE_URL", "BINANCE_API_TIMEOUT", "BINANCE_KLINE_CACHE_TTL", "BINANCE_PRICE_CACHE_TTL",
	"FREEGOLD_BASE_URL", "FREEGOLD_API_TIMEOUT", "FREEGOLD_DATA_CACHE_TTL",
	"REDIS_URL", "CACHE_PROBE_TIMEOUT", "DB_PATH",
	"JOB_WORKERS", "JOB_RESULT_TTL", "BACKTEST_DEFAULT_LIMIT",
}

// clearEnv blanks every key; getEnv treats empty values as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.AppEnv)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "auto", cfg.DataProvider)
	assert.Equal(t, "https://api.binance.com", cfg.BinanceBaseURL)
	assert.Equal(t, 10*time.Second, cfg.BinanceTimeout)
	assert.Equal(t, 300*time.Second, cfg.BinanceKlineCacheTTL)
	assert.Equal(t, 2*time.Second, cfg.BinancePriceCacheTTL)
	assert.Equal(t, "https://freegoldapi.com", cfg.FreeGoldBaseURL)
	assert.Equal(t, 10*time.Second, cfg.FreeGoldTimeout)
	assert.Equal(t, 6*time.Hour, cfg.FreeGoldDataCacheTTL)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 2*time.Second, cfg.CacheProbeTimeout)
	assert.Equal(t, "./data/backtests.db", cfg.DBPath)
	assert.Equal(t, 2, cfg.JobWorkers)
	assert.Equal(t, time.Hour, cfg.JobResultTTL)
	assert.Equal(t, 120, cfg.BacktestDefaultLimit)
}

func TestLoadConfig_TestingDefaultsToMock(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "testing")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.DataProvider)
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "Production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BACKTEST_DATA_PROVIDER", "XAU")
	t.Setenv("BINANCE_API_TIMEOUT", "2.5")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JOB_WORKERS", "8")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.AppEnv)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "xau", cfg.DataProvider)
	assert.Equal(t, 2500*time.Millisecond, cfg.BinanceTimeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 8, cfg.JobWorkers)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"unknown provider", map[string]string{"BACKTEST_DATA_PROVIDER": "kraken"}, "BACKTEST_DATA_PROVIDER"},
		{"unknown env", map[string]string{"APP_ENV": "staging"}, "APP_ENV"},
		{"bad timeout", map[string]string{"BINANCE_API_TIMEOUT": "soon"}, "BINANCE_API_TIMEOUT"},
		{"zero timeout", map[string]string{"FREEGOLD_API_TIMEOUT": "0"}, "FREEGOLD_API_TIMEOUT"},
		{"negative ttl", map[string]string{"BINANCE_KLINE_CACHE_TTL": "-1"}, "BINANCE_KLINE_CACHE_TTL"},
		{"bad workers", map[string]string{"JOB_WORKERS": "many"}, "JOB_WORKERS"},
		{"zero workers", map[string]string{"JOB_WORKERS": "0"}, "JOB_WORKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadConfig()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadConfig_CollectsAllErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKTEST_DATA_PROVIDER", "kraken")
	t.Setenv("JOB_WORKERS", "-1")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKTEST_DATA_PROVIDER")
	assert.Contains(t, err.Error(), "JOB_WORKERS")
}
