package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"qyquant/internal/ports"
)

const defaultProbeTimeout = 2 * time.Second

// Config controls backend selection.
type Config struct {
	RedisURL     string        // empty selects the in-process backend
	ProbeTimeout time.Duration // liveness probe deadline
	Logger       ports.Logger
}

// New selects the cache backend once at startup. A configured and reachable
// redis wins; every other outcome falls back to the in-process backend.
// New never fails: probe errors are logged and mapped to the fallback.
func New(ctx context.Context, cfg Config) ports.Cache {
	logger := cfg.Logger
	if logger == nil {
		logger = ports.NopLogger{}
	}
	url := strings.TrimSpace(cfg.RedisURL)
	if url == "" {
		logger.Info(ctx, "Cache backend selected", map[string]interface{}{"backend": "memory", "reason": "REDIS_URL not set"})
		return NewMemoryCache()
	}

	rc, err := probeRedis(ctx, url, cfg.ProbeTimeout)
	if err != nil {
		logger.Warn(ctx, "Redis unavailable, falling back to memory cache", map[string]interface{}{"error": err.Error()})
		return NewMemoryCache()
	}
	logger.Info(ctx, "Cache backend selected", map[string]interface{}{"backend": "redis"})
	return rc
}

// probeRedis builds a client for url and requires one successful PING.
func probeRedis(ctx context.Context, url string, timeout time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	client := redis.NewClient(opts)
	rc := NewRedisCache(client)

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rc.Ping(probeCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rc, nil
}
