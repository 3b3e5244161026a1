package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"qyquant/internal/ports"
)

// RedisCache is the networked ports.Cache backend. Expiry is delegated to
// redis itself.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Name implements ports.Cache.
func (c *RedisCache) Name() string { return "redis" }

// Get implements ports.Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %q: %w: %w", key, ports.ErrCacheUnavailable, err)
	}
	return data, true, nil
}

// Set implements ports.Cache. A ttl <= 0 stores the key without expiry.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var err error
	if ttl > 0 {
		err = c.client.SetEx(ctx, key, value, ttl).Err()
	} else {
		err = c.client.Set(ctx, key, value, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("redis set %q: %w: %w", key, ports.ErrCacheUnavailable, err)
	}
	return nil
}

// Ping checks liveness of the underlying server.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client connections.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
