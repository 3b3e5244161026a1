package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qyquant/internal/ports"
)

// GetJSON reads key and decodes it into dst. A value that no longer decodes
// is reported as a miss.
func GetJSON(ctx context.Context, c ports.Cache, key string, dst any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, nil
	}
	return true, nil
}

// SetJSON encodes v as compact JSON and stores it under key.
func SetJSON(ctx context.Context, c ports.Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value for %q: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
