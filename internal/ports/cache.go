package ports

import (
	"context"
	"time"
)

// Cache is a key/value store with per-entry TTL.
type Cache interface {
	// Get returns the stored value and true, or false on a miss.
	// Entries past their expiry behave as misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. A ttl <= 0 means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Name identifies the backend ("memory", "redis").
	Name() string
}
