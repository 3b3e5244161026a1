package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means never
}

// MemoryCache is the in-process ports.Cache backend. A single mutex guards
// the whole map; expired entries are evicted lazily on read.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

// NewMemoryCacheWithClock is NewMemoryCache with an injected clock.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	c := NewMemoryCache()
	if now != nil {
		c.now = now
	}
	return c
}

// Name implements ports.Cache.
func (c *MemoryCache) Name() string { return "memory" }

// Get implements ports.Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && !now.Before(item.expiresAt) {
		delete(c.items, key)
		return nil, false, nil
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, true, nil
}

// Set implements ports.Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	c.mu.Lock()
	c.items[key] = memoryEntry{value: stored, expiresAt: expiresAt}
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included until
// they are read.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
