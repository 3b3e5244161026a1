package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestMemoryCache() (*MemoryCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMemoryCacheWithClock(clock.Now), clock
}

func TestMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemoryCache()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryCache_ExpiryEvictsOnRead(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestMemoryCache()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Second))
	clock.Advance(9 * time.Second)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "entry read at its expiry instant is a miss")
	assert.Equal(t, 0, c.Len(), "expired entry is evicted")
}

func TestMemoryCache_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestMemoryCache()

	require.NoError(t, c.Set(ctx, "forever", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "negative", []byte("2"), -time.Second))
	clock.Advance(24 * 365 * time.Hour)

	_, ok, _ := c.Get(ctx, "forever")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "negative")
	assert.True(t, ok)
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestMemoryCache()

	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	got, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
	got[1] = 'y'
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%20)
				_ = c.Set(ctx, key, []byte(fmt.Sprintf("%d-%d", w, i)), time.Minute)
				_, _, _ = c.Get(ctx, key)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 20, c.Len())
}
