package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qyquant/internal/ports"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestRedisCache_GetSet(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestRedisCache(t)

	_, ok, err := rc.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rc.Set(ctx, "k", []byte(`{"price":1}`), 5*time.Second))
	got, ok, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"price":1}`, string(got))
	assert.Equal(t, 5*time.Second, mr.TTL("k"))
}

func TestRedisCache_ExpiryDelegatedToServer(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestRedisCache(t)

	require.NoError(t, rc.Set(ctx, "k", []byte("v"), 2*time.Second))
	mr.FastForward(3 * time.Second)

	_, ok, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_ZeroTTLHasNoExpiry(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestRedisCache(t)

	require.NoError(t, rc.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, time.Duration(0), mr.TTL("k"))
}

func TestRedisCache_ServerDown(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rc := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	defer rc.Close()
	mr.Close()

	_, _, err = rc.Get(ctx, "k")
	assert.ErrorIs(t, err, ports.ErrCacheUnavailable)
	assert.ErrorIs(t, rc.Set(ctx, "k", []byte("v"), 0), ports.ErrCacheUnavailable)
}
