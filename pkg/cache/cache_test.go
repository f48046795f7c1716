package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryCleanup(0))
	defer c.Close()

	require.NoError(t, c.Set(ctx, "quote:AAPL", `{"symbol":"AAPL","price":190.5}`, time.Minute))
	var raw string
	require.NoError(t, c.Get(ctx, "quote:AAPL", &raw))
	assert.Contains(t, raw, "AAPL")

	var q quote
	require.NoError(t, c.Get(ctx, "quote:AAPL", &q))
	assert.Equal(t, quote{Symbol: "AAPL", Price: 190.5}, q)

	require.NoError(t, c.Set(ctx, "quote:MSFT", quote{Symbol: "MSFT", Price: 410}, 0))
	require.NoError(t, c.Get(ctx, "quote:MSFT", &q))
	assert.Equal(t, 410.0, q.Price)

	require.NoError(t, c.Delete(ctx, "quote:AAPL"))
	assert.ErrorIs(t, c.Get(ctx, "quote:AAPL", &raw), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryCleanup(0), WithMemoryMaxTTL(20*time.Millisecond))
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", "v", time.Hour))
	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	var v string
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrCacheMiss)
	ok, err = c.Expire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryCleanup(0), WithMemoryMaxSize(2))
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	time.Sleep(time.Millisecond)
	var v string
	require.NoError(t, c.Get(ctx, "a", &v))
	require.NoError(t, c.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, c.Len())
	assert.ErrorIs(t, c.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "a", &v))
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryCleanup(0))
	defer c.Close()

	ok, err := c.TryLock(ctx, "lease", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.TryLock(ctx, "lease", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Unlock(ctx, "lease"))
	ok, err = c.TryLock(ctx, "lease", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLayeredCacheReadsThrough(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache(WithMemoryCleanup(0))
	lc := NewLayeredCache(remote, WithLayeredMemorySize(10))
	defer lc.Close()

	require.NoError(t, remote.Set(ctx, "quote:IBM", `{"symbol":"IBM","price":200}`, time.Minute))
	var q quote
	require.NoError(t, lc.Get(ctx, "quote:IBM", &q))
	assert.Equal(t, "IBM", q.Symbol)

	require.NoError(t, lc.Set(ctx, "quote:SAP", "x", time.Minute))
	var v string
	require.NoError(t, remote.Get(ctx, "quote:SAP", &v))
	assert.Equal(t, "x", v)

	require.NoError(t, lc.Delete(ctx, "quote:IBM"))
	assert.ErrorIs(t, lc.Get(ctx, "quote:IBM", &q), ErrCacheMiss)
}

func TestNewBackends(t *testing.T) {
	c, err := New(Config{Backend: "memory", MemoryMaxSize: 10}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = New(Config{Backend: "redis"}, nil)
	assert.Error(t, err)
	_, err = New(Config{Backend: "disk"}, nil)
	assert.Error(t, err)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "quote:AAPL", GenerateKey("quote", "AAPL"))
	assert.Equal(t, "desk:snap:lease", GenerateKey("desk", "snap", "lease"))
}
