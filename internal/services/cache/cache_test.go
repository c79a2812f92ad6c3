package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/config"
)

func newTestCache(t *testing.T, maxEntries, ttlSeconds int) *Cache {
	t.Helper()
	c := New(config.CacheConfig{MaxEntries: maxEntries, TTLSeconds: ttlSeconds}, zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func TestCacheGetLoadsOnceAndCaches(t *testing.T) {
	c := newTestCache(t, 10, 60)

	loads := 0
	load := func(ctx context.Context) (interface{}, error) {
		loads++
		return "record", nil
	}

	v, err := c.Get(context.Background(), NamespaceKey, "k1", load)
	require.NoError(t, err)
	assert.Equal(t, "record", v)
	assert.Equal(t, 1, loads)

	v, err = c.Get(context.Background(), NamespaceKey, "k1", load)
	require.NoError(t, err)
	assert.Equal(t, "record", v)
	assert.Equal(t, 1, loads, "second get must be served from cache")
}

func TestCacheLoadErrorNotCached(t *testing.T) {
	c := newTestCache(t, 10, 60)

	loads := 0
	failing := func(ctx context.Context) (interface{}, error) {
		loads++
		return nil, errors.New("store down")
	}

	_, err := c.Get(context.Background(), NamespaceAccount, "a1", failing)
	require.Error(t, err)

	_, err = c.Get(context.Background(), NamespaceAccount, "a1", failing)
	require.Error(t, err)
	assert.Equal(t, 2, loads, "errors must not be cached")
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	c := newTestCache(t, 10, 60)

	loads := 0
	load := func(ctx context.Context) (interface{}, error) {
		loads++
		return loads, nil
	}

	v, err := c.Get(context.Background(), NamespacePrice, "gpt-4o", load)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	c.Invalidate(NamespacePrice, "gpt-4o")

	v, err = c.Get(context.Background(), NamespacePrice, "gpt-4o", load)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestCacheInvalidateUnknownNamespaceIgnored(t *testing.T) {
	c := newTestCache(t, 10, 60)
	// Must not panic.
	c.Invalidate("no_such_namespace", "x")
}

func TestCacheTTLExpiry(t *testing.T) {
	c := newTestCache(t, 10, 1)

	loads := 0
	load := func(ctx context.Context) (interface{}, error) {
		loads++
		return loads, nil
	}

	_, err := c.Get(context.Background(), NamespaceKey, "k1", load)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	v, err := c.Get(context.Background(), NamespaceKey, "k1", load)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "expired entry must be reloaded")
}

func TestCacheCapacityEviction(t *testing.T) {
	c := newTestCache(t, 2, 60)

	ctx := context.Background()
	static := func(v string) LoadFunc {
		return func(context.Context) (interface{}, error) { return v, nil }
	}

	_, err := c.Get(ctx, NamespaceKey, "a", static("a"))
	require.NoError(t, err)
	_, err = c.Get(ctx, NamespaceKey, "b", static("b"))
	require.NoError(t, err)
	_, err = c.Get(ctx, NamespaceKey, "c", static("c"))
	require.NoError(t, err)

	stats := c.Stats()
	var keyStats Stats
	for _, s := range stats {
		if s.Namespace == NamespaceKey {
			keyStats = s
		}
	}
	assert.Equal(t, 2, keyStats.Entries, "capacity must hold")
	assert.Equal(t, int64(1), keyStats.Evictions)
}

func TestCacheSingleflightDedupesConcurrentMisses(t *testing.T) {
	c := newTestCache(t, 10, 60)

	var loads atomic.Int32
	slow := func(ctx context.Context) (interface{}, error) {
		loads.Add(1)
		time.Sleep(50 * time.Millisecond)
		return "record", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), NamespaceAccount, "hot", slow)
			assert.NoError(t, err)
			assert.Equal(t, "record", v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load(), "concurrent misses must share one load")
}

func TestCacheStatsCoverAllNamespaces(t *testing.T) {
	c := newTestCache(t, 10, 60)

	stats := c.Stats()
	require.Len(t, stats, 3)
	names := []string{stats[0].Namespace, stats[1].Namespace, stats[2].Namespace}
	assert.Equal(t, []string{NamespaceKey, NamespaceAccount, NamespacePrice}, names)
}
