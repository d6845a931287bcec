package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestTwoTierCacheLocalHit(t *testing.T) {
	c, err := newTwoTierCache(8, nil, time.Minute, 3, 100*time.Millisecond, nil)
	require.NoError(t, err)

	ctx := context.Background()
	key := cacheKey("model-a", "hello world")
	c.Set(ctx, key, []float32{0.1, 0.2, 0.3})

	vec, ok := c.Get(ctx, key)
	require.True(t, ok)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestTwoTierCacheMissWhenAbsent(t *testing.T) {
	c, err := newTwoTierCache(8, nil, time.Minute, 3, 100*time.Millisecond, nil)
	require.NoError(t, err)

	_, ok := c.Get(context.Background(), cacheKey("model-a", "nope"))
	require.False(t, ok)
}

func TestTwoTierCacheRedisTierPopulatesLocal(t *testing.T) {
	client := newTestRedis(t)
	c, err := newTwoTierCache(8, client, time.Minute, 3, 200*time.Millisecond, nil)
	require.NoError(t, err)

	ctx := context.Background()
	key := cacheKey("model-a", "shared text")
	c.Set(ctx, key, []float32{1, 2, 3})

	// Simulate a second process instance sharing only the Redis tier.
	other, err := newTwoTierCache(8, client, time.Minute, 3, 200*time.Millisecond, nil)
	require.NoError(t, err)

	require.False(t, other.local.Contains(key))
	vec, ok := other.Get(ctx, key)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, vec)
	require.True(t, other.local.Contains(key))
}

func TestTwoTierCacheDimensionMismatchIsMiss(t *testing.T) {
	c, err := newTwoTierCache(8, nil, time.Minute, 3, 100*time.Millisecond, nil)
	require.NoError(t, err)

	ctx := context.Background()
	key := cacheKey("model-a", "text")
	c.Set(ctx, key, []float32{1, 2, 3})

	wrongDim, err := newTwoTierCache(8, nil, time.Minute, 4, 100*time.Millisecond, nil)
	require.NoError(t, err)
	wrongDim.local = c.local // share the populated local tier to exercise the mismatch path

	_, ok := wrongDim.Get(ctx, key)
	require.False(t, ok)
}
