package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgeCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewBadgeCache(rdb, time.Minute)
	ctx := context.Background()

	_, hit, err := c.Get(ctx, "l1")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "l1", 7))
	n, hit, err := c.Get(ctx, "l1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.EqualValues(t, 7, n)

	require.NoError(t, c.Invalidate(ctx, "l1"))
	_, hit, err = c.Get(ctx, "l1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestBadgeCacheExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewBadgeCache(rdb, time.Second)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "l1", 3))
	mr.FastForward(2 * time.Second)
	_, hit, err := c.Get(ctx, "l1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestBadgeCacheCorruptValueIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewBadgeCache(rdb, time.Minute)

	require.NoError(t, mr.Set(badgeKeyPrefix+"l1", "not-a-number"))
	_, hit, err := c.Get(context.Background(), "l1")
	require.NoError(t, err)
	assert.False(t, hit)
}
