package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const badgeKeyPrefix = "listener:badge:"

// BadgeCache caches per-listener unread counts so push-time badge lookups
// stay off the primary store. Entries are short-lived; writers invalidate
// on any mutation that changes the count, TTL covers the rest.
type BadgeCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewBadgeCache(rdb *redis.Client, ttl time.Duration) *BadgeCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &BadgeCache{rdb: rdb, ttl: ttl}
}

// Get returns (count, true) on a hit; a miss is (0, false) with nil error.
func (c *BadgeCache) Get(ctx context.Context, listenerID string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, badgeKeyPrefix+listenerID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil // treat corrupt value as a miss
	}
	return n, true, nil
}

func (c *BadgeCache) Set(ctx context.Context, listenerID string, count int64) error {
	return c.rdb.Set(ctx, badgeKeyPrefix+listenerID, strconv.FormatInt(count, 10), c.ttl).Err()
}

func (c *BadgeCache) Invalidate(ctx context.Context, listenerID string) error {
	return c.rdb.Del(ctx, badgeKeyPrefix+listenerID).Err()
}
