// Package cache keeps hot read paths off the primary store.
//
// LocationCache tracks each listener's last-known tile set in Redis so the
// distribution engine can cross-reference "who is standing at this tile right
// now" without a per-listener DB round trip. Entries expire on their own: a
// listener that stopped reporting locations simply drops out of push targeting.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const locationKeyPrefix = "listener:tiles:"

// LocationCache last-known tile set per listener.
type LocationCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLocationCache(rdb *redis.Client, ttl time.Duration) *LocationCache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &LocationCache{rdb: rdb, ttl: ttl}
}

// SetTiles records the listener's current tile set (center + neighbor ring).
func (c *LocationCache) SetTiles(ctx context.Context, listenerID string, tiles []string) error {
	payload, err := json.Marshal(tiles)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, locationKeyPrefix+listenerID, payload, c.ttl).Err()
}

// GetTiles returns the last-known tile set, or nil when unknown/expired.
func (c *LocationCache) GetTiles(ctx context.Context, listenerID string) ([]string, error) {
	data, err := c.rdb.Get(ctx, locationKeyPrefix+listenerID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tiles []string
	if err := json.Unmarshal(data, &tiles); err != nil {
		return nil, err
	}
	return tiles, nil
}

// ListenersAt filters the given listeners down to those whose last-known tile
// set contains the tile. One MGET for the whole audience slice.
func (c *LocationCache) ListenersAt(ctx context.Context, listenerIDs []string, tileAddress string) ([]string, error) {
	if len(listenerIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(listenerIDs))
	for i, id := range listenerIDs {
		keys[i] = locationKeyPrefix + id
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	var out []string
	for i, v := range vals {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		var tiles []string
		if err := json.Unmarshal([]byte(str), &tiles); err != nil {
			continue
		}
		for _, t := range tiles {
			if t == tileAddress {
				out = append(out, listenerIDs[i])
				break
			}
		}
	}
	return out, nil
}

// Drop removes a listener's cached location (logout / tracking disabled).
func (c *LocationCache) Drop(ctx context.Context, listenerID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("%s%s", locationKeyPrefix, listenerID)).Err()
}
