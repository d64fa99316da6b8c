package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const bookedKeyPrefix = "availability:booked:"

// RedisCache keeps booked slot lists as JSON strings with a TTL.
type RedisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisCache returns a cache on rdb. A non-positive ttl defaults to 30s.
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	if rdb == nil {
		panic("availability: redis client required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func bookedKey(doctorID string) string {
	return bookedKeyPrefix + doctorID
}

func (c *RedisCache) Get(ctx context.Context, doctorID string) ([]BookedSlot, bool, error) {
	raw, err := c.rdb.Get(ctx, bookedKey(doctorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("availability: redis get: %w", err)
	}
	var slots []BookedSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false, fmt.Errorf("availability: decode cached slots: %w", err)
	}
	return slots, true, nil
}

func (c *RedisCache) Set(ctx context.Context, doctorID string, slots []BookedSlot) error {
	if slots == nil {
		slots = []BookedSlot{}
	}
	payload, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("availability: encode slots: %w", err)
	}
	if err := c.rdb.Set(ctx, bookedKey(doctorID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("availability: redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, doctorID string) error {
	if err := c.rdb.Del(ctx, bookedKey(doctorID)).Err(); err != nil {
		return fmt.Errorf("availability: redis del: %w", err)
	}
	return nil
}
