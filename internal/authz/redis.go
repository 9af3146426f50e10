package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the shared cross-process Cache backend. Invalidation uses
// SCAN+DEL, so it is best-effort under concurrent writes, which matches
// the "eventually consistent within one TTL" contract.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps a redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (bool, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("authz: cache get: %w", err)
	}
	return val == "1", true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value bool, ttl time.Duration) error {
	val := "0"
	if value {
		val = "1"
	}
	if err := c.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("authz: cache set: %w", err)
	}
	return nil
}

// DeleteMatch implements Cache by scanning for the glob and deleting in
// batches.
func (c *RedisCache) DeleteMatch(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return fmt.Errorf("authz: cache scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("authz: cache delete: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
