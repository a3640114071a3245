package utils

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Default cache ttl set to 3600 seconds
	defaultCacheTTL = time.Hour
)

// RedisCache stores opaque byte payloads in redis.
type RedisCache struct {
	rc *redis.Client
}

// NewRedisCache wraps rc. A nil client yields a cache that always misses.
func NewRedisCache(rc *redis.Client) *RedisCache {
	return &RedisCache{rc: rc}
}

// GetBytes returns cached bytes for a key.
func (c *RedisCache) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	if c.rc == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := c.rc.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			Sugar.Debugf("cache get failed key=%s err=%v", key, err)
		}
		return nil, false
	}
	return b, true
}

// SetBytes stores bytes, using the default TTL when ttl is not positive.
func (c *RedisCache) SetBytes(ctx context.Context, key string, b []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if c.rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.rc.Set(ctx, key, b, ttl).Err(); err != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// InvalidateByPrefix deletes keys that match the given prefix using SCAN.
func (c *RedisCache) InvalidateByPrefix(ctx context.Context, prefix string) {
	if c.rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var cursor uint64
	for i := 0; i < 10; i++ { // limit rounds to avoid long loops
		keys, cur, err := c.rc.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			Sugar.Warnf("cache invalidate failed prefix=%s err=%v", prefix, err)
			break
		}
		cursor = cur
		if len(keys) > 0 {
			pipe := c.rc.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			_, _ = pipe.Exec(ctx)
		}
		if cursor == 0 {
			break
		}
	}
}

// NopCache never stores anything. It is used when redis caching is disabled.
type NopCache struct{}

func (NopCache) GetBytes(context.Context, string) ([]byte, bool) { return nil, false }

func (NopCache) SetBytes(context.Context, string, []byte, time.Duration) {}

func (NopCache) InvalidateByPrefix(context.Context, string) {}
