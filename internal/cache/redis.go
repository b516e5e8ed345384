package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultQueryTimeout = 500 * time.Millisecond

// RedisCache shares cached generations across gateway replicas.
//
// Reads degrade to a miss when Redis is unavailable so the gateway keeps
// calling the vendor. Write failures are returned; the gateway logs and
// counts them without failing the call.
type RedisCache struct {
	client       *redis.Client
	queryTimeout time.Duration
}

// NewRedisCache wraps a client owned by the caller.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, queryTimeout: defaultQueryTimeout}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "cache_get_error",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: del %s: %w", key, err)
	}
	return nil
}
