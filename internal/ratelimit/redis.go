// Package ratelimit provides fixed-window request limiters keyed by client.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// RedisLimiter shares its counters between every instance of the service.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: int64(limit), window: window}
}

// Allow counts one request for key. When the key is over its limit it returns
// false and the time until the window resets.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := keyPrefix + key

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr %s: %w", k, err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	if n <= l.limit {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil {
		return false, l.window, nil
	}
	// -1 means the counter lost its expiry, which would block the key forever.
	if ttl == -1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire %s: %w", k, err)
		}
		return false, l.window, nil
	}
	if ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}
