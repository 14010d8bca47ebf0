// Package throttle limits how often unauthenticated callers can trigger
// emails for the same address.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tinyauth:throttle:"

// RedisLimiter is a fixed-window counter per key, shared by all replicas.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

// NewFromURL connects to the Redis instance described by a redis:// URL.
func NewFromURL(ctx context.Context, url string, limit int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisLimiter(client, limit, window), nil
}

// Allow counts one hit for key and reports whether it is within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	k := keyPrefix + key
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("redis expire: %w", err)
		}
	}
	return count <= int64(l.limit), nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// Nop allows everything. It is used when no Redis URL is configured.
type Nop struct{}

func (Nop) Allow(context.Context, string) (bool, error) { return true, nil }
