package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore implements CounterStore backed by Redis.
type RedisCounterStore struct {
	client redis.UniversalClient
}

var _ CounterStore = (*RedisCounterStore)(nil)

// NewRedisCounterStore constructs a Redis-backed counter store.
func NewRedisCounterStore(client redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Incr bumps the window counter atomically. The expiry is attached on the
// first hit so the window starts at the first request, not the last.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("increment counter: %w", err)
	}

	count := incr.Val()
	left := ttl.Val()
	if count == 1 || left < 0 {
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return count, window, fmt.Errorf("set counter expiry: %w", err)
		}
		left = window
	}
	return count, left, nil
}
