package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/nkorotkov/refbot/pkg/redis"
)

const keyPrefix = "ratelimit:user:"

// RedisLimiter is a fixed-window limiter shared across bot instances.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	period time.Duration
}

// NewRedisLimiter creates a limiter allowing limit updates per period.
func NewRedisLimiter(client *redis.Client, limit int, period time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 20
	}
	if period <= 0 {
		period = time.Minute
	}

	return &RedisLimiter{
		client: client,
		limit:  limit,
		period: period,
	}
}

// Allow implements Limiter via INCR with a window TTL.
func (l *RedisLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	count, err := l.client.IncrWithTTL(ctx, keyPrefix+userID, l.period)
	if err != nil {
		return false, fmt.Errorf("ratelimit incr: %w", err)
	}

	return count <= int64(l.limit), nil
}
