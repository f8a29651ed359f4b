package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/nkorotkov/refbot/pkg/redis"
)

const keyPrefix = "dedupe:update:"

// RedisGuard is a Guard shared across bot instances via Redis.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard creates a redis-backed guard retaining keys for ttl.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisGuard{
		client: client,
		ttl:    ttl,
	}
}

// FirstSeen implements Guard via SETNX with a TTL.
func (g *RedisGuard) FirstSeen(ctx context.Context, key string) (bool, error) {
	first, err := g.client.SetNX(ctx, keyPrefix+key, 1, g.ttl)
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}

	return first, nil
}
