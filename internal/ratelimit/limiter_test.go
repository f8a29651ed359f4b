package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/nkorotkov/refbot/pkg/config"
	redisclient "github.com/nkorotkov/refbot/pkg/redis"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(2, time.Minute)

	base := time.Now()
	limiter.now = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "U1")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "U1")
	require.NoError(t, err)
	require.False(t, allowed)

	// other users have their own window
	allowed, err = limiter.Allow(ctx, "U2")
	require.NoError(t, err)
	require.True(t, allowed)

	// window reset restores the budget
	limiter.now = func() time.Time { return base.Add(2 * time.Minute) }

	allowed, err = limiter.Allow(ctx, "U1")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	client, err := redisclient.New(ctx, config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, 2, time.Minute)

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "U1")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "U1")
	require.NoError(t, err)
	require.False(t, allowed)

	mr.FastForward(2 * time.Minute)

	allowed, err = limiter.Allow(ctx, "U1")
	require.NoError(t, err)
	require.True(t, allowed)
}
