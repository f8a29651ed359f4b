// Package ratelimit provides per-user update limiting.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether a user's update may be processed.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed-window limiter for single-instance deployments
// and tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

// NewMemoryLimiter creates a limiter allowing limit updates per period.
func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 20
	}
	if period <= 0 {
		period = time.Minute
	}

	return &MemoryLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[userID]
	if !ok || now.After(w.resetAt) {
		l.windows[userID] = &window{count: 1, resetAt: now.Add(l.period)}
		return true, nil
	}

	w.count++
	return w.count <= l.limit, nil
}
