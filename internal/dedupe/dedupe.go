// Package dedupe suppresses duplicate Telegram update deliveries.
//
// This is a best-effort optimization in front of the handlers: the reward
// engine's transaction remains the sole correctness guard for exactly-once
// rewards.
package dedupe

import (
	"context"
	"sync"
	"time"
)

// Guard decides whether an update key is being seen for the first time.
type Guard interface {
	// FirstSeen marks key as seen and reports true when it was not seen
	// within the retention window before.
	FirstSeen(ctx context.Context, key string) (bool, error)
}

// MemoryGuard is an in-process Guard for single-instance deployments and
// tests.
type MemoryGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryGuard creates a memory-backed guard retaining keys for ttl.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &MemoryGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// FirstSeen implements Guard.
func (g *MemoryGuard) FirstSeen(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, ok := g.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}

	// opportunistic cleanup keeps the map from growing unbounded
	for k, expiry := range g.seen {
		if now.After(expiry) {
			delete(g.seen, k)
		}
	}

	g.seen[key] = now.Add(g.ttl)
	return true, nil
}
