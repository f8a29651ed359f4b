package storage

import (
	"context"
	"sync"
	"time"

	"github.com/nkorotkov/refbot/internal/domain"
)

// MemoryStore is an in-memory Store with per-document versioning and
// first-writer-wins commit validation. It backs unit tests and the
// "memory" storage driver for local runs.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]*versioned[*domain.UserRecord]
	rewards map[string]*versioned[*domain.RewardLedgerEntry]
}

type versioned[T any] struct {
	version uint64
	value   T
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*versioned[*domain.UserRecord]),
		rewards: make(map[string]*versioned[*domain.RewardLedgerEntry]),
	}
}

type memoryTx struct {
	store *MemoryStore

	// observed versions, 0 meaning "read as absent"
	userReads   map[string]uint64
	rewardReads map[string]uint64

	userWrites   map[string]*domain.UserRecord
	rewardWrites map[string]*domain.RewardLedgerEntry
}

// RunTx executes fn against a buffered transaction and commits it when fn
// succeeds. Commit revalidates every observed document version under the
// store lock and returns ErrConflict when any of them moved.
func (s *MemoryStore) RunTx(ctx context.Context, fn func(tx Tx) error) error {
	if fn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		store:        s,
		userReads:    make(map[string]uint64),
		rewardReads:  make(map[string]uint64),
		userWrites:   make(map[string]*domain.UserRecord),
		rewardWrites: make(map[string]*domain.RewardLedgerEntry),
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.commit()
}

func (tx *memoryTx) GetUser(ctx context.Context, id string) (*domain.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if pending, ok := tx.userWrites[id]; ok {
		return pending.Clone(), nil
	}

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	doc, ok := tx.store.users[id]
	if !ok {
		tx.userReads[id] = 0
		return nil, ErrNotFound
	}

	tx.userReads[id] = doc.version
	return doc.value.Clone(), nil
}

func (tx *memoryTx) PutUser(ctx context.Context, user *domain.UserRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.userWrites[user.ID] = user.Clone()
	return nil
}

func (tx *memoryTx) CreateReward(ctx context.Context, entry *domain.RewardLedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cp := *entry
	tx.rewardWrites[entry.SubjectUserID] = &cp
	return nil
}

func (tx *memoryTx) commit() error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for id, version := range tx.userReads {
		current := uint64(0)
		if doc, ok := tx.store.users[id]; ok {
			current = doc.version
		}
		if current != version {
			return ErrConflict
		}
	}

	// ledger entries are insert-only; an existing entry means another
	// transaction already committed the reward
	for id := range tx.rewardWrites {
		if _, ok := tx.store.rewards[id]; ok {
			return ErrConflict
		}
	}

	now := time.Now().UTC()

	for id, record := range tx.userWrites {
		version := uint64(1)
		if doc, ok := tx.store.users[id]; ok {
			version = doc.version + 1
		}
		record.UpdatedAt = now
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		tx.store.users[id] = &versioned[*domain.UserRecord]{version: version, value: record}
	}

	for id, entry := range tx.rewardWrites {
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		tx.store.rewards[id] = &versioned[*domain.RewardLedgerEntry]{version: 1, value: entry}
	}

	return nil
}

// GetUser reads a user record outside any transaction.
func (s *MemoryStore) GetUser(ctx context.Context, id string) (*domain.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}

	return doc.value.Clone(), nil
}

// GetReward reads the ledger entry for a referred user.
func (s *MemoryStore) GetReward(ctx context.Context, subjectUserID string) (*domain.RewardLedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.rewards[subjectUserID]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *doc.value
	return &cp, nil
}

// Stats returns aggregate counters over the stored records.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Users:   int64(len(s.users)),
		Rewards: int64(len(s.rewards)),
	}
	for _, doc := range s.rewards {
		stats.CoinsGranted += doc.value.Amount
	}

	return stats, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
