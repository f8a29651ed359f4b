// Package storage provides transactional access to the bot's record store.
package storage

import (
	"context"
	"errors"

	"github.com/nkorotkov/refbot/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a transaction lost a race with a
	// concurrent commit and must be retried from the start.
	ErrConflict = errors.New("transaction conflict")
)

// Stats holds aggregate counters used by the metrics collector.
type Stats struct {
	Users        int64
	Rewards      int64
	CoinsGranted int64
}

// Tx exposes record operations inside a transaction. All reads observe a
// consistent snapshot; all writes commit together or not at all.
type Tx interface {
	// GetUser returns the user record for id, or ErrNotFound.
	GetUser(ctx context.Context, id string) (*domain.UserRecord, error)
	// PutUser creates or replaces the user record.
	PutUser(ctx context.Context, user *domain.UserRecord) error
	// CreateReward inserts a ledger entry keyed by the referred user id.
	CreateReward(ctx context.Context, entry *domain.RewardLedgerEntry) error
}

// Store defines the persistence contract for user and reward records.
// RunTx returns ErrConflict when a concurrent commit invalidated the
// transaction; callers retry the whole function a bounded number of times.
type Store interface {
	RunTx(ctx context.Context, fn func(tx Tx) error) error

	// GetUser reads a user record outside any transaction.
	GetUser(ctx context.Context, id string) (*domain.UserRecord, error)
	// GetReward reads the ledger entry for a referred user, or ErrNotFound.
	GetReward(ctx context.Context, subjectUserID string) (*domain.RewardLedgerEntry, error)
	// Stats returns aggregate counters for metrics.
	Stats(ctx context.Context) (Stats, error)

	Ping(ctx context.Context) error
	Close() error
}
