// Package referral implements the one-time referral reward transaction.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/nkorotkov/refbot/internal/errors"
	"github.com/nkorotkov/refbot/internal/storage"
	"github.com/nkorotkov/refbot/pkg/metrics"
)

// DefaultMaxAttempts bounds how often a conflicted transaction is retried
// before the engine reports a transient failure.
const DefaultMaxAttempts = 5

// Config tunes the reward engine.
type Config struct {
	RewardAmount int64
	MaxAttempts  int
}

// Engine applies the referral reward exactly once per referred user. All
// decisions are made from reads inside a single store transaction, so
// concurrent duplicate deliveries race on the commit rather than on stale
// snapshots.
type Engine struct {
	store       storage.Store
	log         *slog.Logger
	amount      int64
	maxAttempts int
}

// NewEngine creates a reward engine over the given store.
func NewEngine(store storage.Store, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RewardAmount <= 0 {
		cfg.RewardAmount = DefaultRewardAmount
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	return &Engine{
		store:       store,
		log:         log,
		amount:      cfg.RewardAmount,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Process runs the reward transaction for subjectUserID. The token is the
// referral token carried by the current event, empty when absent. On
// conflict the whole read-decide-write sequence reruns; after maxAttempts
// the failure surfaces as a transient store error with no partial writes.
func (e *Engine) Process(ctx context.Context, subjectUserID, token string) (Outcome, error) {
	if subjectUserID == "" {
		return "", errors.New("subject user id is empty")
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		var outcome Outcome

		err := e.store.RunTx(ctx, func(tx storage.Tx) error {
			var txErr error
			outcome, txErr = e.processTx(ctx, tx, subjectUserID, token)
			return txErr
		})
		if err == nil {
			return outcome, nil
		}

		if !errors.Is(err, storage.ErrConflict) {
			return "", apperrors.NewTransientStoreError(err)
		}

		lastErr = err
		metrics.RecordRewardTxRetry()
		e.log.Warn("reward transaction conflict, retrying",
			slog.String("subject_id", subjectUserID),
			slog.Int("attempt", attempt),
		)
	}

	return "", apperrors.NewTransientStoreError(fmt.Errorf("reward transaction attempts exhausted: %w", lastErr))
}

// processTx is the transaction body: read subject and referrer, decide,
// and stage the writes. No-op outcomes stage nothing, so the commit is
// read-only and cannot produce a partial credit.
func (e *Engine) processTx(ctx context.Context, tx storage.Tx, subjectUserID, token string) (Outcome, error) {
	subject, err := tx.GetUser(ctx, subjectUserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return OutcomeSubjectMissing, nil
		}
		return "", err
	}

	referrerID := effectiveReferrer(subjectUserID, subject, token)
	if referrerID == "" {
		return OutcomeNoReferrer, nil
	}
	if referrerID == subjectUserID {
		return OutcomeSelfReferral, nil
	}
	if subject.RewardGiven {
		return OutcomeAlreadyRewarded, nil
	}

	referrer, err := tx.GetUser(ctx, referrerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return OutcomeNoReferrer, nil
		}
		return "", err
	}

	writes := buildWrites(subject, referrer, e.amount)
	if err := tx.PutUser(ctx, writes.Subject); err != nil {
		return "", err
	}
	if err := tx.PutUser(ctx, writes.Referrer); err != nil {
		return "", err
	}
	if err := tx.CreateReward(ctx, writes.Entry); err != nil {
		return "", err
	}

	return OutcomeRewarded, nil
}
