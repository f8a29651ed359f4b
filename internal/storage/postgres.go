package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/nkorotkov/refbot/internal/domain"
)

// PostgresStore implements Store on top of PostgreSQL. Transactions run at
// serializable isolation; serialization failures surface as ErrConflict so
// callers retry the whole read-decide-write sequence.
type PostgresStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewPostgresStore creates a Postgres-backed record store.
func NewPostgresStore(db *sql.DB, log *slog.Logger) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}

	return &PostgresStore{db: db, log: log}
}

// RunTx executes fn inside a serializable transaction.
func (s *PostgresStore) RunTx(ctx context.Context, fn func(tx Tx) error) error {
	if fn == nil {
		return nil
	}

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&postgresTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		if isConflict(err) {
			return ErrConflict
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isConflict(err) {
			return ErrConflict
		}
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

type postgresTx struct {
	tx *sql.Tx
}

const userColumns = `
	id, display_name, COALESCE(photo_url, ''), frontend_opened,
	coins, referral_count, COALESCE(referred_by, ''), reward_given,
	tasks_completed, total_withdrawals, created_at, updated_at
`

func scanUser(row *sql.Row) (*domain.UserRecord, error) {
	var user domain.UserRecord
	if err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.PhotoURL,
		&user.FrontendOpened,
		&user.Coins,
		&user.ReferralCount,
		&user.ReferredBy,
		&user.RewardGiven,
		&user.TasksCompleted,
		&user.TotalWithdrawals,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	return &user, nil
}

func (t *postgresTx) GetUser(ctx context.Context, id string) (*domain.UserRecord, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUser(t.tx.QueryRowContext(ctx, query, id))
}

func (t *postgresTx) PutUser(ctx context.Context, user *domain.UserRecord) error {
	const query = `
		INSERT INTO users (
			id, display_name, photo_url, frontend_opened,
			coins, referral_count, referred_by, reward_given,
			tasks_completed, total_withdrawals, created_at, updated_at
		)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, $9, $10, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			display_name      = EXCLUDED.display_name,
			photo_url         = EXCLUDED.photo_url,
			frontend_opened   = EXCLUDED.frontend_opened,
			coins             = EXCLUDED.coins,
			referral_count    = EXCLUDED.referral_count,
			referred_by       = EXCLUDED.referred_by,
			reward_given      = EXCLUDED.reward_given,
			tasks_completed   = EXCLUDED.tasks_completed,
			total_withdrawals = EXCLUDED.total_withdrawals,
			updated_at        = NOW()
	`

	if _, err := t.tx.ExecContext(
		ctx,
		query,
		user.ID,
		user.DisplayName,
		user.PhotoURL,
		user.FrontendOpened,
		user.Coins,
		user.ReferralCount,
		user.ReferredBy,
		user.RewardGiven,
		user.TasksCompleted,
		user.TotalWithdrawals,
	); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	return nil
}

func (t *postgresTx) CreateReward(ctx context.Context, entry *domain.RewardLedgerEntry) error {
	const query = `
		INSERT INTO ref_rewards (subject_user_id, referrer_user_id, amount, created_at)
		VALUES ($1, $2, $3, NOW())
	`

	if _, err := t.tx.ExecContext(ctx, query, entry.SubjectUserID, entry.ReferrerUserID, entry.Amount); err != nil {
		return fmt.Errorf("insert reward: %w", err)
	}

	return nil
}

// GetUser reads a user record outside any transaction.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*domain.UserRecord, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetReward reads the ledger entry for a referred user.
func (s *PostgresStore) GetReward(ctx context.Context, subjectUserID string) (*domain.RewardLedgerEntry, error) {
	const query = `
		SELECT subject_user_id, referrer_user_id, amount, created_at
		FROM ref_rewards
		WHERE subject_user_id = $1
	`

	var entry domain.RewardLedgerEntry
	if err := s.db.QueryRowContext(ctx, query, subjectUserID).Scan(
		&entry.SubjectUserID,
		&entry.ReferrerUserID,
		&entry.Amount,
		&entry.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select reward: %w", err)
	}

	return &entry, nil
}

// Stats returns aggregate counters over both collections.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM ref_rewards),
			(SELECT COALESCE(SUM(amount), 0) FROM ref_rewards)
	`

	var stats Stats
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.Users, &stats.Rewards, &stats.CoinsGranted); err != nil {
		return Stats{}, fmt.Errorf("select stats: %w", err)
	}

	return stats, nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// isConflict reports whether err represents a lost race: a serialization
// failure, a deadlock, or a duplicate ledger entry committed first by a
// concurrent transaction.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case "40001", "40P01", "23505":
			return true
		}
	}

	return false
}
