package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkorotkov/refbot/internal/domain"
)

func TestMemoryStore_GetUserNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetUser(context.Background(), "U1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PutAndGetUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.RunTx(ctx, func(tx Tx) error {
		return tx.PutUser(ctx, &domain.UserRecord{ID: "U1", DisplayName: "Alice"})
	})
	require.NoError(t, err)

	user, err := store.GetUser(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, "Alice", user.DisplayName)
	require.False(t, user.CreatedAt.IsZero())
	require.False(t, user.UpdatedAt.IsZero())
}

func TestMemoryStore_ReadYourWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.RunTx(ctx, func(tx Tx) error {
		if err := tx.PutUser(ctx, &domain.UserRecord{ID: "U1", Coins: 5}); err != nil {
			return err
		}

		user, err := tx.GetUser(ctx, "U1")
		if err != nil {
			return err
		}
		require.Equal(t, int64(5), user.Coins)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_ConflictOnConcurrentCommit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.RunTx(ctx, func(tx Tx) error {
		return tx.PutUser(ctx, &domain.UserRecord{ID: "U1"})
	})
	require.NoError(t, err)

	// the outer transaction reads U1, then a rival commit bumps its
	// version before the outer commit
	err = store.RunTx(ctx, func(tx Tx) error {
		user, err := tx.GetUser(ctx, "U1")
		if err != nil {
			return err
		}

		rival := store.RunTx(ctx, func(inner Tx) error {
			return inner.PutUser(ctx, &domain.UserRecord{ID: "U1", Coins: 999})
		})
		require.NoError(t, rival)

		user.Coins = 1
		return tx.PutUser(ctx, user)
	})
	require.ErrorIs(t, err, ErrConflict)

	user, err := store.GetUser(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, int64(999), user.Coins)
}

func TestMemoryStore_ConflictOnReadAbsentThenCreated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.RunTx(ctx, func(tx Tx) error {
		_, err := tx.GetUser(ctx, "U1")
		require.ErrorIs(t, err, ErrNotFound)

		rival := store.RunTx(ctx, func(inner Tx) error {
			return inner.PutUser(ctx, &domain.UserRecord{ID: "U1"})
		})
		require.NoError(t, rival)

		return tx.PutUser(ctx, &domain.UserRecord{ID: "U1", Coins: 1})
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_DuplicateRewardConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entry := &domain.RewardLedgerEntry{SubjectUserID: "U1", ReferrerUserID: "R1", Amount: 500}

	err := store.RunTx(ctx, func(tx Tx) error {
		return tx.CreateReward(ctx, entry)
	})
	require.NoError(t, err)

	err = store.RunTx(ctx, func(tx Tx) error {
		return tx.CreateReward(ctx, entry)
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_FnErrorAbortsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	bodyErr := context.Canceled
	err := store.RunTx(ctx, func(tx Tx) error {
		if err := tx.PutUser(ctx, &domain.UserRecord{ID: "U1"}); err != nil {
			return err
		}
		return bodyErr
	})
	require.ErrorIs(t, err, bodyErr)

	_, err = store.GetUser(ctx, "U1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.RunTx(ctx, func(tx Tx) error {
		if err := tx.PutUser(ctx, &domain.UserRecord{ID: "U1"}); err != nil {
			return err
		}
		if err := tx.PutUser(ctx, &domain.UserRecord{ID: "R1"}); err != nil {
			return err
		}
		return tx.CreateReward(ctx, &domain.RewardLedgerEntry{SubjectUserID: "U1", ReferrerUserID: "R1", Amount: 500})
	})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Users)
	require.Equal(t, int64(1), stats.Rewards)
	require.Equal(t, int64(500), stats.CoinsGranted)
}
