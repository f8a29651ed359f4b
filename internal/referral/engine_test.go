package referral

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkorotkov/refbot/internal/domain"
	apperrors "github.com/nkorotkov/refbot/internal/errors"
	"github.com/nkorotkov/refbot/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedUser(t *testing.T, store storage.Store, user *domain.UserRecord) {
	t.Helper()

	err := store.RunTx(context.Background(), func(tx storage.Tx) error {
		return tx.PutUser(context.Background(), user)
	})
	require.NoError(t, err)
}

func mustGetUser(t *testing.T, store storage.Store, id string) *domain.UserRecord {
	t.Helper()

	user, err := store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return user
}

func TestProcess_RewardsNewReferral(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedUser(t, store, &domain.UserRecord{ID: "R1"})
	seedUser(t, store, &domain.UserRecord{ID: "U1", FrontendOpened: true, ReferredBy: "R1"})

	engine := NewEngine(store, Config{}, testLogger())

	outcome, err := engine.Process(ctx, "U1", "R1")
	require.NoError(t, err)
	require.Equal(t, OutcomeRewarded, outcome)

	subject := mustGetUser(t, store, "U1")
	require.Equal(t, "R1", subject.ReferredBy)
	require.True(t, subject.RewardGiven)

	referrer := mustGetUser(t, store, "R1")
	require.Equal(t, int64(500), referrer.Coins)
	require.Equal(t, int64(1), referrer.ReferralCount)

	entry, err := store.GetReward(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, "R1", entry.ReferrerUserID)
	require.Equal(t, int64(500), entry.Amount)
	require.False(t, entry.CreatedAt.IsZero())
}

func TestProcess_RepeatDeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedUser(t, store, &domain.UserRecord{ID: "R1"})
	seedUser(t, store, &domain.UserRecord{ID: "U1", ReferredBy: "R1"})

	engine := NewEngine(store, Config{}, testLogger())

	outcome, err := engine.Process(ctx, "U1", "R1")
	require.NoError(t, err)
	require.Equal(t, OutcomeRewarded, outcome)

	outcome, err = engine.Process(ctx, "U1", "R1")
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyRewarded, outcome)

	referrer := mustGetUser(t, store, "R1")
	require.Equal(t, int64(500), referrer.Coins)
	require.Equal(t, int64(1), referrer.ReferralCount)
}

func TestProcess_SelfReferral(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedUser(t, store, &domain.UserRecord{ID: "U1"})

	engine := NewEngine(store, Config{}, testLogger())

	outcome, err := engine.Process(ctx, "U1", "U1")
	require.NoError(t, err)
	require.Equal(t, OutcomeNoReferrer, outcome)

	subject := mustGetUser(t, store, "U1")
	require.Empty(t, subject.ReferredBy)
	require.False(t, subject.RewardGiven)

	_, err = store.GetReward(ctx, "U1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcess_StoredSelfReferenceIsRejected(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedUser(t, store, &domain.UserRecord{ID: "U1", ReferredBy: "U1"})

	engine := NewEngine(store, Config{}, testLogger())

	outcome, err := engine.Process(ctx, "U1", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeSelfReferral, outcome)
}

func TestProcess_NoReferrer(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedUser(t, store, &domain.UserRecord{ID: "U1"})

	engine := NewEngine(store, Config{}, testLogger())

	outcome, err := engine.Process(ctx, "U1", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeNoReferrer, outcome)
}

func TestProcess_SubjectMissing(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := NewEngine(store, Config{}, testLogger())

	outcome, err := engine.Process(context.Background(), "U1", "R1")
	require.NoError(t, err)
	require.Equal(t, OutcomeSubjectMissing, outcome)
}

func TestProcess_MissingReferrerKeepsSubjectEligible(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedUser(t, store, &domain.UserRecord{ID: "U1"})

	engine := NewEngine(store, Config{}, testLogger())

	outcome, err := engine.Process(ctx, "U1", "R9")
	require.NoError(t, err)
	require.Equal(t, OutcomeNoReferrer, outcome)

	subject := mustGetUser(t, store, "U1")
	require.False(t, subject.RewardGiven)

	// once the referrer record exists a retried delivery succeeds
	seedUser(t, store, &domain.UserRecord{ID: "R9"})

	outcome, err = engine.Process(ctx, "U1", "R9")
	require.NoError(t, err)
	require.Equal(t, OutcomeRewarded, outcome)

	referrer := mustGetUser(t, store, "R9")
	require.Equal(t, int64(500), referrer.Coins)
}

func TestProcess_StoredReferrerWinsOverToken(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedUser(t, store, &domain.UserRecord{ID: "R1"})
	seedUser(t, store, &domain.UserRecord{ID: "R2"})
	seedUser(t, store, &domain.UserRecord{ID: "U1", ReferredBy: "R1"})

	engine := NewEngine(store, Config{}, testLogger())

	outcome, err := engine.Process(ctx, "U1", "R2")
	require.NoError(t, err)
	require.Equal(t, OutcomeRewarded, outcome)

	require.Equal(t, "R1", mustGetUser(t, store, "U1").ReferredBy)
	require.Equal(t, int64(500), mustGetUser(t, store, "R1").Coins)
	require.Equal(t, int64(0), mustGetUser(t, store, "R2").Coins)
}

func TestProcess_ConcurrentDuplicatesRewardExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedUser(t, store, &domain.UserRecord{ID: "R1"})
	seedUser(t, store, &domain.UserRecord{ID: "U1", ReferredBy: "R1"})

	engine := NewEngine(store, Config{MaxAttempts: 100}, testLogger())

	const workers = 64

	outcomes := make([]Outcome, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = engine.Process(ctx, "U1", "R1")
		}(i)
	}
	wg.Wait()

	rewarded := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		switch outcomes[i] {
		case OutcomeRewarded:
			rewarded++
		case OutcomeAlreadyRewarded:
		default:
			t.Fatalf("unexpected outcome %q", outcomes[i])
		}
	}
	require.Equal(t, 1, rewarded)

	referrer := mustGetUser(t, store, "R1")
	require.Equal(t, int64(500), referrer.Coins)
	require.Equal(t, int64(1), referrer.ReferralCount)

	entry, err := store.GetReward(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, int64(500), entry.Amount)
}

// conflictStore always loses the commit race.
type conflictStore struct {
	*storage.MemoryStore
	attempts int
}

func (s *conflictStore) RunTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.attempts++
	return storage.ErrConflict
}

func TestProcess_ConflictExhaustionSurfacesTransientError(t *testing.T) {
	store := &conflictStore{MemoryStore: storage.NewMemoryStore()}
	engine := NewEngine(store, Config{MaxAttempts: 3}, testLogger())

	_, err := engine.Process(context.Background(), "U1", "R1")
	require.Error(t, err)
	require.Equal(t, 3, store.attempts)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.True(t, appErr.Retryable)
}

func TestProcess_CustomRewardAmount(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedUser(t, store, &domain.UserRecord{ID: "R1"})
	seedUser(t, store, &domain.UserRecord{ID: "U1", ReferredBy: "R1"})

	engine := NewEngine(store, Config{RewardAmount: 250}, testLogger())

	outcome, err := engine.Process(ctx, "U1", "")
	require.NoError(t, err)
	require.Equal(t, OutcomeRewarded, outcome)
	require.Equal(t, int64(250), mustGetUser(t, store, "R1").Coins)
}
