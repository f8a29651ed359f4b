package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/nkorotkov/refbot/internal/domain"
	"github.com/nkorotkov/refbot/internal/referral"
	"github.com/nkorotkov/refbot/internal/storage"
)

func TestParseReferralToken(t *testing.T) {
	testCases := []struct {
		name     string
		payload  string
		expected string
	}{
		{name: "prefixed token", payload: "ref_R1", expected: "R1"},
		{name: "bare token", payload: "R1", expected: "R1"},
		{name: "empty payload", payload: "", expected: ""},
		{name: "whitespace only", payload: "   ", expected: ""},
		{name: "surrounding whitespace", payload: "  ref_R1  ", expected: "R1"},
		{name: "prefix only", payload: "ref_", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, ParseReferralToken(tc.payload))
		})
	}
}

// flakyStore fails the first n transactions with a transport-style error
// before delegating to the real store.
type flakyStore struct {
	*storage.MemoryStore
	failures int
}

func (s *flakyStore) RunTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset by peer")
	}

	return s.MemoryStore.RunTx(ctx, fn)
}

func TestProcessReferral_RetriesTransientStoreFailures(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()

	err := mem.RunTx(ctx, func(tx storage.Tx) error {
		if err := tx.PutUser(ctx, &domain.UserRecord{ID: "R1"}); err != nil {
			return err
		}
		return tx.PutUser(ctx, &domain.UserRecord{ID: "U1", ReferredBy: "R1"})
	})
	require.NoError(t, err)

	store := &flakyStore{MemoryStore: mem, failures: 2}
	engine := referral.NewEngine(store, referral.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	outcome, err := processReferral(ctx, engine, "U1", "R1")
	require.NoError(t, err)
	require.Equal(t, referral.OutcomeRewarded, outcome)

	referrer, err := mem.GetUser(ctx, "R1")
	require.NoError(t, err)
	require.Equal(t, int64(500), referrer.Coins)
}

func TestProcessReferral_DoesNotRetryNonTransientErrors(t *testing.T) {
	store := storage.NewMemoryStore()
	engine := referral.NewEngine(store, referral.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// an empty subject id is a caller bug, not a store hiccup
	_, err := processReferral(context.Background(), engine, "", "R1")
	require.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	testCases := []struct {
		name     string
		user     *telebot.User
		expected string
	}{
		{
			name:     "first and last name",
			user:     &telebot.User{FirstName: "Alice", LastName: "Cooper"},
			expected: "Alice Cooper",
		},
		{
			name:     "first name only",
			user:     &telebot.User{FirstName: "Alice"},
			expected: "Alice",
		},
		{
			name:     "username fallback",
			user:     &telebot.User{Username: "alice_c"},
			expected: "alice_c",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, displayName(tc.user))
		})
	}
}
