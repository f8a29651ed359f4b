package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return NewTransientStoreError(errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestWithRetry_StopsOnNonRetryable(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		return NewInvalidReferralError("self referral")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestWithRetry_Exhaustion(t *testing.T) {
	attempts := 0
	cause := errors.New("still down")
	err := WithRetry(context.Background(), func() error {
		attempts++
		return NewTransientStoreError(cause)
	})

	require.Error(t, err)
	require.Equal(t, MaxRetries+1, attempts)
	require.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(NewTransientStoreError(errors.New("boom"))))
	require.False(t, IsRetryable(NewInvalidReferralError("nope")))
	require.False(t, IsRetryable(errors.New("plain")))
	require.False(t, IsRetryable(nil))
}
