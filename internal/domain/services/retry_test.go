package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	calls := 0
	err := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}.Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}.Do(context.Background(), func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryPolicy{Attempts: 5, Backoff: time.Minute}.Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation must cut the backoff wait short")
}

func TestRetryPolicyZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
