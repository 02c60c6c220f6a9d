package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry_SucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &RetryableError{Err: errors.New("connection reset"), Retryable: true}
		}
		return nil
	}, fastRetry(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_NonRetryableStopsImmediately(t *testing.T) {
	denied := errors.New("forbidden")
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return &RetryableError{Err: denied, Retryable: false}
	}, fastRetry(5))

	require.Error(t, err)
	assert.ErrorIs(t, err, denied)
	assert.NotErrorIs(t, err, ErrMaxRetries)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_Exhausted(t *testing.T) {
	boom := errors.New("bad gateway")
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return boom
	}, fastRetry(3))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestWithRetry_RateLimitWaitsMaxDelay(t *testing.T) {
	opts := fastRetry(2)
	opts.MaxDelay = 40 * time.Millisecond

	start := time.Now()
	err := WithRetry(context.Background(), func() error {
		return ErrRateLimit
	}, opts)

	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.GreaterOrEqual(t, time.Since(start), opts.MaxDelay)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := fastRetry(5)
	opts.InitialDelay = time.Hour
	opts.MaxDelay = time.Hour

	calls := 0
	err := WithRetry(ctx, func() error {
		calls++
		cancel()
		return errors.New("timeout")
	}, opts)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryOptions(t *testing.T) {
	got := DefaultRetryOptions(service.RetryOptions{})
	assert.Equal(t, 3, got.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, got.InitialDelay)
	assert.Equal(t, 30*time.Second, got.MaxDelay)
	assert.InDelta(t, 2.0, got.Multiplier, 0)

	kept := DefaultRetryOptions(service.RetryOptions{MaxAttempts: 7})
	assert.Equal(t, 7, kept.MaxAttempts)
}
