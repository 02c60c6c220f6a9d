package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tally/internal/service"
)

var (
	// ErrRateLimit marks a remote refusal that should wait the full MaxDelay.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries is returned once every attempt has failed.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError tells WithRetry whether a failure is worth another attempt.
// Errors that are not a RetryableError are retried.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// DefaultRetryOptions fills the zero fields of opts.
func DefaultRetryOptions(opts service.RetryOptions) service.RetryOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	return opts
}

// WithRetry runs op until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done. Waits grow geometrically by Multiplier and
// never exceed MaxDelay. A rate-limited attempt waits MaxDelay.
func WithRetry(ctx context.Context, op func() error, opts service.RetryOptions) error {
	opts = DefaultRetryOptions(opts)
	wait := opts.InitialDelay

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, attempt, err)
		}

		pause := wait
		if errors.Is(err, ErrRateLimit) {
			pause = opts.MaxDelay
		}
		slog.Warn("Remote call failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", pause,
			"error", err)

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(time.Duration(float64(wait)*opts.Multiplier), opts.MaxDelay)
	}
}

func retryable(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return true
}
