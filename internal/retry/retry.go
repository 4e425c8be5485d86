// Package retry runs calls with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// DefaultMaxDelay caps a single backoff before jitter.
const DefaultMaxDelay = 30 * time.Second

// Policy controls how often and how long Do waits between attempts.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration // 0 means DefaultMaxDelay
}

// DefaultPolicy retries three times starting at one second.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: DefaultMaxDelay}
}

// Backoff returns base*2^attempt capped at maxDelay, with -25%..+25% jitter.
// Attempt 0 (the first call) has no delay.
func Backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	attempt = min(attempt, 30)

	backoff := base * time.Duration(1<<uint(attempt)) //nolint:gosec // attempt capped at 30
	if backoff > maxDelay || backoff <= 0 {
		backoff = maxDelay
	}
	if half := int64(backoff) / 2; half > 0 {
		backoff += time.Duration(rand.Int64N(half)) - backoff/4 //nolint:gosec // jitter, not security
	}
	return backoff
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do calls fn until it succeeds, returns a Permanent error, the retries are
// used up, or ctx is done. The attempt number starts at 0.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(Backoff(p.BaseDelay, p.MaxDelay, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, errors.Join(ctx.Err(), lastErr))
			case <-timer.C:
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		lastErr = err
	}
	return fmt.Errorf("failed after %d attempts: %w", p.MaxRetries+1, lastErr)
}
