// Package retry provides the shared retry policy used by the source API
// client and the sheet writer. Both call sites carry their own Policy value
// so their attempt budgets never interfere.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited marks an error caused by an upstream rate limit. Callers
// classify their transport errors against this sentinel via errors.Is.
var ErrRateLimited = errors.New("rate limited")

// ErrTransient marks a recoverable network or server error.
var ErrTransient = errors.New("transient error")

// BackoffFunc maps a 1-based attempt number to the delay before the next try.
type BackoffFunc func(attempt int) time.Duration

// Linear returns base×attempt capped at max.
func Linear(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base * time.Duration(attempt)
		if d > max {
			return max
		}
		return d
	}
}

// Exponential returns base×2^(attempt-1) capped at max.
func Exponential(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// Policy bounds how an operation is retried.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Retryable   func(error) bool
}

// DefaultRetryable reports whether err carries one of the retryable
// classifications.
func DefaultRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

// Do runs op until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. The context cancels both the operation and backoff waits.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts {
			return err
		}
		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if waitErr := Sleep(ctx, delay); waitErr != nil {
			return waitErr
		}
	}
	return err
}

// Sleep waits for d or until the context is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
