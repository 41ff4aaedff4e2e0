// Package retry runs operations under a bounded retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned when every attempt failed with a retryable error.
var ErrExhausted = errors.New("retries exhausted")

// Policy describes how an operation is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Backoff returns the wait before retry n (0-based).
	Backoff func(n int) time.Duration
	// Retryable reports whether err is worth another attempt.
	// Nil treats every error as retryable.
	Retryable func(err error) bool
}

// Notify is called before each wait with the failed attempt number (1-based).
type Notify func(err error, attempt int, wait time.Duration)

// Doubling returns the schedule unit*(2^(n+1)+1): 3, 5, 9, 17, 33 units.
func Doubling(unit time.Duration) func(n int) time.Duration {
	return func(n int) time.Duration {
		return unit * time.Duration((2<<n)+1)
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, the retries
// run out or ctx is done. Exhaustion wraps the last error with ErrExhausted.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, notify Notify) error {
	var b backoff.BackOff = &schedule{next: p.backoff()}
	b = backoff.WithMaxRetries(b, uint64(max(p.MaxRetries, 0)))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	var lastErr error
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, attempt, wait)
		}
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || lastErr == nil || !p.retryable(lastErr) {
		return err //nolint:wrapcheck // op errors are returned as-is
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p Policy) backoff() func(int) time.Duration {
	if p.Backoff == nil {
		return Doubling(time.Second)
	}
	return p.Backoff
}

// schedule adapts a per-retry delay function to backoff.BackOff.
type schedule struct {
	next func(int) time.Duration
	n    int
}

func (s *schedule) NextBackOff() time.Duration {
	d := s.next(s.n)
	s.n++
	return d
}

func (s *schedule) Reset() { s.n = 0 }
