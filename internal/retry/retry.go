// Package retry runs an operation under an exponential backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop. Delays grow from BaseDelay by Multiplier
// without jitter; MaxDelay caps a single wait when set.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// OnRetry is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy allows six attempts starting at one second, doubling.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 6, BaseDelay: time.Second, Multiplier: 2}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// Do calls op until it succeeds, returns an error retryable rejects, ctx is
// done or MaxAttempts is used up. It returns the number of attempts made and
// the last error.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context, attempt int) error) (int, error) {
	p = p.normalized()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.BaseDelay
	expo.Multiplier = p.Multiplier
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0
	if p.MaxDelay > 0 {
		expo.MaxInterval = p.MaxDelay
	}
	expo.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.MaxAttempts-1)), ctx)

	attempts := 0
	var lastErr error
	err := backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		err := op(ctx, attempts)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || retryable == nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempts, err, wait)
		}
	})
	if err != nil && lastErr != nil && ctx.Err() != nil && err == ctx.Err() {
		return attempts, &InterruptedError{Cause: ctx.Err(), Last: lastErr}
	}
	return attempts, err
}

// InterruptedError reports a retry loop stopped by its context while waiting.
type InterruptedError struct {
	Cause error
	Last  error
}

func (e *InterruptedError) Error() string {
	return e.Cause.Error() + " after: " + e.Last.Error()
}

func (e *InterruptedError) Unwrap() []error { return []error{e.Cause, e.Last} }
