package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/zhuermu/zmead-sub004/internal/domain"
)

// Policy describes the retry schedule for transient failures.
// The delay before attempt n+1 is BaseDelay * Factor^(n-1), capped at
// MaxDelay. AttemptTimeout bounds each individual attempt; zero means
// the attempt runs under the caller's context alone.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Factor         float64
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultPolicy matches the shipped configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		Factor:         2,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// Retrier runs operations under a retry policy. Only errors marked
// transient via domain.Transient are retried; everything else returns
// on the first attempt.
type Retrier struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a Retrier with the given policy.
func NewRetrier(policy Policy) *Retrier {
	return &Retrier{policy: policy, sleep: sleepCtx}
}

// Do runs fn until it succeeds, fails terminally, or the policy is
// exhausted. The returned error wraps the last attempt's error, so
// errors.Is and errors.As still see the cause.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.Delay(attempt-1)); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}

		lastErr = r.runAttempt(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !domain.IsTransient(lastErr) {
			return fmt.Errorf("%s: %w", op, lastErr)
		}
	}

	return fmt.Errorf("%s: %d attempts exhausted: %w", op, r.policy.MaxAttempts, lastErr)
}

func (r *Retrier) runAttempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.policy.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

// Delay returns the pause after the given completed attempt (1-based).
func (r *Retrier) Delay(attempt int) time.Duration {
	d := time.Duration(float64(r.policy.BaseDelay) * math.Pow(r.policy.Factor, float64(attempt-1)))
	if r.policy.MaxDelay > 0 && d > r.policy.MaxDelay {
		return r.policy.MaxDelay
	}
	return d
}

// sleepCtx waits for d or until the context is done, whichever first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
