package core

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures exponential backoff with full jitter.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first; <=1 disables retry
	BaseDelay   time.Duration // ceiling of the first backoff
	MaxDelay    time.Duration // cap on any single backoff

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsTransient.
	Retryable func(error) bool

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is used when the service config does not set one.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

// NoRetry runs the operation exactly once.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// backoff returns the jittered delay before attempt n+1 (n starts at 1):
// uniform in [0, min(MaxDelay, BaseDelay*2^(n-1))].
func (p RetryPolicy) backoff(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	ceiling := p.BaseDelay
	for i := 1; i < n && (p.MaxDelay <= 0 || ceiling < p.MaxDelay); i++ {
		ceiling *= 2
	}
	if p.MaxDelay > 0 && ceiling > p.MaxDelay {
		ceiling = p.MaxDelay
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

// Retry runs op until it succeeds, returns a non-retryable error, the
// attempts are exhausted, or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, name string, op func(context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	attempts := max(p.MaxAttempts, 1)

	var (
		v   T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err = op(ctx)
		if err == nil || !retryable(err) || attempt == attempts {
			return v, err
		}

		d := p.backoff(attempt)
		slog.Debug("retrying operation",
			"op", name,
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", d,
			"error", err,
		)
		if serr := sleep(ctx, d); serr != nil {
			return v, err
		}
	}
	return v, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
