package fn

import (
	"context"
	"time"
)

// RetryOpts configures retry behavior. Backoff maps a 1-based attempt
// number to the delay slept after that attempt fails; a nil Backoff
// doubles from one second. Sleep exists for tests and defaults to a
// context-aware timer wait.
type RetryOpts struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// ExpBackoff returns a backoff of base*2^attempt.
func ExpBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 0; i < attempt; i++ {
			d *= 2
		}
		return d
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retry runs f up to MaxAttempts times, sleeping per Backoff between
// failed attempts. The final error is returned untouched so callers can
// wrap it with their own exhaustion type.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) (T, error)) (T, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = ExpBackoff(500 * time.Millisecond)
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		v, err := f(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == opts.MaxAttempts {
			break
		}
		if err := sleep(ctx, backoff(attempt)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}
