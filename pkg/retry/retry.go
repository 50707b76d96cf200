package retry

import (
	"context"
	"time"
)

// Options controls a retried operation.
type Options struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// BaseDelay is the wait before the second attempt; each further attempt
	// doubles it. Defaults to 500ms.
	BaseDelay time.Duration
	// OnRetry is invoked after each failed attempt that will be retried,
	// before the backoff wait. Used for audit logging.
	OnRetry func(attempt int, err error)
}

// Do invokes op until it succeeds or the attempts are exhausted, waiting
// BaseDelay * 2^(attempt-1) between attempts. After exhaustion the last error
// is returned. Canceling ctx aborts the backoff wait.
func Do[T any](ctx context.Context, op func() (T, error), opts Options) (T, error) {
	var zero T
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := op()
		if err == nil {
			return value, nil
		}
		lastErr = err
		if attempt >= attempts {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}
		if err := sleep(ctx, baseDelay<<(attempt-1)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
