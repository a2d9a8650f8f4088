package fn

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Retryable reports whether an error is worth another attempt.
	// Nil retries everything.
	Retryable func(error) bool
	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Jitter:      true,
}

// Retry calls f until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached, doubling the wait between attempts.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	wait := opts.InitialWait

	var result Result[T]
	for attempt := 1; ; attempt++ {
		result = f(ctx)
		if result.IsOk() || attempt == opts.MaxAttempts {
			return result
		}
		_, err := result.Unwrap()
		if opts.Retryable != nil && !opts.Retryable(err) {
			return result
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}

		sleep := wait
		if opts.Jitter {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if opts.MaxWait > 0 && sleep > opts.MaxWait {
			sleep = opts.MaxWait
		}

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return Err[T](ctx.Err())
		case <-t.C:
		}

		wait *= 2
		if opts.MaxWait > 0 && wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
}
