package resilience

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/wessley-tutor/pkg/fn"
)

// LimiterOpts configures the token bucket.
type LimiterOpts struct {
	// Rate is the number of calls allowed per second. Zero or less disables limiting.
	Rate float64
	// Burst is the bucket capacity.
	Burst int
}

// Limiter paces calls to a model service.
type Limiter struct {
	lim *rate.Limiter
}

func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Limit(opts.Rate)
	if opts.Rate <= 0 {
		limit = rate.Inf
	}
	return &Limiter{lim: rate.NewLimiter(limit, opts.Burst)}
}

// Allow reports whether a call may happen now, consuming a token if so.
func (l *Limiter) Allow() bool { return l.lim.Allow() }

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error { return l.lim.Wait(ctx) }

// LimiterStageWait delays each run of stage until the limiter admits it.
func LimiterStageWait[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if err := l.Wait(ctx); err != nil {
			return fn.Err[Out](err)
		}
		return stage(ctx, in)
	}
}
