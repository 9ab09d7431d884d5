// Package ratelimit implements the Rate Governor: an
// N req/s limiter with burst and 429-aware retry, built on
// golang.org/x/time/rate's token bucket.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/logger"
)

// Governor enforces ≤ R requests per rolling second with burst ≤ B, and
// retries 429-equivalent failures with the server's retry-after hint (or
// exponential backoff) up to M times.
type Governor struct {
	limiter *rate.Limiter
	maxRetries int
}

// New creates a Governor allowing rps requests/second with the given burst
// and up to maxRetries retries of a RateLimited failure.
func New(rps float64, burst int, maxRetries int) *Governor {
	if burst < 1 {
		burst = 1
	}
	return &Governor{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries: maxRetries,
	}
}

// Acquire blocks the caller until a slot is available under the limiter,
// or ctx is done.
func (g *Governor) Acquire(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return boxerr.Wrap(boxerr.Timeout, "acquire rate slot", err)
	}
	return nil
}

// Execute acquires a slot, runs fn, and on a RateLimited error retries up
// to maxRetries times: sleeping the error's RetryAfter if present, else an
// exponential backoff of 1s, 2s, 4s,... Any non-RateLimited error, or
// exhaustion of retries, is returned to the caller (exhaustion surfaces as
// a RateLimited boxerr.Error).
func (g *Governor) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if err := g.Acquire(ctx); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !boxerr.Is(err, boxerr.RateLimited) {
			return err
		}

		lastErr = err
		if attempt == g.maxRetries {
			break
		}

		wait := boxerr.RetryAfterOf(err)
		if wait <= 0 {
			wait = backoff(attempt)
		}
		logger.WarnCF("ratelimit", "rate limited, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"wait_ms": wait.Milliseconds(),
		})

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return boxerr.Wrap(boxerr.Timeout, "rate limit retry wait", ctx.Err())
		}
	}

	return boxerr.Wrap(boxerr.RateLimited, "retries exhausted", lastErr)
}

func backoff(attempt int) time.Duration {
	d := time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}
