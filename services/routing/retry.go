package routing

import (
	"context"
	"time"

	"github.com/upb/maternal-assistant/services/providers"
)

// DefaultMaxAttempts is the per-provider attempt budget
const DefaultMaxAttempts = 2

// AttemptFunc performs attempt number n (1-based) against a single provider
type AttemptFunc func(ctx context.Context, n int) providers.Outcome

// Retrier repeats retryable failures against one provider with linear backoff:
// the wait before attempt n+1 is BaseDelay*n
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Do runs attempt until it succeeds, fails fatally, or the budget is spent.
// The last outcome is returned unchanged
func (r Retrier) Do(ctx context.Context, attempt AttemptFunc) providers.Outcome {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var last providers.Outcome
	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return providers.RetryableFailure("cancelled", 0, err)
		}

		last = attempt(ctx, n)
		if !last.Retryable() || n == maxAttempts {
			return last
		}

		if !sleep(ctx, r.BaseDelay*time.Duration(n)) {
			return last
		}
	}
	return last
}

// sleep waits for d or until ctx is done; it reports whether the full delay elapsed
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
