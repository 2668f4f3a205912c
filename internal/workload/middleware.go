package workload

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	Delay       time.Duration                              // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(error) bool                           // predicate; if nil, all errors retried
	DelayFunc   func(attempt int, err error) time.Duration // dynamic backoff; attempt is 1-based
}

// NewRetryPolicy returns a policy with exponential backoff and jitter that
// retries everything except cancellation and 4xx responses other than 429.
func NewRetryPolicy(retries int) RetryPolicy {
	source := newJitterSource()

	return RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: func(err error) bool {
			if err == nil {
				return false
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				if httpErr.StatusCode == http.StatusTooManyRequests {
					return true
				}
				return httpErr.StatusCode >= 500
			}
			return true
		},
		DelayFunc: func(attempt int, err error) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
			if backoff > maxRetryDelay {
				backoff = maxRetryDelay
			}
			return backoff + source.jitter(backoff/2)
		},
	}
}

// retrying wraps a Workload so a failing Next is retried before the failure
// reaches the worker.
type retrying struct {
	Workload
	policy RetryPolicy
}

// WithRetry wraps w with retry capability.
func WithRetry(w Workload, policy RetryPolicy) Workload {
	if policy.MaxAttempts <= 1 {
		return w
	}
	return &retrying{Workload: w, policy: policy}
}

func (r *retrying) Next(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = r.Workload.Next(ctx)
		if lastErr == nil {
			return nil
		}

		// Don't delay after the last attempt.
		if attempt < r.policy.MaxAttempts {
			if r.policy.ShouldRetry != nil && !r.policy.ShouldRetry(lastErr) {
				return lastErr
			}
			delay := r.policy.Delay
			if r.policy.DelayFunc != nil {
				delay = r.policy.DelayFunc(attempt, lastErr)
			}
			if err := sleepContext(ctx, delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// limited paces Next calls across all workers.
type limited struct {
	Workload
	limiter *rate.Limiter
}

// WithRateLimit caps the aggregate Next rate at rps calls per second. A
// non-positive rps returns w unchanged.
func WithRateLimit(w Workload, rps int) Workload {
	if rps <= 0 {
		return w
	}
	// Burst of one keeps pacing uniform regardless of worker count.
	return &limited{Workload: w, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (l *limited) Next(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return l.Workload.Next(ctx)
}
