package unifiedllm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how many times a failed stream open is attempted
// again and how long to wait in between.
type RetryPolicy struct {
	MaxRetries int           // attempts after the first; 0 disables retries
	BaseDelay  time.Duration // wait before the first retry
	MaxDelay   time.Duration // cap on any single wait, including Retry-After
	Multiplier float64       // growth of the wait per attempt
	Jitter     bool          // spread waits over [0.5, 1.5) of the nominal value
	OnRetry    func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy retries twice, waiting about 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2,
		Jitter:     true,
	}
}

// WithLogger returns a copy of p that logs each retry at Warn level
// before calling any existing OnRetry hook.
func (p RetryPolicy) WithLogger(logger *slog.Logger) RetryPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	prev := p.OnRetry
	p.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying provider request", "attempt", attempt, "delay", delay, "error", err)
		if prev != nil {
			prev(err, attempt, delay)
		}
	}
	return p
}

// Delay returns the wait before retry number attempt, counting from 0.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt && (p.MaxDelay <= 0 || d < float64(p.MaxDelay)); i++ {
		d *= p.Multiplier
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// wait picks the delay for a retry of err. A Retry-After longer than
// MaxDelay means the caller should give up.
func (p RetryPolicy) wait(err error, attempt int) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter != nil {
		d := time.Duration(*rl.RetryAfter * float64(time.Second))
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return 0, false
		}
		return d, true
	}
	return p.Delay(attempt), true
}

// Retry calls fn until it succeeds, fails with an error IsRetryable
// rejects, or runs out of attempts. The last error is returned.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := fn(ctx)
	for attempt := 0; err != nil && attempt < policy.MaxRetries && IsRetryable(err); attempt++ {
		delay, ok := policy.wait(err, attempt)
		if !ok {
			break
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, &AbortError{SDKError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-timer.C:
		}

		result, err = fn(ctx)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
