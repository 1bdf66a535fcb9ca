// ABOUTME: Explicit retry policy for outbound model calls
// ABOUTME: Exponential backoff with a cap, honoring context cancellation between attempts

package model

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy describes bounded exponential backoff. It is a standalone
// value consumed by the gateway-call wrapper so the policy can be tested
// independently of any call site.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy suits interactive conversation pacing: short first
// delay, three attempts total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
	}
}

// normalized returns the policy with zero values replaced by defaults.
func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// Backoff returns the delay before the given retry. Attempt 1 is the first
// retry (i.e. the delay between the first failure and the second try).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// CallWithRetry invokes the gateway under the policy. CallTimeout bounds
// each individual attempt so a hung gateway call becomes a retryable
// failure instead of suspending the caller indefinitely. onAttemptFailure,
// when non-nil, is invoked once per failed attempt (for APIError records).
// A non-retryable error stops immediately; ctx cancellation aborts waits.
func CallWithRetry(
	ctx context.Context,
	gw Gateway,
	req CallRequest,
	policy RetryPolicy,
	callTimeout time.Duration,
	logger *slog.Logger,
	onAttemptFailure func(attempt int, err error),
) (*CallResponse, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy = policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := policy.Backoff(attempt - 1)
			logger.Debug("retrying model call",
				"provider", req.Provider,
				"attempt", attempt,
				"max_attempts", policy.MaxAttempts,
				"delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := completeOnce(ctx, gw, req, callTimeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if onAttemptFailure != nil {
			onAttemptFailure(attempt, err)
		}

		if !IsRetryable(err) {
			logger.Debug("model call error is not retryable",
				"provider", req.Provider, "error", err)
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	logger.Warn("model call attempts exhausted",
		"provider", req.Provider,
		"attempts", policy.MaxAttempts,
		"error", lastErr)
	return nil, lastErr
}

// completeOnce runs a single attempt under its own timeout.
func completeOnce(ctx context.Context, gw Gateway, req CallRequest, timeout time.Duration) (*CallResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := gw.Complete(ctx, req)
	if err != nil {
		// A per-attempt deadline is a transient failure, not a caller cancel
		if ctx.Err() == context.DeadlineExceeded {
			return nil, Transient(req.Provider, "completion", ctx.Err())
		}
		return nil, err
	}
	return resp, nil
}
