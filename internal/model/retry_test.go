// ABOUTME: Tests for the retry policy and the gateway-call retry wrapper
// ABOUTME: Covers backoff progression, terminal short-circuit, and cancellation

package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_BackoffProgression(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		MaxDelay:    10 * time.Second,
	}

	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 8*time.Second, p.Backoff(4))
	// Capped
	assert.Equal(t, 10*time.Second, p.Backoff(5))
	assert.Equal(t, 10*time.Second, p.Backoff(20))
}

func TestRetryPolicy_ZeroValueUsesDefaults(t *testing.T) {
	var p RetryPolicy
	def := DefaultRetryPolicy()
	assert.Equal(t, def.BaseDelay, p.Backoff(1))
	assert.Equal(t, def.MaxDelay, p.Backoff(50))
}

func TestCallWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	gw := NewScriptedGateway(
		Fail(Transient("acme", "completion", errors.New("503"))),
		Fail(Transient("acme", "completion", errors.New("503"))),
		Reply("third time lucky"),
	)
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1.0, MaxDelay: time.Millisecond}

	var failures []int
	resp, err := CallWithRetry(context.Background(), gw, CallRequest{Provider: "acme"}, policy, 0, nil,
		func(attempt int, err error) { failures = append(failures, attempt) })

	require.NoError(t, err)
	assert.Equal(t, "third time lucky", resp.Content)
	assert.Equal(t, 3, gw.CallCount())
	assert.Equal(t, []int{1, 2}, failures)
}

func TestCallWithRetry_TerminalErrorStopsImmediately(t *testing.T) {
	terminal := Terminal("acme", "completion", errors.New("401 unauthorized"))
	gw := NewScriptedGateway(Fail(terminal))
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 1.0, MaxDelay: time.Millisecond}

	_, err := CallWithRetry(context.Background(), gw, CallRequest{Provider: "acme"}, policy, 0, nil, nil)

	require.Error(t, err)
	var modelErr *Error
	require.ErrorAs(t, err, &modelErr)
	assert.False(t, modelErr.Retryable)
	assert.Equal(t, 1, gw.CallCount())
}

func TestCallWithRetry_ExhaustsAttempts(t *testing.T) {
	gw := NewScriptedGateway(Fail(Transient("acme", "completion", errors.New("flaky"))))
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1.0, MaxDelay: time.Millisecond}

	var attempts int
	_, err := CallWithRetry(context.Background(), gw, CallRequest{Provider: "acme"}, policy, 0, nil,
		func(int, error) { attempts++ })

	require.Error(t, err)
	assert.Equal(t, 3, gw.CallCount())
	assert.Equal(t, 3, attempts)
}

func TestCallWithRetry_ContextCancelAbortsWait(t *testing.T) {
	gw := NewScriptedGateway(Fail(Transient("acme", "completion", errors.New("flaky"))))
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Second, Multiplier: 1.0, MaxDelay: 10 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := CallWithRetry(ctx, gw, CallRequest{Provider: "acme"}, policy, 0, nil, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, gw.CallCount())
}

func TestCallWithRetry_CanceledCallIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw := NewScriptedGateway(Reply("unreachable"))
	_, err := CallWithRetry(ctx, gw, CallRequest{Provider: "acme"}, DefaultRetryPolicy(), 0, nil, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, gw.CallCount())
}

func TestCallWithRetry_PerAttemptTimeoutIsTransient(t *testing.T) {
	slow := gatewayFunc(func(ctx context.Context, req CallRequest) (*CallResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 1.0, MaxDelay: time.Millisecond}

	var failures int
	_, err := CallWithRetry(context.Background(), slow, CallRequest{Provider: "acme"}, policy,
		10*time.Millisecond, nil, func(int, error) { failures++ })

	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 2, failures)
}

// gatewayFunc adapts a function to the Gateway interface.
type gatewayFunc func(ctx context.Context, req CallRequest) (*CallResponse, error)

func (f gatewayFunc) Complete(ctx context.Context, req CallRequest) (*CallResponse, error) {
	return f(ctx, req)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(Terminal("p", "op", errors.New("bad key"))))
	assert.True(t, IsRetryable(Transient("p", "op", errors.New("overloaded"))))
	assert.True(t, IsRetryable(errors.New("connection reset")))
}
