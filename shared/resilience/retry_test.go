package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errTransient = errors.New("transient failure")

func alwaysRetry(err error) (bool, time.Duration) {
	return true, 0
}

func fastConfig(attempts uint) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Do(context.Background(), fastConfig(5), DoOptions{Retryable: alwaysRetry},
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errTransient
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("expected success on third call, got %q after %d calls", got, calls)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent failure")
	calls := 0
	_, err := Do(context.Background(), fastConfig(5), DoOptions{
		Retryable: func(err error) (bool, time.Duration) { return !errors.Is(err, permanent), 0 },
	}, func(ctx context.Context) (string, error) {
		calls++
		return "", permanent
	})

	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), fastConfig(3), DoOptions{Retryable: alwaysRetry},
		func(ctx context.Context) (string, error) {
			calls++
			return "", errTransient
		})

	if !errors.Is(err, errTransient) {
		t.Errorf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestDoInvokesRetryHook(t *testing.T) {
	t.Parallel()

	var attempts []uint
	_, _ = Do(context.Background(), fastConfig(3), DoOptions{
		Retryable: alwaysRetry,
		OnRetry: func(ctx context.Context, attempt uint, err error, nextDelay time.Duration) {
			attempts = append(attempts, attempt)
		},
	}, func(ctx context.Context) (string, error) {
		return "", errTransient
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("unexpected retry hook attempts: %v", attempts)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, &RetryConfig{MaxAttempts: 3, InitialDelay: time.Minute, BackoffMultiplier: 2},
		DoOptions{Retryable: alwaysRetry},
		func(ctx context.Context) (string, error) {
			return "", errTransient
		})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDoWithOpenCircuitBreaker(t *testing.T) {
	t.Parallel()

	breaker := NewCircuitBreaker("test", 2, time.Hour)
	breaker.RecordResult(errTransient)
	breaker.RecordResult(errTransient)
	if breaker.State() != CircuitOpen {
		t.Fatalf("expected open circuit, got %v", breaker.State())
	}

	calls := 0
	_, err := Do(context.Background(), fastConfig(3), DoOptions{Breaker: breaker, Retryable: alwaysRetry},
		func(ctx context.Context) (string, error) {
			calls++
			return "", errTransient
		})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected the operation to be skipped, got %d calls", calls)
	}
}

func TestCircuitBreakerRecovery(t *testing.T) {
	t.Parallel()

	breaker := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	breaker.RecordResult(fmt.Errorf("boom"))
	if breaker.Allow() {
		t.Fatal("expected open breaker to reject")
	}

	time.Sleep(20 * time.Millisecond)
	if !breaker.Allow() {
		t.Fatal("expected half-open breaker to allow a probe")
	}

	breaker.RecordResult(nil)
	if breaker.State() != CircuitClosed {
		t.Errorf("expected closed circuit after successful probe, got %v", breaker.State())
	}
}
