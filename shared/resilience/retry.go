package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrCircuitOpen is returned without invoking the operation when the circuit
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type RetryConfig struct {
	MaxAttempts       uint
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// Retryable reports whether an error is worth retrying and, when positive,
// an optional server-directed delay overriding the backoff schedule.
type Retryable func(err error) (bool, time.Duration)

type RetryHook func(ctx context.Context, attempt uint, err error, nextDelay time.Duration)

type DoOptions struct {
	Breaker   *CircuitBreaker
	Retryable Retryable
	OnRetry   RetryHook
}

// Do runs op with exponential backoff according to cfg. The last error is
// returned once attempts are exhausted, the error is not retryable, or the
// context is done.
func Do[T any](ctx context.Context, cfg *RetryConfig, opts DoOptions, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := uint(1)
	delay := time.Duration(0)
	if cfg != nil {
		if cfg.MaxAttempts > 0 {
			attempts = cfg.MaxAttempts
		}
		delay = cfg.InitialDelay
	}

	var lastErr error
	for attempt := uint(0); attempt < attempts; attempt++ {
		if opts.Breaker != nil && !opts.Breaker.Allow() {
			return zero, ErrCircuitOpen
		}

		result, err := op(ctx)
		if opts.Breaker != nil {
			opts.Breaker.RecordResult(err)
		}
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}

		retry, after := false, time.Duration(0)
		if opts.Retryable != nil {
			retry, after = opts.Retryable(err)
		}
		if !retry {
			break
		}

		next := delay
		if after > 0 {
			next = after
		}
		if cfg != nil && cfg.MaxDelay > 0 && next > cfg.MaxDelay {
			next = cfg.MaxDelay
		}

		if opts.OnRetry != nil {
			opts.OnRetry(ctx, attempt+1, err, next)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(next):
		}

		if cfg != nil && cfg.BackoffMultiplier > 1 {
			delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		}
	}

	return zero, lastErr
}
