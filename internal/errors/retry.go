package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig shapes the backoff schedule for Retry.
type RetryConfig struct {
	// MaxRetries is the retry count on top of the initial attempt.
	MaxRetries int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64

	// Jitter randomizes each delay into [50%, 100%] of its nominal value so
	// concurrent callers do not retry in lockstep.
	Jitter bool
}

// DefaultRetryConfig returns the schedule used for embedding service calls:
// 3 retries starting at 1s, doubling, capped at 16s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// next computes the delay for the given zero-based retry number.
func (cfg RetryConfig) next(retry int) time.Duration {
	d := float64(cfg.InitialDelay)
	for i := 0; i < retry; i++ {
		d *= cfg.Multiplier
	}
	if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && d > max {
		d = max
	}
	if cfg.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

// Retry runs fn with exponential backoff until it succeeds, the retry budget
// is spent, or ctx is cancelled. Cancellation wins over the backoff sleep.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that produce a value. On exhaustion
// it returns the zero value and the last error, wrapped with the attempt count.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(cfg.next(attempt)):
		}
	}

	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
