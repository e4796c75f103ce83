package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(retries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RecoversWithinBudget(t *testing.T) {
	// Given: a call that fails twice then succeeds
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustionWrapsLastError(t *testing.T) {
	sentinel := errors.New("service down")
	calls := 0
	err := Retry(context.Background(), fastRetry(2), func() error {
		calls++
		return sentinel
	})

	// Then: initial attempt plus 2 retries, last error preserved
	assert.Equal(t, 3, calls)
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetry_CancellationBeatsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Minute, Multiplier: 2.0}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func() error {
			calls++
			return errors.New("transient")
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls, "must not sleep out the full backoff")
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestRetry_CancelledContextSkipsCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Retry(ctx, fastRetry(3), func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	vec, err := RetryWithResult(context.Background(), fastRetry(3), func() ([]float32, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		return []float32{0.1, 0.2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestRetryWithResult_ZeroValueOnExhaustion(t *testing.T) {
	vec, err := RetryWithResult(context.Background(), fastRetry(1), func() ([]float32, error) {
		return []float32{9}, errors.New("always fails")
	})

	require.Error(t, err)
	assert.Nil(t, vec, "partial results must not leak on failure")
}

func TestRetryConfig_BackoffGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2.0,
	}

	assert.Equal(t, 10*time.Millisecond, cfg.next(0))
	assert.Equal(t, 20*time.Millisecond, cfg.next(1))
	assert.Equal(t, 40*time.Millisecond, cfg.next(2))
	assert.Equal(t, 40*time.Millisecond, cfg.next(3), "growth is capped at MaxDelay")
}

func TestRetryConfig_JitterStaysInRange(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	for i := 0; i < 50; i++ {
		d := cfg.next(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond, fmt.Sprintf("sample %d", i))
		assert.LessOrEqual(t, d, 100*time.Millisecond, fmt.Sprintf("sample %d", i))
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 16*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}
