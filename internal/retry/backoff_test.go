package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestRetryWithBackoffSucceedsFirstTry(t *testing.T) {
	calls := 0
	result := RetryWithBackoff(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
	assert.NoError(t, result.LastError)
}

func TestRetryWithBackoffEventualSuccess(t *testing.T) {
	calls := 0
	result := RetryWithBackoff(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
}

func TestRetryWithBackoffExhaustsRetries(t *testing.T) {
	sentinel := errors.New("permanent")
	calls := 0
	result := RetryWithBackoff(context.Background(), fastConfig(2), func() error {
		calls++
		return sentinel
	})

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts, "initial attempt plus two retries")
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, result.LastError, sentinel)
}

func TestRetryWithBackoffStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	result := RetryWithBackoff(ctx, fastConfig(5), func() error {
		calls++
		cancel()
		return errors.New("failing")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls, "no retries after cancellation")
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestCalculateDelayGrowsAndCaps(t *testing.T) {
	config := RetryConfig{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     false,
	}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(config, 0))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(config, 1))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(config, 2))
	assert.Equal(t, time.Second, calculateDelay(config, 5), "capped at MaxDelay")
}

func TestCalculateDelayJitterStaysInBand(t *testing.T) {
	config := RetryConfig{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}

	for i := 0; i < 100; i++ {
		delay := calculateDelay(config, 0)
		assert.GreaterOrEqual(t, delay, 75*time.Millisecond)
		assert.LessOrEqual(t, delay, 125*time.Millisecond)
	}
}
