package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff_GrowsExponentially(t *testing.T) {
	c := &RetryConfig{InitialBackoff: time.Second, MaxBackoff: time.Minute, BackoffMultiplier: 2.0}
	assert.Equal(t, time.Second, c.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, c.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, c.CalculateBackoff(2))
}

func TestCalculateBackoff_CapsAtMaxBackoff(t *testing.T) {
	c := &RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, BackoffMultiplier: 2.0}
	assert.Equal(t, 5*time.Second, c.CalculateBackoff(10))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("received 503 from upstream")))
	assert.True(t, IsRetryable(errors.New("read: connection reset by peer")))
	assert.False(t, IsRetryable(errors.New("invalid request body")))
	assert.False(t, IsRetryable(nil))
}

func TestRetryConfig_Do_SucceedsWithoutRetryingOnNilError(t *testing.T) {
	c := NewDefaultRetryConfig()
	calls := 0
	err := c.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryConfig_Do_NonRetryableErrorReturnsImmediately(t *testing.T) {
	c := NewDefaultRetryConfig()
	calls := 0
	err := c.Do(context.Background(), func() error {
		calls++
		return errors.New("bad request")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryConfig_Do_RetriesUntilSuccess(t *testing.T) {
	c := &RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, BackoffMultiplier: 2.0}
	calls := 0
	err := c.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("503 temporarily unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryConfig_Do_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	c := &RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, BackoffMultiplier: 2.0}
	calls := 0
	err := c.Do(context.Background(), func() error {
		calls++
		return errors.New("503 unavailable")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestRetryConfig_Do_ContextCancellationStopsRetrying(t *testing.T) {
	c := &RetryConfig{MaxRetries: 5, InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2.0}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := c.Do(ctx, func() error {
		calls++
		return errors.New("503 unavailable")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
