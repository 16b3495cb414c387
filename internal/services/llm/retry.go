package llm

import (
	"context"
	"strings"
	"time"
)

// RetryConfig governs exponential backoff for transient LLM HTTP failures.
// No rate-limit response string is matched here, since the native HTTP
// pipeline has no single vendor's error format to key off.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

const (
	DefaultMaxRetries        = 5
	DefaultInitialBackoff    = 2 * time.Second
	DefaultMaxBackoff        = 60 * time.Second
	DefaultBackoffMultiplier = 2.0
)

func NewDefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// CalculateBackoff computes the wait before retry attempt, capped at MaxBackoff.
func (c *RetryConfig) CalculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}
	backoff := time.Duration(float64(c.InitialBackoff) * multiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff
}

// IsRetryable reports whether err looks like a transient transport failure
// worth retrying (connection reset, timeout, 429/5xx status text).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	for _, marker := range []string{"429", "500", "502", "503", "504", "timeout", "connection reset", "EOF"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// Do runs fn, retrying on transient errors with exponential backoff until
// MaxRetries is exhausted or ctx is cancelled.
func (c *RetryConfig) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == c.MaxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.CalculateBackoff(attempt)):
		}
	}
	return lastErr
}
