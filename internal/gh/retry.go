package gh

import (
	"context"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 500 * time.Millisecond
)

// retryPolicy bounds retries of transient API failures.
type retryPolicy struct {
	attempts int
	delay    time.Duration
}

// backoff doubles the base delay for each completed attempt.
func (p retryPolicy) backoff(attempt int) time.Duration {
	delay := p.delay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// waitRetry sleeps for the backoff delay or returns early when the context
// is cancelled.
func waitRetry(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
