package services

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of external backend calls. Backends are the
// dominant suspension points of the pipeline and are treated as slow,
// retryable and independently cancellable.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration // Base delay, doubled per attempt
}

// DefaultRetryPolicy returns the policy used when config supplies nothing.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 2 * time.Second}
}

// Do runs fn up to Attempts times with exponential backoff, honoring
// context cancellation between attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := p.Backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
