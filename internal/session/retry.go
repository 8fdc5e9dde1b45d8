package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries is the number of reconnects after a transport failure.
	DefaultMaxRetries = 3
	// DefaultRetryInterval is the first wait before reconnecting.
	DefaultRetryInterval = 500 * time.Millisecond
	// RetryMaxInterval caps the wait between reconnects.
	RetryMaxInterval = 10 * time.Second
	// RetryMaxElapsedTime bounds the total time spent retrying one run.
	RetryMaxElapsedTime = 2 * time.Minute
)

// newRetryBackoff creates an exponential backoff with jitter for transport
// retries, stopping after maxRetries attempts or when ctx is done.
func newRetryBackoff(ctx context.Context, initial time.Duration, maxRetries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
