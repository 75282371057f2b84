package syncerr

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxRetries bounds retries of transient failures.
const DefaultMaxRetries = 4

// DefaultBackOff is the retry policy for snapshot reads and file writes.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.WithMaxRetries(b, DefaultMaxRetries)
}

// Retry runs op until it succeeds, fails with an error that is not ErrTransientIO, or
// policy gives up. The last error is returned unwrapped.
func Retry[T any](ctx context.Context, policy backoff.BackOff, op func() (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryWithData[T](func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		slog.Debug("retrying transient failure", "attempt", attempt, "error", err)
		return v, err
	}, backoff.WithContext(policy, ctx))
}

// RetryErr is Retry for operations without a result.
func RetryErr(ctx context.Context, policy backoff.BackOff, op func() error) error {
	_, err := Retry(ctx, policy, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
