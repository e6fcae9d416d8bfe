package resilience

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs op, retrying with exponential backoff while isRetryable(err)
// holds, up to maxAttempts total attempts (at most maxAttempts-1 retries);
// a non-retryable error fails immediately. The exchange Doer passes its
// MaxRetries+1, so RATE_LIMITED and NETWORK_ERROR get up to MaxRetries
// retries (3 by default, SPEC_FULL.md §7).
func Retry(ctx context.Context, maxAttempts int, isRetryable func(error) bool, op func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxAttempts-1)), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
