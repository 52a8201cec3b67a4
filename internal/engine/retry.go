package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryPolicy is a bounded exponential backoff: maxAttempts total attempts
// with the delay starting at baseDelay and doubling each time. Shared by
// order submission and reconciliation fetches.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

func (p retryPolicy) run(ctx context.Context, op backoff.Operation) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.baseDelay
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0

	retries := uint64(0)
	if p.maxAttempts > 1 {
		retries = uint64(p.maxAttempts - 1)
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(expo, retries), ctx))
}
