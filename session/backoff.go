package session

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy computes the delay before each reconnect attempt.
// Delays are non-decreasing between consecutive failures, capped at a
// ceiling, and reset to the base delay after any successful connection.
type RetryPolicy struct {
	inner *backoff.ExponentialBackOff
}

func NewRetryPolicy(base, ceiling time.Duration) *RetryPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = ceiling
	b.Multiplier = 2
	// Jitter would break the non-decreasing delay guarantee.
	b.RandomizationFactor = 0
	// The retry budget bounds attempts, not elapsed time.
	b.MaxElapsedTime = 0
	b.Reset()
	return &RetryPolicy{inner: b}
}

// Next returns the delay to wait before the next attempt.
func (p *RetryPolicy) Next() time.Duration {
	return p.inner.NextBackOff()
}

// Reset restores the base delay. Called on every successful connection.
func (p *RetryPolicy) Reset() {
	p.inner.Reset()
}
