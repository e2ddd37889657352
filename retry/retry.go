/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry provides backoff policies used for retrying calls to Redis and to the rate limiting service.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable defines a func that can tell if error is retryable as opposed to persistent.
type IsRetryable func(error) bool

// RetryableFunc is function that does some work and can be potentially retried.
type RetryableFunc func(ctx context.Context) error

// Policy defines backoff strategy.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// DoWithRetry executes fn with retry according to policy p and with respect to context ctx.
// IsRetryable defines which errors lead to retry attempt (can be nil for any error).
// Notify can be used to receive notification on every retry with error and backoff delay
// (can be nil if no notifications required).
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	b := p.NewBackOff()
	bctx := backoff.WithContext(b, ctx)
	return backoff.RetryNotify(func() error {
		err := fn(bctx.Context())
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bctx, notify)
}

// The PolicyFunc type is an adapter to allow the use of ordinary functions as retry.Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements retry.Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ExponentialBackoffPolicy means repeat up to max times with exponentially growing delays (1.5 multiplier).
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	maxAttempts     int
}

// NewExponentialBackoffPolicy returns an exponential backoff policy with given initial interval and max retry attempt count.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval, maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	var bf backoff.BackOff = eb
	if p.maxAttempts > 0 {
		bf = backoff.WithMaxRetries(eb, uint64(p.maxAttempts))
	}
	bf.Reset()
	return bf
}

// HintedBackOff is a backoff.BackOff that prefers a delay hinted by the remote side
// (e.g. the Retry-After header) over the delay of the underlying backoff.
// The underlying backoff is still advanced on every call, so its attempts limit keeps working.
type HintedBackOff struct {
	backoff.BackOff
	maxHint time.Duration
	hint    time.Duration
	hinted  bool
}

// NewHintedBackOff wraps the passed backoff. Hints greater than maxHint stop retrying (zero means no limit).
func NewHintedBackOff(b backoff.BackOff, maxHint time.Duration) *HintedBackOff {
	return &HintedBackOff{BackOff: b, maxHint: maxHint}
}

// SetHint sets the delay for the next NextBackOff call.
func (b *HintedBackOff) SetHint(d time.Duration) {
	if d < 0 {
		d = 0
	}
	b.hint, b.hinted = d, true
}

// NextBackOff implements backoff.BackOff.
func (b *HintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop || !b.hinted {
		return next
	}
	b.hinted = false
	if b.maxHint > 0 && b.hint > b.maxHint {
		return backoff.Stop
	}
	return b.hint
}

// Reset implements backoff.BackOff.
func (b *HintedBackOff) Reset() {
	b.hinted = false
	b.BackOff.Reset()
}
