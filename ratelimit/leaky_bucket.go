/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// LeakyBucketLimiter implements GCRA (Generic Cell Rate Algorithm). It's a leaky bucket variant algorithm.
// More details and good explanation of this alg is provided here: https://brandur.org/rate-limiting#gcra.
// A fresh client may burst MaxRequests requests, after that one request per Window/MaxRequests is admitted.
// throttled reads the wall clock itself, so the limiter takes no Clock.
type LeakyBucketLimiter struct {
	policy  Policy
	store   throttled.GCRAStoreCtx
	limiter *throttled.GCRARateLimiterCtx
}

var _ Forgetter = (*LeakyBucketLimiter)(nil)

// NewLeakyBucketLimiter creates a new leaky bucket rate limiter that keeps at most maxKeys clients in memory.
func NewLeakyBucketLimiter(policy Policy, maxKeys int) (*LeakyBucketLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if maxKeys == 0 {
		maxKeys = DefaultMaxKeys
	}
	gcraStore, err := memstore.NewCtx(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	reqQuota := throttled.RateQuota{
		MaxRate:  throttled.PerDuration(policy.MaxRequests, policy.Window),
		MaxBurst: policy.MaxRequests - 1,
	}
	gcraLimiter, err := throttled.NewGCRARateLimiterCtx(gcraStore, reqQuota)
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}
	return &LeakyBucketLimiter{policy: policy.withDefaults(), store: gcraStore, limiter: gcraLimiter}, nil
}

// Policy returns the policy the limiter enforces.
func (l *LeakyBucketLimiter) Policy() Policy {
	return l.policy
}

// Check records a request of the identified client and returns the decision.
func (l *LeakyBucketLimiter) Check(ctx context.Context, identifier string) (Decision, error) {
	limited, res, err := l.limiter.RateLimitCtx(ctx, identifier, 1)
	if err != nil {
		return Decision{}, fmt.Errorf("GCRA rate limit: %w", err)
	}
	d := Decision{
		Limit:     l.policy.MaxRequests,
		Remaining: res.Remaining,
		Policy:    l.policy.Name,
	}
	if limited {
		d.Limited = true
		d.Message = l.policy.Message
		d.RetryAfter = res.RetryAfter
		d.Remaining = 0
		return d, nil
	}
	// ResetAfter is relative to the time throttled has taken the decision at.
	d.Reset = time.Now().Add(res.ResetAfter)
	return d, nil
}

// Forget resets the theoretical arrival time of the identified client, so it may burst again.
func (l *LeakyBucketLimiter) Forget(ctx context.Context, identifier string) error {
	tat, _, err := l.store.GetWithTime(ctx, identifier)
	if err != nil {
		return fmt.Errorf("get GCRA state: %w", err)
	}
	if tat == -1 {
		return nil
	}
	// Any arrival time in the past is treated as a fresh client.
	if _, err = l.store.CompareAndSwapWithTTL(ctx, identifier, tat, 0, l.policy.Window); err != nil {
		return fmt.Errorf("reset GCRA state: %w", err)
	}
	return nil
}
