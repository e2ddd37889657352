/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// SlidingLogLimiter implements the exact sliding window algorithm (sliding log).
// Timestamps of admitted requests are kept per client; one exactly window-old is already outside the window.
type SlidingLogLimiter struct {
	policy Policy
	store  *MemoryStore
	clock  Clock
}

var _ Forgetter = (*SlidingLogLimiter)(nil)

// NewSlidingLogLimiter creates a new sliding log limiter that keeps client state in the given store.
// Clock can be nil, in this case SystemClock is used.
func NewSlidingLogLimiter(policy Policy, store *MemoryStore, clock Clock) (*SlidingLogLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if clock == nil {
		clock = SystemClock
	}
	return &SlidingLogLimiter{policy: policy.withDefaults(), store: store, clock: clock}, nil
}

// Policy returns the policy the limiter enforces.
func (l *SlidingLogLimiter) Policy() Policy {
	return l.policy
}

// Check records a request of the identified client and returns the decision.
func (l *SlidingLogLimiter) Check(_ context.Context, identifier string) (Decision, error) {
	var d Decision
	l.store.withState(stateKey{l.policy.Name, identifier}, l.policy.Window, func(st *windowState) {
		// Reading the clock under the state lock keeps timestamps ordered.
		d = checkSlidingLog(st, l.policy, l.clock.Now())
	})
	return d, nil
}

// Forget drops the state of the identified client.
func (l *SlidingLogLimiter) Forget(_ context.Context, identifier string) error {
	l.store.forget(stateKey{l.policy.Name, identifier})
	return nil
}

func checkSlidingLog(st *windowState, policy Policy, now time.Time) Decision {
	st.purge(now)
	if len(st.timestamps) >= policy.MaxRequests {
		retryAfter := st.timestamps[0].Add(policy.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{
			Limited:    true,
			Message:    policy.Message,
			RetryAfter: retryAfter,
			Limit:      policy.MaxRequests,
			Remaining:  0,
			Policy:     policy.Name,
		}
	}
	st.timestamps = append(st.timestamps, now)
	return Decision{
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests - len(st.timestamps),
		Reset:     now.Add(policy.Window),
		Policy:    policy.Name,
	}
}
