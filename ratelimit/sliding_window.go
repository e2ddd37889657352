/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"

	"github.com/RussellLuo/slidingwindow"

	"github.com/acronis/go-ratelimitd/internal/lrucache"
)

// SlidingWindowLimiter implements the approximate sliding window algorithm:
// the count of the previous fixed window is weighted by its overlap with the sliding one.
// It keeps two counters per client instead of every timestamp.
type SlidingWindowLimiter struct {
	policy    Policy
	store     *lrucache.LRUCache[string, *clientWindow]
	clock     Clock
	newWindow func() (slidingwindow.Window, slidingwindow.StopFunc)
}

// clientWindow is the limiter of a single client. stop is called once the client is dropped from the store.
type clientWindow struct {
	limiter *slidingwindow.Limiter
	stop    slidingwindow.StopFunc
}

var _ Forgetter = (*SlidingWindowLimiter)(nil)

// NewSlidingWindowLimiter creates a new sliding window rate limiter that keeps at most maxKeys clients in memory.
func NewSlidingWindowLimiter(policy Policy, maxKeys int, clock Clock) (*SlidingWindowLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if maxKeys == 0 {
		maxKeys = DefaultMaxKeys
	}
	if clock == nil {
		clock = SystemClock
	}
	store, err := lrucache.NewWithOpts[string, *clientWindow](maxKeys, nil, lrucache.Options[string, *clientWindow]{
		OnEvict: func(_ string, w *clientWindow) { w.stop() },
	})
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &SlidingWindowLimiter{
		policy:    policy.withDefaults(),
		store:     store,
		clock:     clock,
		newWindow: newLocalWindow,
	}, nil
}

func newLocalWindow() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

// Policy returns the policy the limiter enforces.
func (l *SlidingWindowLimiter) Policy() Policy {
	return l.policy
}

// Check records a request of the identified client and returns the decision.
// Remaining is always reported as unknown (-1).
func (l *SlidingWindowLimiter) Check(_ context.Context, identifier string) (Decision, error) {
	w, _ := l.store.GetOrAdd(identifier, func() *clientWindow {
		lim, stop := slidingwindow.NewLimiter(l.policy.Window, int64(l.policy.MaxRequests), l.newWindow)
		return &clientWindow{limiter: lim, stop: stop}
	})
	now := l.clock.Now()
	if w.limiter.AllowN(now, 1) {
		return Decision{
			Limit:     l.policy.MaxRequests,
			Remaining: -1,
			Reset:     now.Add(l.policy.Window),
			Policy:    l.policy.Name,
		}, nil
	}
	size := l.policy.Window
	return Decision{
		Limited:    true,
		Message:    l.policy.Message,
		RetryAfter: now.Truncate(size).Add(size).Sub(now),
		Limit:      l.policy.MaxRequests,
		Remaining:  0,
		Policy:     l.policy.Name,
	}, nil
}

// Forget drops the counters of the identified client and stops its window.
func (l *SlidingWindowLimiter) Forget(_ context.Context, identifier string) error {
	l.store.Remove(identifier)
	return nil
}
