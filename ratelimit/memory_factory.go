/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-ratelimitd/internal/lrucache"
)

// MemoryFactoryOpts represents options for MemoryFactory.
type MemoryFactoryOpts struct {
	// MaxKeys is the maximum number of client states kept per named policy.
	// All custom policies share one store of this size.
	MaxKeys int

	// Clock is used by created limiters except leaky bucket ones, which run on the wall clock.
	// SystemClock is used if nil.
	Clock Clock

	// MetricsNamespace is a namespace for the client state store metrics.
	MetricsNamespace string
}

// MemoryFactory creates limiters that keep client state in process memory.
type MemoryFactory struct {
	maxKeys      int
	clock        Clock
	cacheMetrics *lrucache.PrometheusMetrics

	mu     sync.Mutex
	stores map[string]*MemoryStore // by policy metrics label
}

var (
	_ LimiterFactory = (*MemoryFactory)(nil)
	_ Sweeper        = (*MemoryFactory)(nil)
)

// NewMemoryFactory creates a new MemoryFactory.
func NewMemoryFactory(opts MemoryFactoryOpts) *MemoryFactory {
	if opts.MaxKeys == 0 {
		opts.MaxKeys = DefaultMaxKeys
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &MemoryFactory{
		maxKeys:      opts.MaxKeys,
		clock:        opts.Clock,
		cacheMetrics: lrucache.NewPrometheusMetrics(opts.MetricsNamespace),
		stores:       make(map[string]*MemoryStore),
	}
}

// NewLimiter creates a limiter for the policy according to its algorithm.
func (f *MemoryFactory) NewLimiter(policy Policy) (Limiter, error) {
	switch alg := policy.withDefaults().Algorithm; alg {
	case AlgorithmSlidingLog:
		store, err := f.storeFor(policy)
		if err != nil {
			return nil, err
		}
		return NewSlidingLogLimiter(policy, store, f.clock)
	case AlgorithmLeakyBucket:
		return NewLeakyBucketLimiter(policy, f.maxKeys)
	case AlgorithmSlidingWindow:
		return NewSlidingWindowLimiter(policy, f.maxKeys, f.clock)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidPolicy, alg)
	}
}

func (f *MemoryFactory) storeFor(policy Policy) (*MemoryStore, error) {
	label := policy.MetricsLabel()

	f.mu.Lock()
	defer f.mu.Unlock()

	if store, ok := f.stores[label]; ok {
		return store, nil
	}
	store, err := NewMemoryStore(f.maxKeys, f.cacheMetrics.ForPolicy(label))
	if err != nil {
		return nil, err
	}
	f.stores[label] = store
	return store, nil
}

// Sweep evicts idle client states from all stores and returns the number of evicted states.
func (f *MemoryFactory) Sweep(now time.Time) int {
	f.mu.Lock()
	stores := make([]*MemoryStore, 0, len(f.stores))
	for _, store := range f.stores {
		stores = append(stores, store)
	}
	f.mu.Unlock()

	var evicted int
	for _, store := range stores {
		evicted += store.Sweep(now)
	}
	return evicted
}

// MustRegisterMetrics registers the client state store metrics in the given Prometheus registerer.
func (f *MemoryFactory) MustRegisterMetrics(reg prometheus.Registerer) {
	f.cacheMetrics.MustRegister(reg)
}

// UnregisterMetrics cancels registration of the client state store metrics.
func (f *MemoryFactory) UnregisterMetrics(reg prometheus.Registerer) {
	f.cacheMetrics.Unregister(reg)
}
