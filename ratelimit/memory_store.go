/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-ratelimitd/internal/lrucache"
)

// DefaultMaxKeys is the default maximum number of client states kept by a MemoryStore.
const DefaultMaxKeys = 100000

type stateKey struct {
	policy     string
	identifier string
}

// windowState holds timestamps of admitted requests of one client under one policy.
// Timestamps are in ascending order.
type windowState struct {
	mu         sync.Mutex
	window     time.Duration
	timestamps []time.Time
	evicted    bool // set under mu when the state is removed from the store, so late checks re-acquire
}

// purge drops timestamps that are not younger than the window.
func (st *windowState) purge(now time.Time) {
	boundary := now.Add(-st.window)
	i := 0
	for i < len(st.timestamps) && !st.timestamps[i].After(boundary) {
		i++
	}
	if i == 0 {
		return
	}
	if i == len(st.timestamps) {
		st.timestamps = st.timestamps[:0]
		return
	}
	st.timestamps = append(st.timestamps[:0], st.timestamps[i:]...)
}

func (st *windowState) idle(now time.Time) bool {
	n := len(st.timestamps)
	return n == 0 || !st.timestamps[n-1].After(now.Add(-st.window))
}

// MemoryStore keeps sliding log state of clients in a bounded LRU cache.
// Lock order is the cache lock, then the state lock.
type MemoryStore struct {
	cache *lrucache.LRUCache[stateKey, *windowState]
}

// NewMemoryStore creates a new MemoryStore that keeps at most maxKeys client states.
// Metrics collector can be nil.
func NewMemoryStore(maxKeys int, metricsCollector lrucache.MetricsCollector) (*MemoryStore, error) {
	if maxKeys == 0 {
		maxKeys = DefaultMaxKeys
	}
	cache, err := lrucache.NewWithOpts[stateKey, *windowState](maxKeys, metricsCollector, lrucache.Options[stateKey, *windowState]{
		OnEvict: func(_ stateKey, st *windowState) {
			st.mu.Lock()
			st.evicted = true
			st.mu.Unlock()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("new LRU cache for client states: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

// withState calls fn with the locked state of the client, creating the state if needed.
func (s *MemoryStore) withState(key stateKey, window time.Duration, fn func(st *windowState)) {
	for {
		st, _ := s.cache.GetOrAdd(key, func() *windowState {
			return &windowState{window: window}
		})
		st.mu.Lock()
		if st.evicted {
			// Lost a race with eviction, the next GetOrAdd creates a fresh state.
			st.mu.Unlock()
			continue
		}
		fn(st)
		st.mu.Unlock()
		return
	}
}

func (s *MemoryStore) forget(key stateKey) {
	s.cache.Remove(key)
}

// Sweep evicts states whose timestamps are all outside the window. Evicting them never changes a decision.
// Implements Sweeper interface.
func (s *MemoryStore) Sweep(now time.Time) int {
	return s.cache.RemoveIf(func(_ stateKey, st *windowState) bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.idle(now)
	})
}

// Len returns the number of client states in the store.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
