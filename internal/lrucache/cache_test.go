/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"strconv"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clientState struct {
	hits int
	dead bool
}

func newTestMetrics() (*PrometheusMetrics, MetricsCollector) {
	metrics := NewPrometheusMetrics("")
	return metrics, metrics.ForPolicy("test")
}

func TestNew(t *testing.T) {
	_, err := New[string, int](0, nil)
	require.EqualError(t, err, "maxEntries must be greater than 0")

	cache, err := New[string, int](1, nil)
	require.NoError(t, err)
	require.Equal(t, 0, cache.Len())
}

func TestLRUCache_GetOrAdd(t *testing.T) {
	metrics, collector := newTestMetrics()
	cache, err := New[string, *clientState](10, collector)
	require.NoError(t, err)

	st, exists := cache.GetOrAdd("10.0.0.1", func() *clientState { return &clientState{} })
	require.False(t, exists)
	st.hits++

	st2, exists := cache.GetOrAdd("10.0.0.1", func() *clientState {
		t.Fatal("value provider must not be called for existing key")
		return nil
	})
	require.True(t, exists)
	require.Same(t, st, st2)
	require.Equal(t, 1, st2.hits)

	_, ok := cache.Get("10.0.0.2")
	require.False(t, ok)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EntriesAmount.WithLabelValues("test")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.HitsTotal.WithLabelValues("test")))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.MissesTotal.WithLabelValues("test")))
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	metrics, collector := newTestMetrics()
	var evicted []string
	cache, err := NewWithOpts[string, *clientState](2, collector, Options[string, *clientState]{
		OnEvict: func(key string, value *clientState) {
			value.dead = true
			evicted = append(evicted, key)
		},
	})
	require.NoError(t, err)

	a, _ := cache.GetOrAdd("a", func() *clientState { return &clientState{} })
	cache.GetOrAdd("b", func() *clientState { return &clientState{} })
	_, _ = cache.Get("a") // "b" becomes the least recently used
	cache.GetOrAdd("c", func() *clientState { return &clientState{} })

	require.Equal(t, []string{"b"}, evicted)
	require.Equal(t, []string{"c", "a"}, cache.Keys())
	require.False(t, a.dead)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.EvictionsTotal.WithLabelValues("test")))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.EntriesAmount.WithLabelValues("test")))
}

func TestLRUCache_RemoveIf(t *testing.T) {
	metrics, collector := newTestMetrics()
	var evictCalls int
	cache, err := NewWithOpts[string, *clientState](100, collector, Options[string, *clientState]{
		OnEvict: func(string, *clientState) { evictCalls++ },
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		i := i
		cache.GetOrAdd(strconv.Itoa(i), func() *clientState { return &clientState{hits: i} })
	}

	removed := cache.RemoveIf(func(_ string, st *clientState) bool { return st.hits%2 == 0 })
	require.Equal(t, 5, removed)
	require.Equal(t, 5, evictCalls)
	require.Equal(t, 5, cache.Len())
	require.Equal(t, 5.0, testutil.ToFloat64(metrics.EvictionsTotal.WithLabelValues("test")))

	require.Zero(t, cache.RemoveIf(func(string, *clientState) bool { return false }))
}

func TestLRUCache_RemoveAndPurge(t *testing.T) {
	var evictCalls int
	cache, err := NewWithOpts[string, int](10, nil, Options[string, int]{
		OnEvict: func(string, int) { evictCalls++ },
	})
	require.NoError(t, err)

	cache.GetOrAdd("a", func() int { return 1 })
	cache.GetOrAdd("b", func() int { return 2 })

	require.True(t, cache.Remove("a"))
	require.False(t, cache.Remove("a"))
	require.Equal(t, 1, evictCalls)

	cache.Purge()
	require.Equal(t, 2, evictCalls)
	require.Zero(t, cache.Len())
}

func TestLRUCache_Concurrency(t *testing.T) {
	cache, err := New[int, *clientState](50, nil)
	require.NoError(t, err)

	const goroutines = 20
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				cache.GetOrAdd((g*1000+i)%100, func() *clientState { return &clientState{} })
				if i%100 == 0 {
					cache.RemoveIf(func(k int, _ *clientState) bool { return k%7 == 0 })
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, cache.Len(), 50)
}
