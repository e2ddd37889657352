/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"fmt"
	"sync"
)

type cacheEntry[K comparable, V any] struct {
	key   K
	value V
}

// EvictCallback is called for every entry removed from the cache.
// It is called while the cache lock is held, so it must not call cache methods.
type EvictCallback[K comparable, V any] func(key K, value V)

// LRUCache represents an LRU cache with eviction mechanism and Prometheus metrics.
type LRUCache[K comparable, V any] struct {
	maxEntries int

	mu      sync.Mutex
	lruList *list.List
	cache   map[K]*list.Element // map of cache entries, value is a lruList element

	onEvict          EvictCallback[K, V]
	metricsCollector MetricsCollector
}

// Options represents options for the cache.
type Options[K comparable, V any] struct {
	// OnEvict is called for every entry removed from the cache.
	OnEvict EvictCallback[K, V]
}

// New creates a new LRUCache with the provided maximum number of entries and metrics collector.
// Metrics collector can be nil, in this case, metrics will be disabled.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metricsCollector, Options[K, V]{})
}

// NewWithOpts creates a new LRUCache with the provided maximum number of entries, metrics collector, and options.
func NewWithOpts[K comparable, V any](
	maxEntries int, metricsCollector MetricsCollector, opts Options[K, V],
) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetricsCollector
	}
	return &LRUCache[K, V]{
		maxEntries:       maxEntries,
		lruList:          list.New(),
		cache:            make(map[K]*list.Element),
		onEvict:          opts.OnEvict,
		metricsCollector: metricsCollector,
	}, nil
}

// Get returns a value from the cache by the provided key.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

// GetOrAdd returns a value from the cache by the provided key.
// If the key does not exist, valueProvider is called under the cache lock and its result is added.
// If the cache is full, the least recently used entry is evicted.
func (c *LRUCache[K, V]) GetOrAdd(key K, valueProvider func() V) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, exists = c.get(key); exists {
		return value, true
	}
	value = valueProvider()
	c.addNew(key, value)
	return value, false
}

// Remove removes a value from the cache by the provided key.
// It is not counted as eviction.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	if !ok {
		return false
	}
	c.evict(elem)
	c.metricsCollector.SetAmount(len(c.cache))
	return true
}

// RemoveIf removes all entries for which the predicate returns true and returns the number of removed entries.
// Removed entries are counted as evictions.
func (c *LRUCache[K, V]) RemoveIf(pred func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for elem := c.lruList.Back(); elem != nil; {
		prev := elem.Prev()
		entry := elem.Value.(*cacheEntry[K, V])
		if pred(entry.key, entry.value) {
			c.evict(elem)
			removed++
		}
		elem = prev
	}
	if removed != 0 {
		c.metricsCollector.SetAmount(len(c.cache))
		c.metricsCollector.AddEvictions(removed)
	}
	return removed
}

// Keys returns keys of all entries from the most to the least recently used.
func (c *LRUCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.cache))
	for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*cacheEntry[K, V]).key)
	}
	return keys
}

// Purge clears the cache.
// All removed entries will not be counted as evictions.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvict != nil {
		for _, elem := range c.cache {
			entry := elem.Value.(*cacheEntry[K, V])
			c.onEvict(entry.key, entry.value)
		}
	}
	c.metricsCollector.SetAmount(0)
	c.cache = make(map[K]*list.Element)
	c.lruList.Init()
}

// Len returns the number of items in the cache.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *LRUCache[K, V]) get(key K) (value V, ok bool) {
	elem, hit := c.cache[key]
	if !hit {
		c.metricsCollector.IncMisses()
		return value, false
	}
	c.lruList.MoveToFront(elem)
	c.metricsCollector.IncHits()
	return elem.Value.(*cacheEntry[K, V]).value, true
}

func (c *LRUCache[K, V]) addNew(key K, value V) {
	c.cache[key] = c.lruList.PushFront(&cacheEntry[K, V]{key: key, value: value})
	if len(c.cache) > c.maxEntries {
		if oldest := c.lruList.Back(); oldest != nil {
			c.evict(oldest)
			c.metricsCollector.AddEvictions(1)
		}
	}
	c.metricsCollector.SetAmount(len(c.cache))
}

func (c *LRUCache[K, V]) evict(elem *list.Element) {
	c.lruList.Remove(elem)
	entry := elem.Value.(*cacheEntry[K, V])
	delete(c.cache, entry.key)
	if c.onEvict != nil {
		c.onEvict(entry.key, entry.value)
	}
}
