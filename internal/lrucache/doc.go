/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a bounded in-memory cache with LRU eviction,
// predicate-based sweeping of idle entries, and Prometheus metrics.
// It holds per-client rate-limiting state so that memory stays bounded
// no matter how many distinct identifiers are seen.
package lrucache
