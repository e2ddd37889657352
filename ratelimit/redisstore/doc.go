/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package redisstore provides a sliding log rate limiter that keeps client state in Redis,
// so several service instances share one view of every client.
//
// Each (policy, identifier) pair is a sorted set of admission timestamps in microseconds.
// Purge, count, and insert run atomically in a Lua script.
package redisstore
