/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit decides, per client identifier and per named policy,
// whether a request is admitted or rejected.
//
// The default algorithm is an exact sliding log: for every (identifier, policy) pair
// the timestamps of admitted requests within the policy window are kept,
// and a request is admitted only while fewer than MaxRequests of them remain.
// Approximate alternatives (leaky bucket via GCRA, and a two-bucket sliding window)
// are available per policy for cases where memory per client matters more than exactness.
//
// Policies are kept in an explicitly owned Registry, which is injected into HTTP handlers.
// Custom policies are registered at runtime with a deterministic id ("custom_<windowMs>_<max>"),
// so repeated registrations with the same parameters share one set of counters.
package ratelimit
