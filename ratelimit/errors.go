/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "errors"

// ErrPolicyNotFound is returned when a check refers to a policy that is not registered.
var ErrPolicyNotFound = errors.New("rate limit policy not found")

// ErrInvalidPolicy is returned when a policy has a non-positive window or max requests number,
// or when its name is empty or clashes with the custom policies namespace.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// ErrTooManyCustomPolicies is returned when a new custom policy would exceed the configured limit.
var ErrTooManyCustomPolicies = errors.New("too many custom rate limit policies")
