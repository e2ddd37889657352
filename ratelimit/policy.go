/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Algorithm is a rate-limiting algorithm used by a policy.
type Algorithm string

// Supported rate-limiting algorithms.
const (
	// AlgorithmSlidingLog keeps the timestamp of every admitted request within the window. It's exact.
	AlgorithmSlidingLog Algorithm = "sliding_log"

	// AlgorithmLeakyBucket is GCRA (Generic Cell Rate Algorithm) with burst equal to MaxRequests.
	AlgorithmLeakyBucket Algorithm = "leaky_bucket"

	// AlgorithmSlidingWindow approximates the window by weighting the previous fixed window counter.
	AlgorithmSlidingWindow Algorithm = "sliding_window"
)

// Names of the built-in policies.
const (
	PolicyGeneral = "general"
	PolicyStrict  = "strict"
	PolicyAuth    = "auth"
	PolicyAPI     = "api"
)

const customPolicyPrefix = "custom_"

// PolicyID identifies a registered custom policy.
type PolicyID string

// CustomPolicyID returns the deterministic id of a custom policy with the given window and max requests number.
func CustomPolicyID(window time.Duration, maxRequests int) PolicyID {
	return PolicyID(fmt.Sprintf("%s%d_%d", customPolicyPrefix, window.Milliseconds(), maxRequests))
}

// Policy describes how many requests a client may make within a rolling window.
type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int
	Message     string
	Algorithm   Algorithm
}

// IsCustom reports whether the policy was registered at runtime via Registry.RegisterCustomPolicy.
func (p Policy) IsCustom() bool {
	return strings.HasPrefix(p.Name, customPolicyPrefix)
}

// Validate checks that the policy may be used for rate limiting.
func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidPolicy)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: window should be positive, got %s", ErrInvalidPolicy, p.Window)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests should be positive, got %d", ErrInvalidPolicy, p.MaxRequests)
	}
	switch p.Algorithm {
	case "", AlgorithmSlidingLog, AlgorithmLeakyBucket, AlgorithmSlidingWindow:
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidPolicy, p.Algorithm)
	}
	return nil
}

func (p Policy) withDefaults() Policy {
	if p.Algorithm == "" {
		p.Algorithm = AlgorithmSlidingLog
	}
	return p
}

// CustomPolicyMetricsLabel is the value of the "policy" metrics label shared by all custom policies.
const CustomPolicyMetricsLabel = "custom"

// MetricsLabel returns the value of the "policy" metrics label. Custom policies share one label value.
func (p Policy) MetricsLabel() string {
	if p.IsCustom() {
		return CustomPolicyMetricsLabel
	}
	return p.Name
}

// BuiltinPolicies returns the policies registered at startup unless overridden by configuration.
func BuiltinPolicies() []Policy {
	return []Policy{
		{
			Name:        PolicyGeneral,
			Window:      15 * time.Minute,
			MaxRequests: 100,
			Message:     "Too many requests from this IP, please try again later.",
			Algorithm:   AlgorithmSlidingLog,
		},
		{
			Name:        PolicyStrict,
			Window:      15 * time.Minute,
			MaxRequests: 10,
			Message:     "Too many requests to sensitive endpoint, please try again later.",
			Algorithm:   AlgorithmSlidingLog,
		},
		{
			Name:        PolicyAuth,
			Window:      15 * time.Minute,
			MaxRequests: 5,
			Message:     "Too many authentication attempts, please try again later.",
			Algorithm:   AlgorithmSlidingLog,
		},
		{
			Name:        PolicyAPI,
			Window:      time.Minute,
			MaxRequests: 60,
			Message:     "API rate limit exceeded, please slow down.",
			Algorithm:   AlgorithmSlidingLog,
		},
	}
}
