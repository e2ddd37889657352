/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"
)

// Limiter checks requests of clients against a single policy.
type Limiter interface {
	// Check records a request of the identified client and returns the decision.
	// A rejected request is not recorded.
	Check(ctx context.Context, identifier string) (Decision, error)

	// Policy returns the policy the limiter enforces.
	Policy() Policy
}

// Forgetter is implemented by limiters that can drop the state of a client.
type Forgetter interface {
	Forget(ctx context.Context, identifier string) error
}

// LimiterFactory creates limiters for policies. It defines where client state is stored.
type LimiterFactory interface {
	NewLimiter(policy Policy) (Limiter, error)
}

// Sweeper is implemented by limiter factories that keep client state in memory
// and need idle state to be evicted periodically.
type Sweeper interface {
	// Sweep evicts state of clients whose requests are all outside the window, and returns the number of evicted states.
	Sweep(now time.Time) int
}
