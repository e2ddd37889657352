/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"math"
	"time"
)

// Decision is the result of checking a request against a policy.
type Decision struct {
	// Limited is true when the request is rejected.
	Limited bool

	// Message is the policy message, set for rejected requests.
	Message string

	// RetryAfter is how long the client should wait before the next attempt may be admitted.
	// It's zero for admitted requests.
	RetryAfter time.Duration

	// Limit is the max requests number of the policy.
	Limit int

	// Remaining is how many more requests may be admitted within the current window.
	// It's negative when the algorithm cannot tell.
	Remaining int

	// Reset is when the window started by this request ends. It's zero for rejected requests.
	Reset time.Time

	// Policy is the name of the policy the decision was made for.
	Policy string
}

// RetryAfterSeconds returns RetryAfter in whole seconds rounded up, suitable for the Retry-After HTTP header.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}
