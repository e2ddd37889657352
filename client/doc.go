/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package client provides a Go client for the rate limiting service.
//
// The transport paces outgoing calls (golang.org/x/time/rate), pauses while the service reports
// an exhausted quota, and retries rejected calls after the delay the service hints in Retry-After.
// A rejected call that is not retried is returned as *LimitedError.
package client
