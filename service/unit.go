/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service runs the units of the rate limiting daemon (HTTP servers, background workers)
// and stops them gracefully on OS signals.
package service

import "github.com/prometheus/client_golang/prometheus"

// Unit represents a service unit that can be started and stopped.
type Unit interface {
	// Start begins the unit's operation. It may block for the unit's lifetime.
	// A fatal error is sent to the passed channel, and the channel must not be used after Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for units that can register their own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics(reg prometheus.Registerer)
	UnregisterMetrics(reg prometheus.Registerer)
}
