/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-ratelimitd/ratelimit"
)

const (
	rateLimitMetricsLabelDryRun = "dry_run"
	rateLimitMetricsLabelPolicy = "policy"
)

const (
	metricsValYes = "yes"
	metricsValNo  = "no"
)

// RateLimitMetricsCollector represents collector of metrics for requests rejected by the RateLimit middleware.
type RateLimitMetricsCollector struct {
	Rejects *prometheus.CounterVec
}

// NewRateLimitMetricsCollector creates a new instance of RateLimitMetricsCollector.
func NewRateLimitMetricsCollector(namespace string) *RateLimitMetricsCollector {
	return &RateLimitMetricsCollector{
		Rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limit_rejects_total",
			Help:      "Number of HTTP requests rejected due to rate limit exceeded.",
		}, []string{rateLimitMetricsLabelPolicy, rateLimitMetricsLabelDryRun}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (mc *RateLimitMetricsCollector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(mc.Rejects)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (mc *RateLimitMetricsCollector) Unregister(reg prometheus.Registerer) {
	reg.Unregister(mc.Rejects)
}

func (mc *RateLimitMetricsCollector) incRejects(policy ratelimit.Policy, dryRun bool) {
	dryRunVal := metricsValNo
	if dryRun {
		dryRunVal = metricsValYes
	}
	mc.Rejects.With(prometheus.Labels{
		rateLimitMetricsLabelPolicy: policy.MetricsLabel(),
		rateLimitMetricsLabelDryRun: dryRunVal,
	}).Inc()
}
