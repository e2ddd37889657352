/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsLabelPolicy = "policy"
	metricsLabelResult = "result"
)

// Values of the "result" label.
const (
	MetricsResultAdmitted = "admitted"
	MetricsResultRejected = "rejected"
	MetricsResultError    = "error"
)

// MetricsCollector represents a collector of rate-limiting decisions metrics.
type MetricsCollector interface {
	// IncDecisions increments the number of decisions with the given result for the policy.
	IncDecisions(policy Policy, result string)
}

// PrometheusMetrics represents Prometheus metrics for rate-limiting decisions.
type PrometheusMetrics struct {
	Decisions *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_decisions_total",
		Help:      "Number of rate-limiting decisions by policy and result. Custom policies share the \"custom\" policy label.",
	}, []string{metricsLabelPolicy, metricsLabelResult})
	return &PrometheusMetrics{Decisions: decisions}
}

// MustRegister does registration of metrics collector in the given Prometheus registerer and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(pm.Decisions)
}

// Unregister cancels registration of metrics collector in the given Prometheus registerer.
func (pm *PrometheusMetrics) Unregister(reg prometheus.Registerer) {
	reg.Unregister(pm.Decisions)
}

// IncDecisions increments the number of decisions with the given result for the policy.
func (pm *PrometheusMetrics) IncDecisions(policy Policy, result string) {
	pm.Decisions.With(prometheus.Labels{
		metricsLabelPolicy: policy.MetricsLabel(),
		metricsLabelResult: result,
	}).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncDecisions(Policy, string) {}
