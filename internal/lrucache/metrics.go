/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector is notified about the changes of a cache holding per-client rate limiting state.
type MetricsCollector interface {
	SetAmount(int)
	IncHits()
	IncMisses()
	// AddEvictions counts entries dropped by the size limit or the idle sweep.
	AddEvictions(int)
}

const metricsLabelPolicy = "policy"

// PrometheusMetrics holds the state store metrics of all policies, labeled by policy.
type PrometheusMetrics struct {
	EntriesAmount  *prometheus.GaugeVec
	HitsTotal      *prometheus.CounterVec
	MissesTotal    *prometheus.CounterVec
	EvictionsTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates state store metrics. Names are prefixed with namespace if it's not empty.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	labels := []string{metricsLabelPolicy}
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	return &PrometheusMetrics{
		EntriesAmount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_entries_amount",
			Help:      "Total number of per-client rate-limiting states held in memory.",
		}, labels),
		HitsTotal:      counter("state_hits_total", "Number of checks that found existing per-client state."),
		MissesTotal:    counter("state_misses_total", "Number of checks that created new per-client state."),
		EvictionsTotal: counter("state_evictions_total", "Number of per-client states evicted by the size limit or the idle sweep."),
	}
}

// ForPolicy returns a collector for the store of the policy (or of all custom policies) with the given metrics label.
func (pm *PrometheusMetrics) ForPolicy(label string) MetricsCollector {
	return &policyMetrics{
		entries:   pm.EntriesAmount.WithLabelValues(label),
		hits:      pm.HitsTotal.WithLabelValues(label),
		misses:    pm.MissesTotal.WithLabelValues(label),
		evictions: pm.EvictionsTotal.WithLabelValues(label),
	}
}

func (pm *PrometheusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{pm.EntriesAmount, pm.HitsTotal, pm.MissesTotal, pm.EvictionsTotal}
}

// MustRegister registers the metrics and panics on error.
func (pm *PrometheusMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(pm.collectors()...)
}

// Unregister cancels registration of the metrics.
func (pm *PrometheusMetrics) Unregister(reg prometheus.Registerer) {
	for _, c := range pm.collectors() {
		reg.Unregister(c)
	}
}

type policyMetrics struct {
	entries   prometheus.Gauge
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
}

func (m *policyMetrics) SetAmount(n int)    { m.entries.Set(float64(n)) }
func (m *policyMetrics) IncHits()           { m.hits.Inc() }
func (m *policyMetrics) IncMisses()         { m.misses.Inc() }
func (m *policyMetrics) AddEvictions(n int) { m.evictions.Add(float64(n)) }

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)    {}
func (disabledMetrics) IncHits()         {}
func (disabledMetrics) IncMisses()       {}
func (disabledMetrics) AddEvictions(int) {}

var disabledMetricsCollector = disabledMetrics{}
