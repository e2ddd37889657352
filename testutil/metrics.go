/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertSamplesCountInHistogram asserts that passed prometheus.Histogram contains the specified number of samples.
func AssertSamplesCountInHistogram(t assert.TestingT, hist prometheus.Histogram, wantSamplesCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	reg := prometheus.NewPedanticRegistry()
	if !assert.NoError(t, reg.Register(hist)) {
		return false
	}
	gotMetrics, err := reg.Gather()
	if !assert.NoError(t, err) {
		return false
	}
	if !assert.Equal(t, 1, len(gotMetrics)) {
		return false
	}
	return assert.Equal(t, wantSamplesCount, int(gotMetrics[0].GetMetric()[0].Histogram.GetSampleCount()))
}

// RequireSamplesCountInHistogram calls AssertSamplesCountInHistogram and fail test immediately in case of error.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !AssertSamplesCountInHistogram(t, hist, wantSamplesCount) {
		t.FailNow()
	}
}

// AssertCounterVecValue asserts that the counter with the given label values has the expected value.
func AssertCounterVecValue(t assert.TestingT, vec *prometheus.CounterVec, wantValue float64, labelValues ...string) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	counter, err := vec.GetMetricWithLabelValues(labelValues...)
	if !assert.NoError(t, err) {
		return false
	}
	return assert.Equal(t, wantValue, promtestutil.ToFloat64(counter), "labels: %v", labelValues)
}

// RequireCounterVecValue calls AssertCounterVecValue and fail test immediately in case of error.
func RequireCounterVecValue(t require.TestingT, vec *prometheus.CounterVec, wantValue float64, labelValues ...string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !AssertCounterVecValue(t, vec, wantValue, labelValues...) {
		t.FailNow()
	}
}
