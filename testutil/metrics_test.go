/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRequireCounterVecValue(t *testing.T) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "decisions_total"}, []string{"policy", "result"})
	decisions.WithLabelValues("general", "admitted").Add(3)

	mockT := &MockT{}
	RequireCounterVecValue(mockT, decisions, 3, "general", "admitted")
	require.False(t, mockT.Failed)

	mockT = &MockT{}
	RequireCounterVecValue(mockT, decisions, 1, "general", "admitted")
	require.True(t, mockT.Failed)

	mockT = &MockT{}
	RequireCounterVecValue(mockT, decisions, 0, "general")
	require.True(t, mockT.Failed)
}

func TestRequireSamplesCountInHistogram(t *testing.T) {
	durations := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "durations", Buckets: []float64{0.1, 1, 10}})
	durations.Observe(0.5)

	mockT := &MockT{}
	RequireSamplesCountInHistogram(mockT, durations, 0)
	require.True(t, mockT.Failed)

	mockT = &MockT{}
	RequireSamplesCountInHistogram(mockT, durations, 1)
	require.False(t, mockT.Failed)
}
