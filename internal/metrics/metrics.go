// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package metrics instruments the resource tree with Prometheus counters and histograms.
//
// All methods are safe on a nil *Metrics so callers that do not care about metrics can
// pass nil instead of wiring a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hero_scout"

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Reconcile op label values.
const (
	OpAdd    = "add"
	OpUpdate = "update"
	OpRemove = "remove"
	OpDrop   = "drop"
)

// Metrics holds the collectors for one cache.
type Metrics struct {
	// FetchTotal counts remote list calls. Labels: collection, result.
	FetchTotal *prometheus.CounterVec

	// ReconcileTotal counts reconciliation churn. Labels: collection, op.
	ReconcileTotal *prometheus.CounterVec

	// RefreshDuration measures subtree refreshes. Labels: kind.
	RefreshDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg (when non-nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Remote list calls by collection and result",
		}, []string{"collection", "result"}),
		ReconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Reconciled children by collection and operation",
		}, []string{"collection", "op"}),
		RefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Subtree refresh duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.FetchTotal, m.ReconcileTotal, m.RefreshDuration)
	}
	return m
}

// RecordFetch counts one remote list call.
func (m *Metrics) RecordFetch(collection string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.FetchTotal.WithLabelValues(collection, result).Inc()
}

// RecordReconcile adds n to the churn counter. Zero is ignored.
func (m *Metrics) RecordReconcile(collection, op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReconcileTotal.WithLabelValues(collection, op).Add(float64(n))
}

// ObserveRefresh records the duration of a refresh started at start.
func (m *Metrics) ObserveRefresh(kind string, start time.Time) {
	if m == nil {
		return
	}
	m.RefreshDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
