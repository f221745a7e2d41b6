// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the code-assistance
// gateway.
//
// # Description
//
// Metrics cover the request pipeline end to end:
//   - Request counters by endpoint and status
//   - Cache hit/miss counters (content cache and review semantic cache)
//   - Admission wait and stream duration histograms
//   - Active stream gauge
//
// Exposed via the /metrics endpoint; thread safety comes from Prometheus's
// internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "codeassist"

const gatewaySubsystem = "gateway"

// GatewayMetrics holds all Prometheus metrics for the request pipeline.
// Initialize once at startup via InitMetrics().
type GatewayMetrics struct {
	// RequestsTotal counts requests by endpoint and status.
	// Labels: endpoint (complete, chat, review, optimize, refactor),
	// status (success, error, overloaded, invalid)
	RequestsTotal *prometheus.CounterVec

	// CacheEventsTotal counts cache lookups by cache and outcome.
	// Labels: cache (content, review_semantic), outcome (hit, miss)
	CacheEventsTotal *prometheus.CounterVec

	// AdmissionWaitSeconds measures time spent queued for the generation
	// lock before the backend call starts. There is one gate per process,
	// so the histogram carries no endpoint label.
	AdmissionWaitSeconds prometheus.Histogram

	// StreamDurationSeconds measures total stream duration.
	// Labels: endpoint, status (success, error)
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open streaming responses.
	// Labels: endpoint
	ActiveStreams *prometheus.GaugeVec

	// OverloadRefusalsTotal counts generations refused by the resource
	// check before reaching the backend.
	OverloadRefusalsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *GatewayMetrics

// InitMetrics creates and registers all metrics on the default registry.
// Call once at startup; a second call panics on duplicate registration.
func InitMetrics() *GatewayMetrics {
	DefaultMetrics = newMetrics(nil)
	return DefaultMetrics
}

// NewMetricsWithRegistry creates metrics on an isolated registry. Used by
// tests to avoid default-registry conflicts.
func NewMetricsWithRegistry(reg prometheus.Registerer) *GatewayMetrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *GatewayMetrics {
	factory := promauto.With(reg)
	if reg == nil {
		factory = promauto.With(prometheus.DefaultRegisterer)
	}

	return &GatewayMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "requests_total",
				Help:      "Total requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		CacheEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "cache_events_total",
				Help:      "Cache lookups by cache and outcome",
			},
			[]string{"cache", "outcome"},
		),

		AdmissionWaitSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "admission_wait_seconds",
				Help:      "Time spent waiting for the generation lock",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0, 60.0},
			},
		),

		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open streaming responses",
			},
			[]string{"endpoint"},
		),

		OverloadRefusalsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "overload_refusals_total",
				Help:      "Generations refused by the memory resource check",
			},
		),
	}
}

// Status label values for RequestsTotal and StreamDurationSeconds.
const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusOverloaded = "overloaded"
	StatusInvalid    = "invalid"
)

// Cache label values for CacheEventsTotal.
const (
	CacheContent        = "content"
	CacheReviewSemantic = "review_semantic"

	OutcomeHit  = "hit"
	OutcomeMiss = "miss"
)
