// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestCounter(t *testing.T) {
	t.Parallel()

	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	m.RequestsTotal.WithLabelValues("complete", StatusSuccess).Inc()
	m.RequestsTotal.WithLabelValues("complete", StatusSuccess).Inc()
	m.RequestsTotal.WithLabelValues("review", StatusOverloaded).Inc()

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("complete", StatusSuccess)); got != 2 {
		t.Errorf("complete/success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("review", StatusOverloaded)); got != 1 {
		t.Errorf("review/overloaded = %v, want 1", got)
	}
}

func TestCacheEventCounter(t *testing.T) {
	t.Parallel()

	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	m.CacheEventsTotal.WithLabelValues(CacheContent, OutcomeHit).Inc()
	m.CacheEventsTotal.WithLabelValues(CacheReviewSemantic, OutcomeMiss).Inc()

	if got := testutil.ToFloat64(m.CacheEventsTotal.WithLabelValues(CacheContent, OutcomeHit)); got != 1 {
		t.Errorf("content/hit = %v, want 1", got)
	}
}

func TestActiveStreamsGauge(t *testing.T) {
	t.Parallel()

	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	g := m.ActiveStreams.WithLabelValues("complete")
	g.Inc()
	g.Inc()
	g.Dec()

	if got := testutil.ToFloat64(g); got != 1 {
		t.Errorf("active streams = %v, want 1", got)
	}
}

func TestOverloadRefusalCounter(t *testing.T) {
	t.Parallel()

	m := NewMetricsWithRegistry(prometheus.NewRegistry())
	m.OverloadRefusalsTotal.Inc()

	if got := testutil.ToFloat64(m.OverloadRefusalsTotal); got != 1 {
		t.Errorf("overload refusals = %v, want 1", got)
	}
}

func TestAdmissionWaitHistogram(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.AdmissionWaitSeconds.Observe(0.02)
	m.AdmissionWaitSeconds.Observe(0.3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != "codeassist_gateway_admission_wait_seconds" {
			continue
		}
		if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
			t.Errorf("admission wait sample count = %d, want 2", got)
		}
		return
	}
	t.Fatal("admission wait histogram not registered")
}
