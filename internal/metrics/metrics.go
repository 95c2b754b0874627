// Package metrics exposes reconciliation counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pysugar/homeauth/internal/db/models"
)

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	// reconcileTotal counts finished attempts by intent and outcome
	reconcileTotal *prometheus.CounterVec

	// reconcileDuration tracks attempt latency, including time spent waiting
	// on the user
	reconcileDuration *prometheus.HistogramVec

	// lookupFailures counts failed device metadata sub-lookups
	lookupFailures *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		reconcileTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "homeauth_reconcile_total",
			Help: "Total reconciliation attempts by intent and outcome",
		}, []string{"intent", "outcome"}),
		reconcileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homeauth_reconcile_duration_seconds",
			Help:    "Reconciliation attempt duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"intent"}),
		lookupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "homeauth_metadata_lookup_failures_total",
			Help: "Failed device metadata lookups by lookup",
		}, []string{"lookup"}),
	}
}

// Record observes one finished attempt.
func (m *Metrics) Record(_ context.Context, attempt models.LoginAttempt) {
	m.reconcileTotal.WithLabelValues(attempt.Intent, attempt.Outcome).Inc()
	m.reconcileDuration.WithLabelValues(attempt.Intent).Observe((time.Duration(attempt.Duration) * time.Millisecond).Seconds())
}

// MetadataLookupFailed counts one failed device sub-lookup.
func (m *Metrics) MetadataLookupFailed(lookup string) {
	m.lookupFailures.WithLabelValues(lookup).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
