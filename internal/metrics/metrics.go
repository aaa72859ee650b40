// Package metrics exposes reconciliation pass metrics in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/ftsync/internal/reconcile"
)

// Pass outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomePartial  = "partial" // completed with per-file failures
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// Metrics holds the pass collectors and their registry.
type Metrics struct {
	registry *prometheus.Registry

	passes   *prometheus.CounterVec
	files    *prometheus.CounterVec
	duration prometheus.Histogram
	lastPass prometheus.Gauge
	scanned  prometheus.Gauge
}

// New creates a Metrics with its own registry, including Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ftsync_pass_total",
			Help: "Reconciliation passes by outcome.",
		}, []string{"outcome"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ftsync_files_total",
			Help: "Per-file transitions applied by passes.",
		}, []string{"transition"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ftsync_pass_duration_seconds",
			Help:    "Duration of reconciliation passes.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ftsync_last_pass_timestamp_seconds",
			Help: "Unix time of the last completed pass.",
		}),
		scanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ftsync_last_pass_scanned_files",
			Help: "Files enumerated by the last pass.",
		}),
	}

	m.registry.MustRegister(
		m.passes, m.files, m.duration, m.lastPass, m.scanned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Record observes one pass. res may be nil when the pass could not start.
func (m *Metrics) Record(res *reconcile.Result, err error) {
	m.passes.WithLabelValues(Outcome(err)).Inc()
	if res == nil {
		return
	}

	m.files.WithLabelValues(string(reconcile.TransitionAdded)).Add(float64(res.Added))
	m.files.WithLabelValues(string(reconcile.TransitionUpdated)).Add(float64(res.Updated))
	m.files.WithLabelValues(string(reconcile.TransitionRecovered)).Add(float64(res.Recovered))
	m.files.WithLabelValues(string(reconcile.TransitionDeleted)).Add(float64(res.Deleted))
	m.files.WithLabelValues(string(reconcile.TransitionSkipped)).Add(float64(res.Skipped))
	m.files.WithLabelValues(string(reconcile.TransitionFailed)).Add(float64(len(res.Failures)))
	m.duration.Observe(res.Duration.Seconds())

	if err == nil || Outcome(err) == OutcomePartial {
		m.lastPass.SetToCurrentTime()
		m.scanned.Set(float64(res.Scanned))
	}
}

// Outcome classifies a pass error.
func Outcome(err error) string {
	var passErr *reconcile.PassError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &passErr):
		return OutcomePartial
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
