// Package metrics exposes Prometheus collectors for eligibility checks,
// dataset refreshes and request submissions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	evaluations     *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	submissions     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Name:      "eligibility_evaluations_total",
			Help:      "Eligibility evaluations by resulting reason.",
		}, []string{"reason"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Name:      "dataset_refreshes_total",
			Help:      "Dataset refreshes by outcome (ok, failed, superseded, skipped).",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lending",
			Name:      "dataset_refresh_duration_seconds",
			Help:      "Time to fetch requests, loans and penalties.",
			Buckets:   prometheus.DefBuckets,
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Name:      "request_submissions_total",
			Help:      "Loan request submissions by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.evaluations, m.refreshes, m.refreshDuration, m.submissions)
	return m
}

// Evaluated counts one eligibility evaluation
func (m *Metrics) Evaluated(reason string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(reason).Inc()
}

// Refreshed records a refresh outcome and its duration
func (m *Metrics) Refreshed(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		m.refreshDuration.Observe(d.Seconds())
	}
}

// Submitted counts one submission attempt by outcome
func (m *Metrics) Submitted(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}
