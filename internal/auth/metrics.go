package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Failure reasons recorded by Metrics.
const (
	reasonMalformed  = "malformed"
	reasonNoVerifier = "no_verifier"
	reasonInvalid    = "invalid_token"
)

// Metrics counts caller resolutions.
type Metrics struct {
	resolutions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewMetrics creates unregistered resolver metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "resolutions_total",
				Help:      "Total number of callers resolved by identity kind",
			},
			[]string{"kind"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "failures_total",
				Help:      "Total number of rejected credentials by reason",
			},
			[]string{"reason"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "resolve_duration_seconds",
				Help:      "Caller resolution duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
	}
}

// Register registers the metrics with r.
func (m *Metrics) Register(r prometheus.Registerer) {
	r.MustRegister(m.resolutions, m.failures, m.duration)
}

func (m *Metrics) resolved(kind Kind, seconds float64) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(kind.String()).Inc()
	m.duration.Observe(seconds)
}

func (m *Metrics) failed(reason string, seconds float64) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
	m.duration.Observe(seconds)
}
