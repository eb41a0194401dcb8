package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace is the metric namespace used when none is configured.
const DefaultNamespace = "basefn"

// Metrics holds the Prometheus metrics for function invocations.
type Metrics struct {
	invocations      *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	inFlight         *prometheus.GaugeVec
	rateLimited      *prometheus.CounterVec
	rateLimitDegrade *prometheus.CounterVec
	logFailures      *prometheus.CounterVec
	registry         *prometheus.Registry
}

// NewMetrics creates a new Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_invocations_total",
			Help:      "Total number of function invocations by outcome code",
		},
		[]string{"function", "method", "code"},
	)
	m.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "function_duration_seconds",
			Help:      "Function invocation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"function", "code"},
	)
	m.inFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "function_in_flight",
			Help:      "Number of function invocations in progress",
		},
		[]string{"function"},
	)
	m.rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_rate_limited_total",
			Help:      "Total number of invocations rejected by the rate limiter",
		},
		[]string{"function"},
	)
	m.rateLimitDegrade = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_rate_limit_degraded_total",
			Help:      "Total number of invocations admitted because the rate limit store failed",
		},
		[]string{"function"},
	)

	m.logFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_log_failures_total",
			Help:      "Total number of invocation log writes that failed",
		},
		[]string{"function"},
	)

	m.registry.MustRegister(
		m.invocations,
		m.duration,
		m.inFlight,
		m.rateLimited,
		m.rateLimitDegrade,
		m.logFailures,
	)

	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Gatherer returns the registry merged with the default gatherer, which
// carries the runtime collectors and package-level resilience metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{m.registry, prometheus.DefaultGatherer}
}

// Handler returns the HTTP handler exposing Gatherer.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{})
}

// InvocationStarted marks an invocation of function as in flight.
func (m *Metrics) InvocationStarted(function string) {
	m.inFlight.WithLabelValues(function).Inc()
}

// InvocationFinished records the outcome of an invocation.
func (m *Metrics) InvocationFinished(function, method, code string, seconds float64) {
	m.inFlight.WithLabelValues(function).Dec()
	m.invocations.WithLabelValues(function, method, code).Inc()
	m.duration.WithLabelValues(function, code).Observe(seconds)
}

// RateLimited records a rate limit rejection.
func (m *Metrics) RateLimited(function string) {
	m.rateLimited.WithLabelValues(function).Inc()
}

// RateLimitDegraded records an admission made while the limiter store was failing.
func (m *Metrics) RateLimitDegraded(function string) {
	m.rateLimitDegrade.WithLabelValues(function).Inc()
}

// LogFailed records a log write for function that panicked.
func (m *Metrics) LogFailed(function string) {
	m.logFailures.WithLabelValues(function).Inc()
}
