package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "basefn",
			Name:      "retry_attempts_total",
			Help:      "Total number of attempts made by retried operations",
		},
		[]string{"operation", "attempt"},
	)

	retrySuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "basefn",
			Name:      "retry_success_total",
			Help:      "Total number of operations that succeeded after at least one retry",
		},
		[]string{"operation"},
	)

	retryFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "basefn",
			Name:      "retry_failure_total",
			Help:      "Total number of operations that ended in an error",
		},
		[]string{"operation"},
	)

	retryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "basefn",
			Name:      "retry_duration_seconds",
			Help:      "Total duration of retried operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
