// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Source labels tell the Lambda path and the job worker path apart.
const (
	SourceLambda = "lambda"
	SourceJob    = "job"
)

var (
	InvocationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kb_invocations_completed_total",
			Help: "Total number of retrieve-and-generate invocations that returned a response",
		},
		[]string{"source"},
	)

	InvocationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kb_invocations_failed_total",
			Help: "Total number of failed retrieve-and-generate invocations",
		},
		[]string{"source", "error_code"},
	)

	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kb_invocation_duration_seconds",
			Help:    "Duration of retrieve-and-generate invocations in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"source"},
	)

	InvocationsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kb_invocations_active",
			Help: "Number of in-flight retrieve-and-generate invocations",
		},
		[]string{"source"},
	)
)
