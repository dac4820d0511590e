package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "examsmart"

var (
	// HTTPRequests counts handled requests by route template and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency by route template.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// DetectionRequests counts AI detection calls by endpoint and outcome.
	DetectionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "detection_requests_total",
		Help:      "AI text detection calls by source and outcome.",
	}, []string{"source", "outcome"})

	// AttemptsFinalized counts attempts leaving in_progress by terminal status and trigger.
	AttemptsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_finalized_total",
		Help:      "Exam attempts finalized by status and trigger.",
	}, []string{"status", "trigger"})

	// GradingDuration observes how long one grading batch takes.
	GradingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "grading_duration_seconds",
		Help:      "Duration of a grading batch, detection calls included.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)
