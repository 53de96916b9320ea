package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// RequestDuration tracks backend request latency by endpoint.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "predict_api_request_duration_seconds",
		Help:    "Duration of backend API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// RequestErrorsTotal counts failed backend requests by endpoint.
	RequestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_api_request_errors_total",
		Help: "Total number of failed backend API requests",
	}, []string{"endpoint"})

	// RetriesTotal counts retried GET attempts by endpoint.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_api_retries_total",
		Help: "Total number of retried backend API requests",
	}, []string{"endpoint"})
)
