package submission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// OrdersSubmittedTotal counts submissions by outcome (accepted, rejected, transport, busy).
	OrdersSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predict_orders_submitted_total",
			Help: "Total order submissions by result",
		},
		[]string{"result", "strategy"},
	)

	// SubmitDuration measures the order POST round trip.
	SubmitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "predict_order_submit_duration_seconds",
			Help:    "Time spent posting a signed order",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
)
