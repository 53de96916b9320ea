package trade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// AttemptsTotal counts trade attempts by kind and final result.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predict_trade_attempts_total",
			Help: "Total trade attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	// AttemptDuration measures quote-to-acknowledgement time of successful attempts.
	AttemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "predict_trade_attempt_duration_seconds",
			Help:    "Time from quote to backend acknowledgement",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
)
