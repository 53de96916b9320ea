package redemption

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// RedemptionsTotal counts redemption attempts by result.
	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predict_redemptions_total",
			Help: "Total redemption attempts by result (redeemed, rejected, not_ready, failed, invalid)",
		},
		[]string{"result"},
	)

	// RedemptionDuration measures send-to-receipt time.
	RedemptionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "predict_redemption_duration_seconds",
			Help:    "Time from sending a redemption to its receipt",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)
)
