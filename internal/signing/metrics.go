package signing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SessionsTotal counts session state transitions.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_signing_transitions_total",
		Help: "Total signing session transitions by target state",
	}, []string{"state"})
)
