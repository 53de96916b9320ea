package allowance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ChecksTotal counts allowance reads by pair and result.
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_allowance_checks_total",
		Help: "Total allowance reads by pair and result",
	}, []string{"pair", "result"})

	// ApprovalsTotal counts approval transactions by pair and result.
	ApprovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_allowance_approvals_total",
		Help: "Total approval transactions by pair and result",
	}, []string{"pair", "result"})

	// PermitDeniedTotal counts flows refused because a required pair was missing.
	PermitDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_allowance_permit_denied_total",
		Help: "Total flows refused for missing approvals",
	}, []string{"action"})
)
