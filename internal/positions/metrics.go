package positions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// PositionsTracked is the number of positions in the latest snapshot.
	PositionsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "predict_positions_tracked",
			Help: "Number of positions in the latest snapshot",
		},
	)

	// PositionsRedeemable is the number of resolved positions with shares.
	PositionsRedeemable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "predict_positions_redeemable",
			Help: "Number of positions that can be redeemed",
		},
	)

	// PortfolioValue is the sum of marked position values in collateral units.
	PortfolioValue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "predict_portfolio_value",
			Help: "Sum of position values at book mid prices",
		},
	)

	// MarkErrorsTotal counts book fetches that failed during enrichment.
	MarkErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "predict_position_mark_errors_total",
			Help: "Total book fetch failures while marking positions",
		},
	)

	// LastRefreshTimestamp is the Unix time of the last successful refresh.
	LastRefreshTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "predict_positions_last_refresh_timestamp",
			Help: "Unix timestamp of last successful positions refresh",
		},
	)
)
