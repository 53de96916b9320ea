package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// NativeBalance tracks the native token balance available for gas.
	NativeBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predict_wallet_native_balance",
		Help: "Current native token balance in wallet (whole units)",
	})

	// CollateralBalance tracks the collateral balance available for trading.
	CollateralBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predict_wallet_collateral_balance",
		Help: "Current collateral balance in wallet (whole units)",
	})

	// CollateralAllowance tracks the collateral allowance granted to the exchange.
	CollateralAllowance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predict_wallet_collateral_allowance",
		Help: "Collateral allowance granted to the exchange (whole units)",
	})

	// SignaturesTotal counts signatures produced by kind.
	SignaturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_wallet_signatures_total",
		Help: "Total number of signatures produced",
	}, []string{"kind"})

	// TransactionsTotal counts transaction attempts by status.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_wallet_transactions_total",
		Help: "Total number of transactions by status",
	}, []string{"status"})

	// UpdateErrorsTotal tracks the number of failed balance updates.
	UpdateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predict_wallet_update_errors_total",
		Help: "Total number of failed wallet update attempts",
	})

	// UpdateDuration tracks the time taken to fetch balances.
	UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "predict_wallet_update_duration_seconds",
		Help:    "Time taken to fetch wallet balances (seconds)",
		Buckets: prometheus.DefBuckets,
	})

	// LastUpdateTimestamp tracks the Unix timestamp of the last successful update.
	LastUpdateTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predict_wallet_last_update_timestamp",
		Help: "Unix timestamp of last successful wallet update",
	})
)
