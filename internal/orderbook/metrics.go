package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SnapshotReplacementsTotal tracks wholesale snapshot replacements.
	SnapshotReplacementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predict_orderbook_snapshot_replacements_total",
		Help: "Total number of orderbook snapshot replacements",
	})

	// SnapshotsTracked tracks the number of orderbook snapshots in memory.
	SnapshotsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predict_orderbook_snapshots_tracked",
		Help: "Number of orderbook snapshots tracked in memory",
	})

	// FetchErrorsTotal tracks failed orderbook fetches.
	FetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predict_orderbook_fetch_errors_total",
		Help: "Total number of failed orderbook fetches",
	})
)
