package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// RunsTotal tracks task runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predict_scheduler_runs_total",
			Help: "Total number of periodic task runs",
		},
		[]string{"task", "status"},
	)

	// RunDuration tracks how long each run takes.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "predict_scheduler_run_duration_seconds",
			Help:    "Duration of periodic task runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// TasksRunning tracks active task loops.
	TasksRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "predict_scheduler_tasks_running",
			Help: "Number of running periodic task loops",
		},
		[]string{"task"},
	)
)
