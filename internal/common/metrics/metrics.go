package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Channel send attempts by event, channel and outcome",
		},
		[]string{"event", "channel", "status"},
	)

	RemindersEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_evaluated_total",
			Help: "Due reminders by kind, threshold and outcome",
		},
		[]string{"kind", "threshold", "outcome"},
	)

	LedgerAppendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_append_failures_total",
			Help: "Delivery ledger writes that failed, by sink",
		},
		[]string{"sink"},
	)

	LiveObservers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_observers",
			Help: "Currently registered live event observers",
		},
	)
)
