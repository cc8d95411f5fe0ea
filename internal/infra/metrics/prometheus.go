package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cctv_worker_tasks_processed_total",
		Help: "Total number of tasks handled, by outcome and reason",
	}, []string{"outcome", "reason"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cctv_worker_stage_duration_seconds",
		Help:    "Duration of each analysis pipeline stage",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	WindowsScoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cctv_worker_windows_scored_total",
		Help: "Total number of sequences sent to the classifier, by infer mode",
	}, []string{"mode"})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cctv_worker_decisions_total",
		Help: "Total number of clip verdicts",
	}, []string{"verdict"})

	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cctv_worker_reports_total",
		Help: "Total number of backend reports, by anomaly type and result",
	}, []string{"anomaly_type", "result"})

	FeaturesAdjustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cctv_worker_features_adjusted_total",
		Help: "Tasks whose feature vectors had to be padded or truncated",
	})

	ActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cctv_worker_active_tasks",
		Help: "Number of tasks currently being analyzed",
	})

	RequeueTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cctv_worker_requeue_total",
		Help: "Total number of deliveries returned to the queue, by failure kind",
	}, []string{"kind"})
)
