package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initEvaluationMetrics() {
	r.EvaluationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of evaluation passes",
		},
		[]string{"status"},
	)

	r.EvaluationDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Evaluation pass duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	r.ProcessorRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processor_runs_total",
			Help:      "Total number of processor runs, inline or background",
		},
		[]string{"processor", "mode", "status"},
	)

	r.ProcessorDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processor_duration_seconds",
			Help:      "Processor run duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"processor", "mode"},
	)

	r.TasksDispatchedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dispatched_total",
			Help:      "Total number of background tasks submitted to the worker pool",
		},
	)

	r.TasksInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Number of background tasks currently running",
		},
	)

	r.ProcessorsByState = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processors",
			Help:      "Number of processors in each state",
		},
		[]string{"state"},
	)

	r.LastEvaluationUnixTime = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_evaluation_timestamp_seconds",
			Help:      "Unix time of the last completed evaluation pass",
		},
	)
}
