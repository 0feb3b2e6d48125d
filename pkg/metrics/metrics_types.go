// Package metrics exposes Prometheus metrics for conversions, evaluation
// passes, caches and the inspection server.
//
// A [Registry] owns its own prometheus.Registry, so several can coexist in
// one process (tests create one each). Wire it into the library through
// [Registry.Hooks]:
//
//	m := metrics.NewRegistry()
//	hooks := m.Hooks()
//	ev, err := evaluator.New(net, evaluator.Options{Hooks: hooks.Evaluation})
//	http.Handle("/metrics", m.Handler())
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dataflow"

// Registry holds all metrics for the application
type Registry struct {
	// Conversion Metrics
	ConversionsTotal   *prometheus.CounterVec
	ConversionDuration *prometheus.HistogramVec

	// Evaluation Metrics
	EvaluationsTotal       *prometheus.CounterVec
	EvaluationDuration     prometheus.Histogram
	ProcessorRunsTotal     *prometheus.CounterVec
	ProcessorDuration      *prometheus.HistogramVec
	TasksDispatchedTotal   prometheus.Counter
	TasksInFlight          prometheus.Gauge
	ProcessorsByState      *prometheus.GaugeVec
	LastEvaluationUnixTime prometheus.Gauge

	// Cache Metrics
	CacheRequestsTotal *prometheus.CounterVec
	CacheWriteBytes    *prometheus.HistogramVec

	// HTTP Metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewRegistry creates a new metrics registry with all metrics initialized,
// plus the Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{registry: reg}
	r.initConversionMetrics()
	r.initEvaluationMetrics()
	r.initCacheMetrics()
	r.initHTTPMetrics()
	return r
}

// Prometheus returns the underlying Prometheus registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
