package metrics

import (
	"strconv"
	"time"
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordConversion records one executed converter edge.
func (r *Registry) RecordConversion(kind, from, to string, duration time.Duration, err error) {
	r.ConversionsTotal.WithLabelValues(kind, from, to, status(err)).Inc()
	r.ConversionDuration.WithLabelValues(kind, from, to).Observe(duration.Seconds())
}

// RecordEvaluation records a finished evaluation pass.
func (r *Registry) RecordEvaluation(duration time.Duration, err error) {
	r.EvaluationsTotal.WithLabelValues(status(err)).Inc()
	r.EvaluationDuration.Observe(duration.Seconds())
	r.LastEvaluationUnixTime.SetToCurrentTime()
}

// RecordProcessorRun records a processor run. mode is "inline" or "task".
func (r *Registry) RecordProcessorRun(processor, mode string, duration time.Duration, err error) {
	r.ProcessorRunsTotal.WithLabelValues(processor, mode, status(err)).Inc()
	r.ProcessorDuration.WithLabelValues(processor, mode).Observe(duration.Seconds())
}

// SetProcessorStates replaces the per-state processor gauges.
func (r *Registry) SetProcessorStates(counts map[string]int) {
	r.ProcessorsByState.Reset()
	for state, n := range counts {
		r.ProcessorsByState.WithLabelValues(state).Set(float64(n))
	}
}

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
