package metrics

import (
	"context"
	"time"

	"github.com/matzehuels/dataflow/pkg/observability"
)

// Hooks returns an observability bundle that records into r.
func (r *Registry) Hooks() observability.Hooks {
	return observability.Hooks{
		Conversion: conversionHooks{r},
		Evaluation: evaluationHooks{r},
		Cache:      cacheHooks{r},
	}
}

type conversionHooks struct{ r *Registry }

func (h conversionHooks) OnConvert(_ context.Context, kind, from, to string, d time.Duration, err error) {
	h.r.RecordConversion(kind, from, to, d, err)
}

type evaluationHooks struct{ r *Registry }

func (h evaluationHooks) OnEvaluateStart(context.Context, int) {}

func (h evaluationHooks) OnEvaluateComplete(_ context.Context, _, _ int, d time.Duration, err error) {
	h.r.RecordEvaluation(d, err)
}

func (h evaluationHooks) OnProcess(_ context.Context, processor string, d time.Duration, err error) {
	h.r.RecordProcessorRun(processor, "inline", d, err)
}

func (h evaluationHooks) OnDispatch(context.Context, string) {
	h.r.TasksDispatchedTotal.Inc()
	h.r.TasksInFlight.Inc()
}

func (h evaluationHooks) OnTaskComplete(_ context.Context, processor string, d time.Duration, err error) {
	h.r.TasksInFlight.Dec()
	h.r.RecordProcessorRun(processor, "task", d, err)
}

type cacheHooks struct{ r *Registry }

func (h cacheHooks) OnCacheHit(_ context.Context, keyType string) {
	h.r.CacheRequestsTotal.WithLabelValues(keyType, "hit").Inc()
}

func (h cacheHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.r.CacheRequestsTotal.WithLabelValues(keyType, "miss").Inc()
}

func (h cacheHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.r.CacheRequestsTotal.WithLabelValues(keyType, "set").Inc()
	h.r.CacheWriteBytes.WithLabelValues(keyType).Observe(float64(size))
}

var (
	_ observability.ConversionHooks = conversionHooks{}
	_ observability.EvaluationHooks = evaluationHooks{}
	_ observability.CacheHooks      = cacheHooks{}
)
