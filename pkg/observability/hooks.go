// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Components receive a [Hooks] value in
// their constructor options and report events through it.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Pass a Hooks bundle explicitly to the registry owners, the evaluator and
//     the caches that should report to it
//
// There is no process-wide registry: the application constructs one Hooks
// value (for example from package metrics) and injects it.
//
// # Usage
//
//	hooks := observability.Hooks{Evaluation: myHooks}.WithDefaults()
//	ev, err := evaluator.New(net, evaluator.Options{Hooks: hooks.Evaluation})
package observability

import (
	"context"
	"time"
)

// =============================================================================
// Conversion Hooks
// =============================================================================

// ConversionHooks receives events from representation conversions.
type ConversionHooks interface {
	// OnConvert records one executed converter edge.
	OnConvert(ctx context.Context, kind, from, to string, duration time.Duration, err error)
}

// =============================================================================
// Evaluation Hooks
// =============================================================================

// EvaluationHooks receives events from the network evaluator.
type EvaluationHooks interface {
	// Pass events
	OnEvaluateStart(ctx context.Context, processors int)
	OnEvaluateComplete(ctx context.Context, processed, failed int, duration time.Duration, err error)

	// OnProcess records a synchronous process call.
	OnProcess(ctx context.Context, processor string, duration time.Duration, err error)

	// Background task events
	OnDispatch(ctx context.Context, processor string)
	OnTaskComplete(ctx context.Context, processor string, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopConversionHooks is a no-op implementation of ConversionHooks.
type NoopConversionHooks struct{}

func (NoopConversionHooks) OnConvert(context.Context, string, string, string, time.Duration, error) {
}

// NoopEvaluationHooks is a no-op implementation of EvaluationHooks.
type NoopEvaluationHooks struct{}

func (NoopEvaluationHooks) OnEvaluateStart(context.Context, int) {}
func (NoopEvaluationHooks) OnEvaluateComplete(context.Context, int, int, time.Duration, error) {
}
func (NoopEvaluationHooks) OnProcess(context.Context, string, time.Duration, error)      {}
func (NoopEvaluationHooks) OnDispatch(context.Context, string)                           {}
func (NoopEvaluationHooks) OnTaskComplete(context.Context, string, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// =============================================================================
// Hooks Bundle
// =============================================================================

// Hooks bundles every hook category. A zero Hooks is valid after
// [Hooks.WithDefaults].
type Hooks struct {
	Conversion ConversionHooks
	Evaluation EvaluationHooks
	Cache      CacheHooks
}

// Noop returns a bundle where every category is a no-op.
func Noop() Hooks {
	return Hooks{
		Conversion: NoopConversionHooks{},
		Evaluation: NoopEvaluationHooks{},
		Cache:      NoopCacheHooks{},
	}
}

// WithDefaults returns a copy of h with nil categories replaced by no-ops.
func (h Hooks) WithDefaults() Hooks {
	if h.Conversion == nil {
		h.Conversion = NoopConversionHooks{}
	}
	if h.Evaluation == nil {
		h.Evaluation = NoopEvaluationHooks{}
	}
	if h.Cache == nil {
		h.Cache = NoopCacheHooks{}
	}
	return h
}
