package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCacheMetrics() {
	r.CacheRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Total number of cache lookups and writes",
		},
		[]string{"key_type", "result"},
	)

	r.CacheWriteBytes = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_write_bytes",
			Help:      "Size of values written to the cache",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"key_type"},
	)
}
