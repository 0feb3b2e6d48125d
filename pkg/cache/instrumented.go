package cache

import (
	"context"
	"strings"
	"time"

	"github.com/matzehuels/dataflow/pkg/observability"
)

// Instrumented reports hits, misses and writes of a Cache to hooks.
type Instrumented struct {
	Cache
	hooks observability.CacheHooks
}

// WithHooks wraps c so every Get and Set is reported to hooks. The key type
// passed to the hooks is "blob" or "content" for keys built by a [Keyer],
// and "other" for anything else.
func WithHooks(c Cache, hooks observability.CacheHooks) *Instrumented {
	if hooks == nil {
		hooks = observability.NoopCacheHooks{}
	}
	return &Instrumented{Cache: c, hooks: hooks}
}

// Get reads through the wrapped cache and reports a hit or miss.
func (c *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := c.Cache.Get(ctx, key)
	if err == nil {
		if ok {
			c.hooks.OnCacheHit(ctx, keyType(key))
		} else {
			c.hooks.OnCacheMiss(ctx, keyType(key))
		}
	}
	return data, ok, err
}

// Set writes through the wrapped cache and reports the payload size.
func (c *Instrumented) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.Cache.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	c.hooks.OnCacheSet(ctx, keyType(key), len(data))
	return nil
}

func keyType(key string) string {
	for _, seg := range strings.Split(key, ":") {
		if seg == "blob" || seg == "content" {
			return seg
		}
	}
	return "other"
}
