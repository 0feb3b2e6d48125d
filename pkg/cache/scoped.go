package cache

// ScopedKeyer wraps a Keyer with a prefix so several networks or users can
// share one store.
//
//	k := cache.NewScopedKeyer(cache.NewDefaultKeyer(), "net:demo:")
//	k.BlobKey("layer", id) // "net:demo:blob:layer:<id>"
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix. A nil inner keyer uses
// DefaultKeyer.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// BlobKey returns the prefixed blob key.
func (k *ScopedKeyer) BlobKey(kind, id string) string {
	return k.prefix + k.inner.BlobKey(kind, id)
}

// ContentKey returns the prefixed content key.
func (k *ScopedKeyer) ContentKey(kind string, data []byte) string {
	return k.prefix + k.inner.ContentKey(kind, data)
}
