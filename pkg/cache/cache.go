// Package cache provides the byte stores behind the disk backend.
//
// A [Cache] maps string keys to opaque byte slices with an optional TTL.
// Three implementations are provided:
//   - [FileCache] stores entries as files under a directory, for the CLI
//   - [RedisCache] stores entries in Redis, shared between processes
//   - [NullCache] stores nothing, for tests and disabled caching
//
// Keys are built by a [Keyer] so that different networks or users can share
// one store without collisions (see [ScopedKeyer]).
package cache

import (
	"context"
	"time"
)

// Cache is a byte store.
//
// Get reports a miss with ok == false and a nil error. Implementations must
// be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Keyer builds cache keys.
type Keyer interface {
	// BlobKey names the stored payload of one representation.
	BlobKey(kind, id string) string

	// ContentKey names a payload by its content hash, so identical data is
	// stored once.
	ContentKey(kind string, data []byte) string
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// BlobKey returns "blob:<kind>:<id>".
func (DefaultKeyer) BlobKey(kind, id string) string {
	return "blob:" + kind + ":" + id
}

// ContentKey returns "content:<sha256 of kind and data>".
func (DefaultKeyer) ContentKey(kind string, data []byte) string {
	return hashKey("content", kind, Hash(data))
}
