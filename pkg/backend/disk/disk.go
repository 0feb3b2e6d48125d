// Package disk provides the disk backend: representations whose payload is
// stored, snappy-compressed, in a [cache.Cache].
//
// A [Blob] holds only its key and size. Payloads are written when a RAM
// representation is converted to disk and read back on the reverse
// conversion, so a dataset can be evicted from memory and restored later.
package disk

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/matzehuels/dataflow/pkg/backend/ram"
	"github.com/matzehuels/dataflow/pkg/cache"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// Store writes and reads blobs.
type Store struct {
	cache cache.Cache
	keyer cache.Keyer
	ttl   time.Duration
}

// NewStore creates a blob store over c. A nil keyer uses the default keyer.
func NewStore(c cache.Cache, keyer cache.Keyer) (*Store, error) {
	if c == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "disk store needs a cache")
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &Store{cache: c, keyer: keyer}, nil
}

// SetTTL sets the expiry of blobs written afterwards. Zero keeps them until
// they are released.
func (s *Store) SetTTL(ttl time.Duration) { s.ttl = ttl }

// Write encodes and compresses a RAM representation. A non-nil dst of the
// same kind is overwritten under its existing key.
func (s *Store) Write(ctx context.Context, src repr.Representation, dst *Blob) (*Blob, error) {
	payload, err := ram.Encode(src)
	if err != nil {
		return nil, err
	}
	compressed := snappy.Encode(nil, payload)

	b := dst
	if b == nil || b.store != s || b.kind != src.Kind() {
		b = &Blob{store: s, kind: src.Kind(), key: s.keyer.BlobKey(src.Kind().String(), uuid.NewString())}
	}
	if err := s.cache.Set(ctx, b.key, compressed, s.ttl); err != nil {
		return nil, fmt.Errorf("write blob %s: %w", b.key, err)
	}
	b.size = len(payload)
	b.stored = len(compressed)
	return b, nil
}

// Read loads, decompresses and decodes a blob.
func (s *Store) Read(ctx context.Context, b *Blob) (repr.Representation, error) {
	compressed, ok, err := s.cache.Get(ctx, b.key)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", b.key, err)
	}
	if !ok {
		return nil, errors.Wrap(errors.ErrCodeNotFound, cache.ErrCacheMiss, "blob %s", b.key)
	}
	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decompress blob %s", b.key)
	}
	return ram.Decode(payload)
}

// Blob is a representation stored in a cache.
type Blob struct {
	store  *Store
	kind   repr.OwnerKind
	key    string
	size   int // encoded size
	stored int // compressed size
}

func (b *Blob) Kind() repr.OwnerKind { return b.kind }
func (*Blob) Backend() repr.Backend  { return repr.Disk }
func (b *Blob) Key() string          { return b.key }
func (b *Blob) Size() int            { return b.size }
func (b *Blob) StoredSize() int      { return b.stored }

// Release deletes the stored payload.
func (b *Blob) Release() error {
	return b.store.cache.Delete(context.Background(), b.key)
}

func (b *Blob) String() string {
	return fmt.Sprintf("disk %s %s (%d -> %d bytes)", b.kind, b.key, b.size, b.stored)
}
