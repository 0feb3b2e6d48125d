// Package repr defines representation kinds and the converter registry.
//
// A logical dataset (see package data) can exist in several backends at the
// same time. Each concrete encoding is a [Representation] identified by its
// [Key]: the dataset's [OwnerKind] and the [Backend] holding it. Both are
// closed enums, so the set of possible representations is a small fixed
// table rather than an open type hierarchy.
//
// Converters between backends are registered in a [Registry], one independent
// graph per OwnerKind. [Registry.Resolve] finds the cheapest conversion path.
//
// # Example
//
//	reg := repr.NewRegistry()
//	_ = reg.Register(repr.Converter{
//	    Kind: repr.Layer, From: repr.RAM, To: repr.GPU,
//	    Convert: upload,
//	})
//	path, err := reg.Resolve(repr.Layer, repr.RAM, repr.GPU)
package repr

import (
	"fmt"
	"strings"

	"github.com/matzehuels/dataflow/pkg/errors"
)

// OwnerKind identifies the kind of logical dataset. It doubles as the data
// type of network ports.
type OwnerKind uint8

// Owner kinds.
const (
	Buffer OwnerKind = iota + 1
	Layer
	Volume
	Mesh
)

// OwnerKinds lists every owner kind in declaration order.
var OwnerKinds = []OwnerKind{Buffer, Layer, Volume, Mesh}

var ownerKindNames = map[OwnerKind]string{
	Buffer: "buffer",
	Layer:  "layer",
	Volume: "volume",
	Mesh:   "mesh",
}

// String returns the lower-case kind name.
func (k OwnerKind) String() string {
	if s, ok := ownerKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is one of the declared kinds.
func (k OwnerKind) Valid() bool {
	_, ok := ownerKindNames[k]
	return ok
}

// ParseOwnerKind parses a kind name such as "layer" (case-insensitive).
func ParseOwnerKind(s string) (OwnerKind, error) {
	for k, name := range ownerKindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, errors.New(errors.ErrCodeInvalidInput, "unknown owner kind %q", s)
}

// Backend identifies where a representation lives.
type Backend uint8

// Backends.
const (
	RAM Backend = iota + 1
	Disk
	GPU
	Compute
)

// Backends lists every backend in declaration order.
var Backends = []Backend{RAM, Disk, GPU, Compute}

var backendNames = map[Backend]string{
	RAM:     "ram",
	Disk:    "disk",
	GPU:     "gpu",
	Compute: "compute",
}

// String returns the lower-case backend name.
func (b Backend) String() string {
	if s, ok := backendNames[b]; ok {
		return s
	}
	return fmt.Sprintf("backend(%d)", uint8(b))
}

// Valid reports whether b is one of the declared backends.
func (b Backend) Valid() bool {
	_, ok := backendNames[b]
	return ok
}

// RequiresContext reports whether representations in this backend may only be
// created or read on the thread owning the graphics context.
func (b Backend) RequiresContext() bool {
	return b == GPU
}

// ParseBackend parses a backend name such as "gpu" (case-insensitive).
func ParseBackend(s string) (Backend, error) {
	for b, name := range backendNames {
		if strings.EqualFold(s, name) {
			return b, nil
		}
	}
	return 0, errors.New(errors.ErrCodeInvalidInput, "unknown backend %q", s)
}

// Key identifies a representation by owner kind and backend.
type Key struct {
	Kind    OwnerKind
	Backend Backend
}

// String returns "kind/backend".
func (k Key) String() string {
	return k.Kind.String() + "/" + k.Backend.String()
}

// Representation is one concrete encoding of a dataset in one backend.
//
// Holders treat a Representation as read-only. Writes go through
// data.Owner.Editable, which keeps the owner's bookkeeping consistent.
type Representation interface {
	// Kind returns the owner kind of the dataset.
	Kind() OwnerKind

	// Backend returns the backend holding this encoding.
	Backend() Backend

	// Release frees backend resources (device handles, stored blobs).
	// The representation must not be used afterwards.
	Release() error
}

// KeyOf returns the Key of r.
func KeyOf(r Representation) Key {
	return Key{Kind: r.Kind(), Backend: r.Backend()}
}

// Cloner is implemented by representations that can produce an independent
// deep copy of themselves.
type Cloner interface {
	Clone() Representation
}
