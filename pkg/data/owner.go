// Package data implements the data owner: one logical dataset held in one or
// more backend representations.
//
// An [Owner] keeps at most one representation per [repr.Backend]. Exactly one
// backend is authoritative (the last one written); every other cached
// representation is either in sync with it or stale. Reads convert lazily and
// memoize the result; writes flip authority and mark everything else stale.
//
//	o := data.NewFrom(layer, data.Options{Registry: reg, Queue: q})
//	tex, err := data.As[*gpu.Resource](ctx, o, repr.GPU)      // converts once
//	tex, err = data.As[*gpu.Resource](ctx, o, repr.GPU)       // cached
//	img, err := data.EditableAs[*ram.Layer](ctx, o, repr.RAM) // GPU copy is now stale
//
// Owners are safe for concurrent use; each owner guards its cache with its own
// mutex. Conversions that touch a context-bound backend run on the injected
// [ctxthread.Queue].
package data

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/dataflow/pkg/ctxthread"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/observability"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// Options holds the services an owner depends on.
type Options struct {
	// Registry resolves conversion paths. A nil registry means no conversions.
	Registry *repr.Registry

	// Queue runs conversions that require the graphics context. When nil
	// such conversions run on the calling goroutine.
	Queue *ctxthread.Queue

	// Hooks receives one event per executed converter.
	Hooks observability.ConversionHooks

	// Logger reports release failures. Defaults to log.Default().
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Registry == nil {
		o.Registry = repr.NewRegistry()
	}
	if o.Hooks == nil {
		o.Hooks = observability.NoopConversionHooks{}
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// ChangeHandler is called after a write made a new representation
// authoritative. It runs without the owner lock held.
type ChangeHandler func(*Owner)

type entry struct {
	rep   repr.Representation
	valid bool
}

// Owner holds every cached representation of one dataset.
type Owner struct {
	id   uuid.UUID
	kind repr.OwnerKind
	opts Options

	mu       sync.Mutex
	reps     map[repr.Backend]*entry
	last     repr.Backend // authoritative backend, zero when empty
	onChange ChangeHandler
}

// New creates an empty owner of the given kind.
func New(kind repr.OwnerKind, opts Options) *Owner {
	return &Owner{
		id:   uuid.New(),
		kind: kind,
		opts: opts.withDefaults(),
		reps: make(map[repr.Backend]*entry),
	}
}

// NewFrom creates an owner whose initial, authoritative representation is
// rep. This is the contract for readers: they produce one representation in
// whatever backend is natural and let the registry handle the rest.
func NewFrom(rep repr.Representation, opts Options) *Owner {
	o := New(rep.Kind(), opts)
	o.reps[rep.Backend()] = &entry{rep: rep, valid: true}
	o.last = rep.Backend()
	return o
}

// ID returns the owner's unique identifier.
func (o *Owner) ID() uuid.UUID { return o.id }

// Kind returns the owner kind.
func (o *Owner) Kind() repr.OwnerKind { return o.kind }

// String returns a short description such as "layer 1b9d6bcd".
func (o *Owner) String() string {
	return fmt.Sprintf("%s %s", o.kind, o.id.String()[:8])
}

// SetChangeHandler installs the single change handler, replacing any
// previous one. Outports install themselves here when they publish the owner.
func (o *Owner) SetChangeHandler(h ChangeHandler) {
	o.mu.Lock()
	o.onChange = h
	o.mu.Unlock()
}

// Has reports whether a representation for backend is cached, valid or not.
// It never triggers a conversion.
func (o *Owner) Has(b repr.Backend) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.reps[b]
	return ok
}

// HasValid reports whether a cached representation for backend is in sync.
func (o *Owner) HasValid(b repr.Backend) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.reps[b]
	return ok && e.valid
}

// Empty reports whether the owner holds no representation at all.
func (o *Owner) Empty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last == 0
}

// Authoritative returns the backend of the last written representation, or
// zero when the owner is empty.
func (o *Owner) Authoritative() repr.Backend {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Backends returns the cached backends in declaration order.
func (o *Owner) Backends() []repr.Backend {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []repr.Backend
	for _, b := range repr.Backends {
		if _, ok := o.reps[b]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Get returns the representation for backend, converting if needed.
//
// A valid cached representation is returned as is. Otherwise the cheapest
// path from the valid representations (the authoritative one preferred) is
// resolved and executed edge by edge; every produced representation,
// intermediates included, is cached as valid. Stale representations are
// passed to converters for in-place update.
//
// Get returns an ErrCodeEmptyData error when the owner holds nothing and
// ErrCodeNoConverterPath when the registry cannot reach backend.
func (o *Owner) Get(ctx context.Context, b repr.Backend) (repr.Representation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.getLocked(ctx, b)
}

// Editable returns the representation for backend like [Owner.Get], makes it
// the authoritative representation and marks every other one stale. The
// change handler fires once the owner lock is released.
func (o *Owner) Editable(ctx context.Context, b repr.Backend) (repr.Representation, error) {
	o.mu.Lock()
	rep, err := o.getLocked(ctx, b)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.setAuthoritativeLocked(b)
	h := o.onChange
	o.mu.Unlock()

	if h != nil {
		h(o)
	}
	return rep, nil
}

// Add stores rep as the new authoritative representation, replacing and
// releasing any representation of the same backend, and fires the change
// handler.
func (o *Owner) Add(ctx context.Context, rep repr.Representation) error {
	if rep.Kind() != o.kind {
		return errors.New(errors.ErrCodeInvalidInput, "cannot add %s representation to %s owner", rep.Kind(), o.kind)
	}

	o.mu.Lock()
	b := rep.Backend()
	if old, ok := o.reps[b]; ok && old.rep != rep {
		o.releaseLocked(ctx, old.rep)
	}
	o.reps[b] = &entry{rep: rep, valid: true}
	o.setAuthoritativeLocked(b)
	h := o.onChange
	o.mu.Unlock()

	if h != nil {
		h(o)
	}
	return nil
}

// Remove releases and drops the representation for backend. If it was the
// authoritative one, authority passes to another valid representation; when
// none is left the stale remainder is released too, since nothing could
// bring it back in sync.
func (o *Owner) Remove(ctx context.Context, b repr.Backend) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.reps[b]
	if !ok {
		return
	}
	o.releaseLocked(ctx, e.rep)
	delete(o.reps, b)

	if o.last != b {
		return
	}
	o.last = 0
	for _, other := range repr.Backends {
		if e, ok := o.reps[other]; ok && e.valid {
			o.last = other
			return
		}
	}
	o.clearLocked(ctx)
}

// RemoveOthers brings backend in sync, then releases every other
// representation so that only backend remains.
func (o *Owner) RemoveOthers(ctx context.Context, b repr.Backend) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.getLocked(ctx, b); err != nil {
		return err
	}
	for other, e := range o.reps {
		if other == b {
			continue
		}
		o.releaseLocked(ctx, e.rep)
		delete(o.reps, other)
	}
	o.last = b
	return nil
}

// Clear releases every representation, leaving the owner empty.
func (o *Owner) Clear(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clearLocked(ctx)
}

// Close releases every representation. It is equivalent to Clear with a
// background context and exists so owners satisfy io.Closer.
func (o *Owner) Close() error {
	o.Clear(context.Background())
	return nil
}

// Clone returns a new owner holding an independent copy of the authoritative
// representation only. Backends that cannot copy themselves are cloned
// through their RAM representation.
func (o *Owner) Clone(ctx context.Context) (*Owner, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.last == 0 {
		return nil, errors.New(errors.ErrCodeEmptyData, "cannot clone empty %s owner", o.kind)
	}

	src := o.reps[o.last].rep
	if _, ok := src.(repr.Cloner); !ok {
		ramRep, err := o.getLocked(ctx, repr.RAM)
		if err != nil {
			return nil, fmt.Errorf("clone via ram: %w", err)
		}
		src = ramRep
	}
	c, ok := src.(repr.Cloner)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupported, "%s representation cannot be cloned", repr.KeyOf(src))
	}
	return NewFrom(c.Clone(), o.opts), nil
}

// =============================================================================
// Internal Implementation
// =============================================================================

func (o *Owner) getLocked(ctx context.Context, b repr.Backend) (repr.Representation, error) {
	if e, ok := o.reps[b]; ok && e.valid {
		return e.rep, nil
	}
	if o.last == 0 {
		return nil, errors.New(errors.ErrCodeEmptyData, "%s owner has no representation to convert to %s", o.kind, b)
	}

	path, err := o.opts.Registry.ResolveAny(o.kind, o.validSourcesLocked(), b)
	if err != nil {
		return nil, err
	}

	for _, c := range path {
		src := o.reps[c.From].rep
		var dst repr.Representation
		if e, ok := o.reps[c.To]; ok {
			dst = e.rep
		}

		out, err := o.convert(ctx, c, src, dst)
		if err != nil {
			return nil, err
		}
		if dst != nil && out != dst {
			o.releaseLocked(ctx, dst)
		}
		o.reps[c.To] = &entry{rep: out, valid: true}
	}
	return o.reps[b].rep, nil
}

// validSourcesLocked lists valid backends, the authoritative one first.
func (o *Owner) validSourcesLocked() []repr.Backend {
	out := []repr.Backend{o.last}
	for _, b := range repr.Backends {
		if e, ok := o.reps[b]; ok && e.valid && b != o.last {
			out = append(out, b)
		}
	}
	return out
}

func (o *Owner) convert(ctx context.Context, c repr.Converter, src, dst repr.Representation) (repr.Representation, error) {
	start := time.Now()
	var out repr.Representation

	run := func(ctx context.Context) error {
		var err error
		out, err = c.Convert(ctx, src, dst)
		return err
	}

	var err error
	if c.RequiresContext() && o.opts.Queue != nil {
		err = o.opts.Queue.Do(ctx, run)
	} else {
		err = run(ctx)
	}
	if err == nil {
		switch {
		case out == nil:
			err = errors.New(errors.ErrCodeInternal, "converter %s returned nothing", c)
		case out.Kind() != c.Kind || out.Backend() != c.To:
			err = errors.New(errors.ErrCodeInternal, "converter %s returned %s", c, repr.KeyOf(out))
		}
	}

	o.opts.Hooks.OnConvert(ctx, c.Kind.String(), c.From.String(), c.To.String(), time.Since(start), err)
	if err != nil {
		if out != nil && out != dst && out != src {
			o.releaseLocked(ctx, out)
		}
		code := errors.ErrCodeInternal
		if ctx.Err() != nil && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)) {
			code = errors.ErrCodeCanceled
		}
		return nil, errors.Wrap(code, err, "convert %s", c)
	}
	return out, nil
}

func (o *Owner) setAuthoritativeLocked(b repr.Backend) {
	o.last = b
	for other, e := range o.reps {
		if other != b {
			e.valid = false
		}
	}
}

func (o *Owner) clearLocked(ctx context.Context) {
	for b, e := range o.reps {
		o.releaseLocked(ctx, e.rep)
		delete(o.reps, b)
	}
	o.last = 0
}

// releaseLocked always releases rep, even when ctx is already canceled:
// the entry is dropped by the caller either way.
func (o *Owner) releaseLocked(ctx context.Context, rep repr.Representation) {
	ctx = context.WithoutCancel(ctx)
	release := func(context.Context) error { return rep.Release() }

	var err error
	if rep.Backend().RequiresContext() && o.opts.Queue != nil {
		err = o.opts.Queue.Do(ctx, release)
	} else {
		err = release(ctx)
	}
	if err != nil {
		o.opts.Logger.Warn("release representation", "owner", o, "key", repr.KeyOf(rep), "err", err)
	}
}

// =============================================================================
// Typed Access
// =============================================================================

// As returns the representation for backend asserted to T.
func As[T repr.Representation](ctx context.Context, o *Owner, b repr.Backend) (T, error) {
	rep, err := o.Get(ctx, b)
	return assertRep[T](rep, err)
}

// EditableAs returns the editable representation for backend asserted to T.
func EditableAs[T repr.Representation](ctx context.Context, o *Owner, b repr.Backend) (T, error) {
	rep, err := o.Editable(ctx, b)
	return assertRep[T](rep, err)
}

func assertRep[T repr.Representation](rep repr.Representation, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	t, ok := rep.(T)
	if !ok {
		return zero, errors.New(errors.ErrCodeInternal, "%s representation is %T, not %T", repr.KeyOf(rep), rep, zero)
	}
	return t, nil
}
