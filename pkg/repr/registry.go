package repr

import (
	"context"
	"slices"
	"sync"

	"github.com/matzehuels/dataflow/pkg/errors"
)

// ConvertFunc converts src into the target backend.
//
// dst is the existing (stale) representation of the target backend, or nil
// when none is cached. Implementations may update dst in place and return it,
// or return a new representation. The returned representation must have the
// converter's target backend.
type ConvertFunc func(ctx context.Context, src, dst Representation) (Representation, error)

// Converter is a directed edge in a per-kind conversion graph.
type Converter struct {
	Kind    OwnerKind
	From    Backend
	To      Backend
	Cost    int // Defaults to 1 when <= 0
	Convert ConvertFunc

	seq int // registration order, assigned by Register
}

// RequiresContext reports whether the conversion touches a context-bound
// backend and must run on the context thread.
func (c Converter) RequiresContext() bool {
	return c.From.RequiresContext() || c.To.RequiresContext()
}

// String returns "kind: from -> to".
func (c Converter) String() string {
	return c.Kind.String() + ": " + c.From.String() + " -> " + c.To.String()
}

// Registry holds registered converters, one graph per [OwnerKind].
//
// Registry is safe for concurrent use. It is written at startup when backends
// register their converters and read-only afterwards.
type Registry struct {
	mu     sync.RWMutex
	graphs map[OwnerKind]map[Backend][]Converter
	seq    int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{graphs: make(map[OwnerKind]map[Backend][]Converter)}
}

// Register adds a converter edge.
//
// It returns an ErrCodeDuplicateConverter error if an edge with the same kind,
// source and target already exists, and ErrCodeInvalidInput for a nil
// function, unknown kind/backend, or a self edge.
func (r *Registry) Register(c Converter) error {
	if !c.Kind.Valid() || !c.From.Valid() || !c.To.Valid() {
		return errors.New(errors.ErrCodeInvalidInput, "invalid converter %s", c)
	}
	if c.From == c.To {
		return errors.New(errors.ErrCodeInvalidInput, "converter %s is a self edge", c)
	}
	if c.Convert == nil {
		return errors.New(errors.ErrCodeInvalidInput, "converter %s has no function", c)
	}
	if c.Cost <= 0 {
		c.Cost = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	g := r.graphs[c.Kind]
	if g == nil {
		g = make(map[Backend][]Converter)
		r.graphs[c.Kind] = g
	}
	for _, e := range g[c.From] {
		if e.To == c.To {
			return errors.New(errors.ErrCodeDuplicateConverter, "converter %s already registered", c)
		}
	}
	r.seq++
	c.seq = r.seq
	g[c.From] = append(g[c.From], c)
	return nil
}

// MustRegister is like Register but panics on error. Registration conflicts
// are startup-time programming errors.
func (r *Registry) MustRegister(cs ...Converter) {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Converters returns every converter of kind in registration order.
func (r *Registry) Converters(kind OwnerKind) []Converter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Converter
	for _, edges := range r.graphs[kind] {
		out = append(out, edges...)
	}
	slices.SortFunc(out, func(a, b Converter) int { return a.seq - b.seq })
	return out
}

// Kinds returns the owner kinds that have at least one converter.
func (r *Registry) Kinds() []OwnerKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []OwnerKind
	for _, k := range OwnerKinds {
		if len(r.graphs[k]) > 0 {
			out = append(out, k)
		}
	}
	return out
}

// Resolve returns the cheapest conversion path from one backend to another.
//
// Paths are ordered by total cost, then by number of hops, then by the
// registration order of their edges compared element-wise. Resolving a
// backend to itself returns an empty path. If to is unreachable, Resolve
// returns an ErrCodeNoConverterPath error.
func (r *Registry) Resolve(kind OwnerKind, from, to Backend) ([]Converter, error) {
	return r.ResolveAny(kind, []Backend{from}, to)
}

// ResolveAny returns the cheapest path to the target starting from any of the
// given sources. Earlier sources win ties, so callers list their preferred
// source first.
func (r *Registry) ResolveAny(kind OwnerKind, froms []Backend, to Backend) ([]Converter, error) {
	if len(froms) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyData, "no source representation for %s", Key{kind, to})
	}
	if slices.Contains(froms, to) {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	best := shortestPaths(r.graphs[kind], froms)
	p, ok := best[to]
	if !ok {
		return nil, errors.New(errors.ErrCodeNoConverterPath,
			"no conversion path to %s from %v", Key{kind, to}, froms)
	}
	return slices.Clone(p.edges), nil
}

// =============================================================================
// Shortest path search
// =============================================================================

// path is a candidate conversion chain with its ordering attributes.
type path struct {
	cost   int
	origin int // index of the source backend in the caller's list
	edges  []Converter
}

// less orders paths by cost, hops, source preference and registration order.
func (p path) less(q path) bool {
	if p.cost != q.cost {
		return p.cost < q.cost
	}
	if len(p.edges) != len(q.edges) {
		return len(p.edges) < len(q.edges)
	}
	if p.origin != q.origin {
		return p.origin < q.origin
	}
	for i := range p.edges {
		if p.edges[i].seq != q.edges[i].seq {
			return p.edges[i].seq < q.edges[i].seq
		}
	}
	return false
}

func (p path) extend(c Converter) path {
	edges := make([]Converter, len(p.edges)+1)
	copy(edges, p.edges)
	edges[len(p.edges)] = c
	return path{cost: p.cost + c.Cost, origin: p.origin, edges: edges}
}

// shortestPaths runs Dijkstra from a set of sources. Graphs hold at most a
// handful of backends, so the frontier is scanned linearly.
func shortestPaths(g map[Backend][]Converter, froms []Backend) map[Backend]path {
	best := make(map[Backend]path)
	for i, b := range froms {
		if _, seen := best[b]; !seen {
			best[b] = path{origin: i}
		}
	}

	done := make(map[Backend]bool)
	for {
		var (
			cur   Backend
			found bool
		)
		for b, p := range best {
			if done[b] {
				continue
			}
			if !found || p.less(best[cur]) || (!best[cur].less(p) && b < cur) {
				cur, found = b, true
			}
		}
		if !found {
			return best
		}
		done[cur] = true

		for _, e := range g[cur] {
			if done[e.To] {
				continue
			}
			cand := best[cur].extend(e)
			if old, ok := best[e.To]; !ok || cand.less(old) {
				best[e.To] = cand
			}
		}
	}
}
