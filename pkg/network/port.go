package network

import (
	"sync"
	"sync/atomic"

	"github.com/matzehuels/dataflow/pkg/data"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// Port is a typed endpoint of a processor. The only implementations are
// [Inport] and [Outport].
type Port interface {
	// Identifier is unique among the ports of one processor.
	Identifier() string

	// Kind is the data type carried by the port.
	Kind() repr.OwnerKind

	// Node returns the owning node, or nil before the processor is added.
	Node() *Node

	bind(n *Node)
}

// binding is the back reference from a port to its node. It is cleared when
// the processor is removed from its network.
type binding struct {
	node atomic.Pointer[Node]
}

// Node returns the owning node, or nil when the processor is not in a
// network.
func (b *binding) Node() *Node { return b.node.Load() }

func (b *binding) bind(n *Node) { b.node.Store(n) }

// network returns the network of the owning node, or nil.
func (b *binding) network() *Network {
	if n := b.Node(); n != nil {
		return n.network()
	}
	return nil
}

// =============================================================================
// Inport
// =============================================================================

// Inport reads the data published by upstream outports.
type Inport struct {
	id       string
	kind     repr.OwnerKind
	max      int // 0 means unbounded
	optional bool
	binding

	sources []*Outport // guarded by the network lock
}

// NewInport creates a single-connection inport.
func NewInport(id string, kind repr.OwnerKind) *Inport {
	return &Inport{id: id, kind: kind, max: 1}
}

// NewMultiInport creates an inport accepting up to max connections; max <= 0
// means unbounded.
func NewMultiInport(id string, kind repr.OwnerKind, max int) *Inport {
	if max < 0 {
		max = 0
	}
	return &Inport{id: id, kind: kind, max: max}
}

// Optional marks the port as optional: an unconnected optional port does not
// keep its processor from being ready. It returns p for chaining.
func (p *Inport) Optional() *Inport {
	p.optional = true
	return p
}

func (p *Inport) Identifier() string   { return p.id }
func (p *Inport) Kind() repr.OwnerKind { return p.kind }
func (p *Inport) MaxConnections() int  { return p.max }
func (p *Inport) IsOptional() bool     { return p.optional }
func (p *Inport) String() string       { return portName(p) }

// Sources returns the connected outports in connection order.
func (p *Inport) Sources() []*Outport {
	unlock := p.rlock()
	defer unlock()
	out := make([]*Outport, len(p.sources))
	copy(out, p.sources)
	return out
}

// IsConnected reports whether at least one outport is connected.
func (p *Inport) IsConnected() bool {
	unlock := p.rlock()
	defer unlock()
	return len(p.sources) > 0
}

// IsReady reports whether the port can be read: it is connected and every
// connected outport publishes non-empty data. An unconnected optional port is
// ready.
func (p *Inport) IsReady() bool {
	srcs := p.Sources()
	if len(srcs) == 0 {
		return p.optional
	}
	for _, s := range srcs {
		if !s.HasData() {
			return false
		}
	}
	return true
}

// Data returns the data of the first connected outport, or nil.
func (p *Inport) Data() *data.Owner {
	srcs := p.Sources()
	if len(srcs) == 0 {
		return nil
	}
	return srcs[0].Data()
}

// AllData returns the non-nil data of every connected outport in connection
// order.
func (p *Inport) AllData() []*data.Owner {
	var out []*data.Owner
	for _, s := range p.Sources() {
		if d := s.Data(); d != nil {
			out = append(out, d)
		}
	}
	return out
}

func (p *Inport) rlock() func() {
	net := p.network()
	if net == nil {
		return func() {}
	}
	net.mu.RLock()
	return net.mu.RUnlock
}

// =============================================================================
// Outport
// =============================================================================

// Outport publishes one data owner to every connected inport.
type Outport struct {
	id   string
	kind repr.OwnerKind
	binding

	mu   sync.Mutex
	data *data.Owner

	targets []*Inport // guarded by the network lock
}

// NewOutport creates an outport.
func NewOutport(id string, kind repr.OwnerKind) *Outport {
	return &Outport{id: id, kind: kind}
}

func (p *Outport) Identifier() string   { return p.id }
func (p *Outport) Kind() repr.OwnerKind { return p.kind }
func (p *Outport) String() string       { return portName(p) }

// Data returns the published owner, or nil.
func (p *Outport) Data() *data.Owner {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

// HasData reports whether the port publishes an owner holding at least one
// representation.
func (p *Outport) HasData() bool {
	d := p.Data()
	return d != nil && !d.Empty()
}

// SetData publishes o, replacing the previous owner, and invalidates every
// directly connected downstream processor. Passing nil unpublishes.
//
// The port becomes o's change handler, so later writes through
// [data.Owner.Editable] or [data.Owner.Add] invalidate downstream as well.
func (p *Outport) SetData(o *data.Owner) error {
	if o != nil && o.Kind() != p.kind {
		return errors.New(errors.ErrCodePortTypeMismatch,
			"outport %s carries %s, cannot publish %s data", p, p.kind, o.Kind())
	}

	p.mu.Lock()
	old := p.data
	p.data = o
	p.mu.Unlock()

	if old != nil && old != o {
		old.SetChangeHandler(nil)
	}
	if o != nil {
		o.SetChangeHandler(p.ownerChanged)
	}
	p.dataChanged()
	return nil
}

func (p *Outport) ownerChanged(*data.Owner) { p.dataChanged() }

// watch installs or removes p as the change handler of its published owner.
func (p *Outport) watch(on bool) {
	d := p.Data()
	if d == nil {
		return
	}
	if on {
		d.SetChangeHandler(p.ownerChanged)
	} else {
		d.SetChangeHandler(nil)
	}
}

// Targets returns the connected inports in connection order.
func (p *Outport) Targets() []*Inport {
	net := p.network()
	if net == nil {
		return nil
	}
	net.mu.RLock()
	defer net.mu.RUnlock()
	out := make([]*Inport, len(p.targets))
	copy(out, p.targets)
	return out
}

func (p *Outport) dataChanged() {
	if net := p.network(); net != nil {
		net.InvalidateDownstream(p)
	}
}

func portName(p Port) string {
	if n := p.Node(); n != nil {
		return n.ID() + "." + p.Identifier()
	}
	return p.Identifier()
}
