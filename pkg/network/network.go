package network

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dataflow/pkg/errors"
)

// Connection is a directed edge from an outport to an inport.
type Connection struct {
	Out *Outport
	In  *Inport
}

// String returns "Source.outport -> Blur.inport".
func (c Connection) String() string {
	return c.Out.String() + " -> " + c.In.String()
}

// Network holds processors and the connections between them.
//
// The zero value is not usable; create networks with [New].
type Network struct {
	logger *log.Logger

	mu      sync.RWMutex
	nodes   map[string]*Node
	order   []*Node // insertion order
	conns   []Connection
	seq     int
	version uint64

	topo        []*Node
	topoVersion uint64
	topoValid   bool

	reqMu     sync.Mutex
	lockDepth int
	pending   bool
	onRequest func()
}

// New creates an empty network. A nil logger uses log.Default().
func New(logger *log.Logger) *Network {
	if logger == nil {
		logger = log.Default()
	}
	return &Network{
		logger: logger,
		nodes:  make(map[string]*Node),
	}
}

// =============================================================================
// Processors
// =============================================================================

// AddProcessor places p in the network under id and binds its ports.
//
// It returns ErrCodeInvalidInput for a malformed identifier, duplicate or
// already bound ports, and ErrCodeDuplicateProcessor if id is taken. The new
// node starts Invalid.
func (n *Network) AddProcessor(id string, p Processor) (*Node, error) {
	if err := errors.ValidateIdentifier(id); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "processor %q is nil", id)
	}

	node := &Node{id: id, proc: p}
	seen := make(map[string]bool)
	for _, port := range p.Ports() {
		if port == nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "processor %q declares a nil port", id)
		}
		if err := errors.ValidateIdentifier(port.Identifier()); err != nil {
			return nil, fmt.Errorf("processor %q: %w", id, err)
		}
		if seen[port.Identifier()] {
			return nil, errors.New(errors.ErrCodeInvalidInput, "processor %q declares port %q twice", id, port.Identifier())
		}
		if port.Node() != nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "port %s already belongs to a processor", port)
		}
		seen[port.Identifier()] = true

		switch pt := port.(type) {
		case *Inport:
			node.inports = append(node.inports, pt)
		case *Outport:
			node.outports = append(node.outports, pt)
		}
	}

	n.mu.Lock()
	if _, ok := n.nodes[id]; ok {
		n.mu.Unlock()
		return nil, errors.New(errors.ErrCodeDuplicateProcessor, "processor %q already exists", id)
	}
	node.net.Store(n)
	for _, p := range node.inports {
		p.bind(node)
	}
	for _, p := range node.outports {
		p.bind(node)
		p.watch(true)
	}
	n.seq++
	node.seq = n.seq
	n.nodes[id] = node
	n.order = append(n.order, node)
	n.version++
	n.mu.Unlock()

	n.logger.Debug("added processor", "processor", id, "inports", len(node.inports), "outports", len(node.outports))
	n.requestEvaluation()
	return node, nil
}

// RemoveProcessor disconnects every connection attached to the processor and
// then removes it. Processors that lost an input are invalidated. The
// processor's ports are unbound, so it may be added again.
func (n *Network) RemoveProcessor(id string) error {
	n.mu.Lock()
	node, ok := n.nodes[id]
	if !ok {
		n.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "processor %q not found", id)
	}

	var affected []*Node
	for _, c := range slices.Clone(n.conns) {
		if c.Out.Node() != node && c.In.Node() != node {
			continue
		}
		n.removeConnLocked(c)
		if c.In.Node() != node {
			affected = append(affected, c.In.Node())
		}
	}
	delete(n.nodes, id)
	n.order = slices.DeleteFunc(n.order, func(x *Node) bool { return x == node })
	node.net.Store(nil)
	for _, p := range node.inports {
		p.bind(nil)
	}
	for _, p := range node.outports {
		p.bind(nil)
		p.watch(false)
	}
	n.version++
	n.mu.Unlock()

	n.logger.Debug("removed processor", "processor", id, "affected", len(affected))
	for _, a := range affected {
		a.Invalidate()
	}
	return nil
}

// Clear removes every processor, connections first.
func (n *Network) Clear() {
	n.Lock()
	defer n.Unlock()
	for _, node := range n.Processors() {
		_ = n.RemoveProcessor(node.id)
	}
}

// UniqueID returns base if no processor uses it, otherwise the first free
// "base N" with N starting at 2.
func (n *Network) UniqueID(base string) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if _, ok := n.nodes[base]; !ok {
		return base
	}
	for i := 2; ; i++ {
		id := base + " " + strconv.Itoa(i)
		if _, ok := n.nodes[id]; !ok {
			return id
		}
	}
}

// Processor returns the node with the given id.
func (n *Network) Processor(id string) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	node, ok := n.nodes[id]
	return node, ok
}

// Processors returns every node in insertion order.
func (n *Network) Processors() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.order)
}

// ProcessorCount returns the number of processors.
func (n *Network) ProcessorCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.order)
}

// =============================================================================
// Connections
// =============================================================================

// Connect adds a connection from out to in.
//
// Connect fails, leaving the network unchanged, with:
//   - ErrCodeNotFound if either port is not part of this network
//   - ErrCodePortTypeMismatch if the port kinds differ
//   - ErrCodeDuplicateConnection if the ports are already connected
//   - ErrCodeFanInExceeded if in already has its maximum number of sources
//   - ErrCodeCyclicNetwork if out's processor is reachable from in's
//     processor, so the new edge would close a cycle
//
// On success the structural version is bumped, which invalidates the cached
// topological order, and in's processor becomes Invalid.
func (n *Network) Connect(out *Outport, in *Inport) error {
	n.mu.Lock()
	if err := n.checkConnectLocked(out, in); err != nil {
		n.mu.Unlock()
		return err
	}
	n.conns = append(n.conns, Connection{Out: out, In: in})
	out.targets = append(out.targets, in)
	in.sources = append(in.sources, out)
	n.version++
	n.mu.Unlock()

	n.logger.Debug("connected", "from", out, "to", in)
	in.Node().Invalidate()
	return nil
}

func (n *Network) checkConnectLocked(out *Outport, in *Inport) error {
	if out == nil || in == nil {
		return errors.New(errors.ErrCodeInvalidInput, "cannot connect nil port")
	}
	if !n.ownsLocked(out.Node()) {
		return errors.New(errors.ErrCodeNotFound, "outport %s is not part of this network", out)
	}
	if !n.ownsLocked(in.Node()) {
		return errors.New(errors.ErrCodeNotFound, "inport %s is not part of this network", in)
	}
	if out.kind != in.kind {
		return errors.New(errors.ErrCodePortTypeMismatch,
			"cannot connect %s (%s) to %s (%s)", out, out.kind, in, in.kind)
	}
	if slices.Contains(in.sources, out) {
		return errors.New(errors.ErrCodeDuplicateConnection, "%s is already connected to %s", out, in)
	}
	if in.max > 0 && len(in.sources) >= in.max {
		return errors.New(errors.ErrCodeFanInExceeded,
			"inport %s accepts at most %d connection(s)", in, in.max)
	}
	if n.reachableLocked(in.Node(), out.Node()) {
		return errors.New(errors.ErrCodeCyclicNetwork,
			"connecting %s to %s would create a cycle", out, in)
	}
	return nil
}

// Disconnect removes the connection from out to in.
func (n *Network) Disconnect(out *Outport, in *Inport) error {
	n.mu.Lock()
	c := Connection{Out: out, In: in}
	if !slices.Contains(n.conns, c) {
		n.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "no connection %s", c)
	}
	n.removeConnLocked(c)
	n.version++
	n.mu.Unlock()

	n.logger.Debug("disconnected", "from", out, "to", in)
	in.Node().Invalidate()
	return nil
}

func (n *Network) removeConnLocked(c Connection) {
	n.conns = slices.DeleteFunc(n.conns, func(x Connection) bool { return x == c })
	c.Out.targets = slices.DeleteFunc(c.Out.targets, func(p *Inport) bool { return p == c.In })
	c.In.sources = slices.DeleteFunc(c.In.sources, func(p *Outport) bool { return p == c.Out })
}

// IsConnected reports whether out is connected to in.
func (n *Network) IsConnected(out *Outport, in *Inport) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Contains(n.conns, Connection{Out: out, In: in})
}

// Connections returns every connection in insertion order.
func (n *Network) Connections() []Connection {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.conns)
}

// ConnectionCount returns the number of connections.
func (n *Network) ConnectionCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.conns)
}

// Version returns the structural version. It changes whenever a processor
// or connection is added or removed.
func (n *Network) Version() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.version
}

func (n *Network) ownsLocked(node *Node) bool {
	return node != nil && n.nodes[node.id] == node
}

// =============================================================================
// Invalidation
// =============================================================================

// InvalidateDownstream marks every processor directly connected to out as
// Invalid. Processors further downstream and unrelated branches are not
// touched; they are invalidated in turn when the invalidated processors
// publish new data.
func (n *Network) InvalidateDownstream(out *Outport) {
	n.mu.RLock()
	targets := make([]*Node, 0, len(out.targets))
	for _, in := range out.targets {
		if !slices.Contains(targets, in.Node()) {
			targets = append(targets, in.Node())
		}
	}
	n.mu.RUnlock()

	for _, t := range targets {
		t.Invalidate()
	}
}

// Invalidate marks one processor Invalid, for example after one of its
// parameters changed.
func (n *Network) Invalidate(id string) error {
	node, ok := n.Processor(id)
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "processor %q not found", id)
	}
	node.Invalidate()
	return nil
}

// =============================================================================
// Evaluation Requests (NetworkLock)
// =============================================================================

// OnEvaluationRequest installs the single subscriber for evaluation
// requests, replacing any previous one. Pass nil to unsubscribe.
func (n *Network) OnEvaluationRequest(fn func()) {
	n.reqMu.Lock()
	n.onRequest = fn
	n.reqMu.Unlock()
}

// Lock starts a batch of edits. Evaluation requests raised until the
// matching final Unlock are coalesced into one. Locks nest.
func (n *Network) Lock() {
	n.reqMu.Lock()
	n.lockDepth++
	n.reqMu.Unlock()
}

// Unlock ends a batch. The outermost Unlock fires a single evaluation request
// if any was raised during the batch.
func (n *Network) Unlock() {
	n.reqMu.Lock()
	if n.lockDepth == 0 {
		n.reqMu.Unlock()
		panic("network: Unlock without Lock")
	}
	n.lockDepth--
	var fire func()
	if n.lockDepth == 0 && n.pending {
		n.pending = false
		fire = n.onRequest
	}
	n.reqMu.Unlock()

	if fire != nil {
		fire()
	}
}

// Batch runs fn between Lock and Unlock.
func (n *Network) Batch(fn func() error) error {
	n.Lock()
	defer n.Unlock()
	return fn()
}

// Locked reports whether a batch is in progress.
func (n *Network) Locked() bool {
	n.reqMu.Lock()
	defer n.reqMu.Unlock()
	return n.lockDepth > 0
}

func (n *Network) requestEvaluation() {
	n.reqMu.Lock()
	if n.lockDepth > 0 {
		n.pending = true
		n.reqMu.Unlock()
		return
	}
	fire := n.onRequest
	n.reqMu.Unlock()

	if fire != nil {
		fire()
	}
}
