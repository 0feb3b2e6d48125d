package network

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// State is the evaluation state of a processor.
type State uint8

const (
	// Invalid means the processor needs to be recomputed. It is the initial
	// state of every node.
	Invalid State = iota
	// Valid means the outputs reflect the current inputs.
	Valid
	// Error means the last process call failed. It is distinct from Invalid
	// so callers can tell "broken" from "not yet computed".
	Error
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Valid:
		return "valid"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Processor is a computation with typed ports.
//
// Ports is called once when the processor is added to a network. Process
// reads its inports and publishes results on its outports; a returned error
// (or a panic) puts the node into the [Error] state.
type Processor interface {
	Ports() []Port
	Process(ctx context.Context) error
}

// ProgressFunc reports the fraction of a background task that is done, in
// [0, 1].
type ProgressFunc func(fraction float64)

// Commit publishes the results of a finished background task. It runs on
// the evaluator's completion path with the node lock semantics described on
// [AsyncProcessor].
type Commit func(ctx context.Context) error

// Task is long-running work executed on a worker goroutine. It must watch
// ctx, which is canceled when the task is stopped, and may report progress.
type Task func(ctx context.Context, progress ProgressFunc) (Commit, error)

// AsyncProcessor is a processor whose work is offloaded to a worker pool.
//
// Dispatch runs synchronously during evaluation, reads the inputs it needs and
// returns a [Task]. While the task is in flight the evaluator skips the node.
// When the task finishes its Commit runs and the node becomes Valid, unless the
// node was invalidated in the meantime, in which case the results are dropped
// and the node is dispatched again on a later pass.
type AsyncProcessor interface {
	Processor
	Dispatch(ctx context.Context) (Task, error)
}

// RunInline runs the work of an asynchronous processor on the calling
// goroutine: Dispatch, then the task without progress reporting, then the
// commit. Async processors typically implement Process with it.
func RunInline(ctx context.Context, p AsyncProcessor) error {
	task, err := p.Dispatch(ctx)
	if err != nil {
		return err
	}
	commit, err := task(ctx, func(float64) {})
	if err != nil || commit == nil {
		return err
	}
	return commit(ctx)
}

// Node is a processor placed in a network.
type Node struct {
	id       string
	proc     Processor
	net      atomic.Pointer[Network] // nil once removed
	seq      int
	inports  []*Inport
	outports []*Outport

	mu       sync.Mutex
	state    State
	err      error
	gen      uint64 // bumped by every invalidation
	progress float64
}

// ID returns the processor identifier.
func (n *Node) ID() string { return n.id }

// Processor returns the wrapped processor.
func (n *Node) Processor() Processor { return n.proc }

// Inports returns the node's inports in declaration order.
func (n *Node) Inports() []*Inport { return slices.Clone(n.inports) }

// Outports returns the node's outports in declaration order.
func (n *Node) Outports() []*Outport { return slices.Clone(n.outports) }

// Inport returns the inport with the given identifier, or nil.
func (n *Node) Inport(id string) *Inport {
	for _, p := range n.inports {
		if p.id == id {
			return p
		}
	}
	return nil
}

// Outport returns the outport with the given identifier, or nil.
func (n *Node) Outport(id string) *Outport {
	for _, p := range n.outports {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (n *Node) network() *Network { return n.net.Load() }

// IsSink reports whether the processor has no outports.
func (n *Node) IsSink() bool { return len(n.outports) == 0 }

// State returns the current state.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Err returns the error that put the node into the Error state, or nil.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Snapshot returns the state and invalidation generation atomically.
func (n *Node) Snapshot() (State, uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state, n.gen
}

// Generation returns the invalidation counter. Every call to
// [Node.Invalidate] increments it.
func (n *Node) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen
}

// InportsReady reports whether every inport is ready. See [Inport.IsReady].
func (n *Node) InportsReady() bool {
	for _, p := range n.inports {
		if !p.IsReady() {
			return false
		}
	}
	return true
}

// Invalidate marks the node Invalid and raises an evaluation request.
func (n *Node) Invalidate() {
	n.mu.Lock()
	n.state = Invalid
	n.err = nil
	n.gen++
	n.mu.Unlock()

	if net := n.network(); net != nil {
		net.requestEvaluation()
	}
}

// Settle sets a terminal state (Valid or Error) if the node has not been
// invalidated since generation gen was observed. It reports whether the
// state was applied.
func (n *Node) Settle(gen uint64, s State, err error) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gen != gen {
		return false
	}
	n.state = s
	n.err = err
	if s == Valid {
		n.progress = 1
	}
	return true
}

// SetProgress records the progress of a background task.
func (n *Node) SetProgress(f float64) {
	n.mu.Lock()
	n.progress = min(max(f, 0), 1)
	n.mu.Unlock()
}

// Progress returns the last reported background progress.
func (n *Node) Progress() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.progress
}
