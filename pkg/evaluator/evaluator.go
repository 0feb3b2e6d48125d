// Package evaluator brings a processor network up to date.
//
// An [Evaluator] walks the network in topological order and recomputes every
// processor that is Invalid and ready. A processor is ready when its inports
// are ready and every upstream processor is Valid, so a failing processor
// holds back only its own downstream branch.
//
// Processors implementing [network.AsyncProcessor] are dispatched to a
// bounded worker pool instead of running inline. While their task is in
// flight the evaluator skips them.
//
// # Usage
//
//	ev, err := evaluator.New(net, evaluator.Options{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer ev.Close()
//	res, err := ev.Evaluate(ctx)
//
// Call [Evaluator.Watch] to re-evaluate automatically whenever the network
// raises an evaluation request.
package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/observability"
	"github.com/matzehuels/dataflow/pkg/workerpool"
)

// Options configures an Evaluator.
type Options struct {
	// Logger receives processor failures and pass summaries.
	// Defaults to log.Default().
	Logger *log.Logger

	// Pool runs background tasks. If nil, the evaluator creates one with
	// Workers goroutines and closes it on Close.
	Pool *workerpool.Pool

	// Workers sizes the pool created when Pool is nil. Zero uses one worker
	// per CPU.
	Workers int

	// Hooks observes passes and processor runs. Defaults to no-ops.
	Hooks observability.EvaluationHooks
}

// ValidateAndSetDefaults checks the options and fills in defaults.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "workers must be >= 0, got %d", o.Workers)
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Hooks == nil {
		o.Hooks = observability.NoopEvaluationHooks{}
	}
	return nil
}

// Result summarizes one evaluation pass.
type Result struct {
	Processed  int           // processors that ran inline and became Valid
	Failed     int           // processors that ended in the Error state
	Skipped    int           // Invalid processors that were not ready or in flight
	Dispatched int           // background tasks submitted
	Duration   time.Duration // wall time of the pass
	Errors     []error       // one *errors.ProcessorError per failure
}

// Evaluator runs evaluation passes over one network.
type Evaluator struct {
	net      *network.Network
	logger   *log.Logger
	hooks    observability.EvaluationHooks
	pool     *workerpool.Pool
	ownsPool bool

	// pass serializes evaluation passes and background commits.
	pass sync.Mutex

	mu       sync.Mutex
	idle     *sync.Cond
	inflight map[*network.Node]*flight
	watching bool
	running  bool // a watch pass is scheduled or running
	pending  bool // a request arrived during a watch pass
	closed   bool
	lastErr  error

	ctx    context.Context // parent of every background task
	cancel context.CancelFunc
}

type flight struct {
	gen    uint64
	handle *workerpool.Handle
	start  time.Time
}

// New creates an evaluator for net.
func New(net *network.Network, opts Options) (*Evaluator, error) {
	if net == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "network is nil")
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	pool, owns := opts.Pool, false
	if pool == nil {
		p, err := workerpool.New(opts.Workers, opts.Logger)
		if err != nil {
			return nil, err
		}
		pool, owns = p, true
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Evaluator{
		net:      net,
		logger:   opts.Logger,
		hooks:    opts.Hooks,
		pool:     pool,
		ownsPool: owns,
		inflight: make(map[*network.Node]*flight),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.idle = sync.NewCond(&e.mu)
	return e, nil
}

// Network returns the evaluated network.
func (e *Evaluator) Network() *network.Network { return e.net }

// InFlight returns the identifiers of processors whose background task is
// running.
func (e *Evaluator) InFlight() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.inflight))
	for n := range e.inflight {
		ids = append(ids, n.ID())
	}
	return ids
}

// Evaluate runs one pass: every Invalid, ready processor is processed once in
// topological order. Processor failures are recorded in the result and
// logged; they do not stop the pass.
//
// Cancellation is checked between processors. A canceled pass returns the
// partial result together with an ErrCodeCanceled error wrapping ctx.Err().
func (e *Evaluator) Evaluate(ctx context.Context) (*Result, error) {
	e.pass.Lock()
	res, dispatches, err := e.evaluateLocked(ctx)
	e.pass.Unlock()

	// Submitting outside the pass lock keeps a full queue from blocking
	// workers that wait to commit.
	for _, d := range dispatches {
		e.submit(d)
	}
	return res, err
}

type dispatch struct {
	node *network.Node
	gen  uint64
	task network.Task
}

func (e *Evaluator) evaluateLocked(ctx context.Context) (*Result, []dispatch, error) {
	start := time.Now()
	res := &Result{}

	order, err := e.net.TopologicalOrder()
	if err != nil {
		return res, nil, err
	}
	e.hooks.OnEvaluateStart(ctx, len(order))

	var dispatches []dispatch
	for _, node := range order {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			cerr := errors.Wrap(errors.ErrCodeCanceled, err, "evaluation canceled")
			e.hooks.OnEvaluateComplete(ctx, res.Processed, res.Failed, res.Duration, cerr)
			return res, dispatches, cerr
		}

		state, gen := node.Snapshot()
		if state != network.Invalid {
			continue
		}
		if e.isInFlight(node, gen) {
			res.Skipped++
			continue
		}
		if !e.ready(node) {
			res.Skipped++
			continue
		}

		if ap, ok := node.Processor().(network.AsyncProcessor); ok {
			task, err := e.guardDispatch(ctx, node, ap)
			if err != nil {
				e.fail(node, gen, err, res)
				continue
			}
			e.markInFlight(node, gen)
			dispatches = append(dispatches, dispatch{node: node, gen: gen, task: task})
			res.Dispatched++
			e.hooks.OnDispatch(ctx, node.ID())
			continue
		}

		t := time.Now()
		err := e.guardProcess(ctx, node)
		e.hooks.OnProcess(ctx, node.ID(), time.Since(t), err)
		if err != nil {
			e.fail(node, gen, err, res)
			continue
		}
		node.Settle(gen, network.Valid, nil)
		res.Processed++
	}

	res.Duration = time.Since(start)
	e.hooks.OnEvaluateComplete(ctx, res.Processed, res.Failed, res.Duration, nil)
	if res.Processed+res.Failed+res.Dispatched > 0 {
		e.logger.Debug("evaluated network",
			"processed", res.Processed,
			"failed", res.Failed,
			"dispatched", res.Dispatched,
			"skipped", res.Skipped,
			"duration", res.Duration)
	}
	return res, dispatches, nil
}

// ready reports whether node can run: its inports are ready and every
// upstream processor is Valid.
func (e *Evaluator) ready(node *network.Node) bool {
	if !node.InportsReady() {
		return false
	}
	for _, p := range e.net.Predecessors(node) {
		if p.State() != network.Valid {
			return false
		}
	}
	return true
}

func (e *Evaluator) fail(node *network.Node, gen uint64, err error, res *Result) {
	node.Settle(gen, network.Error, err)
	res.Failed++
	res.Errors = append(res.Errors, err)
	e.logger.Error("processor failed", "processor", node.ID(), "err", err)
}

func (e *Evaluator) guardProcess(ctx context.Context, node *network.Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errors.ProcessorError{Processor: node.ID(), Panic: true, Cause: fmt.Errorf("%v", r)}
		}
	}()
	if err := node.Processor().Process(ctx); err != nil {
		return &errors.ProcessorError{Processor: node.ID(), Cause: err}
	}
	return nil
}

func (e *Evaluator) guardDispatch(ctx context.Context, node *network.Node, ap network.AsyncProcessor) (task network.Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			task, err = nil, &errors.ProcessorError{Processor: node.ID(), Panic: true, Cause: fmt.Errorf("%v", r)}
		}
	}()
	task, err = ap.Dispatch(ctx)
	if err != nil {
		return nil, &errors.ProcessorError{Processor: node.ID(), Cause: err}
	}
	if task == nil {
		return nil, &errors.ProcessorError{Processor: node.ID(), Cause: errors.New(errors.ErrCodeInternal, "dispatch returned no task")}
	}
	return task, nil
}

// Wait blocks until no background task is in flight and no watch pass is
// scheduled.
func (e *Evaluator) Wait() {
	e.mu.Lock()
	for len(e.inflight) > 0 || e.running {
		e.idle.Wait()
	}
	e.mu.Unlock()
}

// Err returns the error of the most recent watch pass, or nil.
func (e *Evaluator) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Close stops watching, cancels every in-flight task and waits for them.
// A pool created by the evaluator is closed.
func (e *Evaluator) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	watching := e.watching
	e.watching = false
	e.mu.Unlock()

	if watching {
		e.net.OnEvaluationRequest(nil)
	}
	e.cancel()
	e.Wait()
	if e.ownsPool {
		e.pool.Close()
	}
}
