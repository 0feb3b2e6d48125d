// Package workerpool runs background tasks on a fixed number of goroutines.
//
// Every submitted task gets its own cancelable context derived from the
// pool's; [Handle.Cancel] stops one task and [Pool.Close] stops them all.
package workerpool

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dataflow/pkg/errors"
)

// MaxWorkers is the maximum number of workers allowed in a pool.
const MaxWorkers = math.MaxInt / 2

// Func is a unit of background work. It always runs, even when its context
// was canceled while queued, and must return promptly once ctx is canceled.
type Func func(ctx context.Context)

type job struct {
	ctx context.Context
	fn  Func
	h   *Handle
}

// Pool manages a fixed set of worker goroutines.
type Pool struct {
	workers int
	logger  *log.Logger
	jobs    chan job
	ctx     context.Context
	cancel  context.CancelFunc

	wg      sync.WaitGroup // workers
	pending sync.WaitGroup // submitted, not yet finished
	once    sync.Once
	mu      sync.RWMutex // guards jobs against close during send
	closed  bool
}

// New starts a pool with the given number of workers. A non-positive count
// uses runtime.NumCPU(). A nil logger uses log.Default().
func New(workers int, logger *log.Logger) (*Pool, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > MaxWorkers {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "worker count %d exceeds %d", workers, MaxWorkers)
	}
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: workers,
		logger:  logger,
		jobs:    make(chan job, workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p, nil
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	defer p.pending.Done()
	defer close(j.h.done)
	defer j.h.cancel()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic recovered", "panic", r)
			j.h.setErr(errors.New(errors.ErrCodeInternal, "task panicked: %v", r))
		}
	}()
	j.fn(j.ctx)
}

// Submit queues fn. It blocks while the queue is full and returns an
// ErrCodeClosed error once the pool is closed.
func (p *Pool) Submit(fn Func) (*Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, errors.New(errors.ErrCodeClosed, "worker pool is closed")
	}

	ctx, cancel := context.WithCancel(p.ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	p.pending.Add(1)
	p.jobs <- job{ctx: ctx, fn: fn, h: h}
	return h, nil
}

// Wait blocks until every submitted task has finished. The pool stays
// usable.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Close cancels all tasks, then waits for the workers to exit. Close is
// idempotent.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.cancel()
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

func (p *Pool) String() string {
	return fmt.Sprintf("workerpool(%d)", p.workers)
}

// Handle controls one submitted task.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Cancel cancels the task's context. It does not wait for the task.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed when the task has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the recovered panic of a task that panicked, or nil.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}
