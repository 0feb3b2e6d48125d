// Package ctxthread marshals work onto the thread that owns a graphics
// context.
//
// Graphics APIs bind their context to one OS thread. A [Queue] runs a single
// goroutine locked to its OS thread with runtime.LockOSThread; every GPU
// upload, readback or resource release is submitted with [Queue.Do] and runs
// there, whichever goroutine asked for it.
//
// Work running on the queue receives a context marked with the queue, so
// nested calls to Do from inside a task run inline instead of deadlocking.
package ctxthread

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dataflow/pkg/errors"
)

// Func is work to run on the context thread.
type Func func(ctx context.Context) error

type task struct {
	ctx    context.Context
	fn     Func
	result chan error
}

type ctxKey struct{}

// Queue runs submitted functions on one dedicated, OS-thread-locked goroutine.
type Queue struct {
	tasks  chan task
	done   chan struct{}
	logger *log.Logger

	mu     sync.RWMutex // guards closed against concurrent sends
	closed bool
	once   sync.Once
}

// New creates a queue and starts its thread. A nil logger uses log.Default().
func New(logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.Default()
	}
	q := &Queue{
		tasks:  make(chan task),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.loop()
	return q
}

func (q *Queue) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(q.done)

	for t := range q.tasks {
		t.result <- q.run(t)
	}
}

func (q *Queue) run(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("context task panicked", "panic", r)
			err = errors.New(errors.ErrCodeInternal, "context task panicked: %v", r)
		}
	}()
	return t.fn(context.WithValue(t.ctx, ctxKey{}, q))
}

// OnThread reports whether ctx belongs to a task running on q.
func (q *Queue) OnThread(ctx context.Context) bool {
	owner, _ := ctx.Value(ctxKey{}).(*Queue)
	return owner == q
}

// Do runs fn on the context thread and waits for it to return.
//
// If ctx already belongs to a task on q, fn runs inline. Do returns an
// ErrCodeClosed error after [Queue.Close], and ctx.Err() if ctx is done
// before the task is accepted. Once accepted, Do waits for fn to return;
// fn receives ctx and is expected to stop early when it is canceled.
func (q *Queue) Do(ctx context.Context, fn Func) error {
	if q.OnThread(ctx) {
		return fn(ctx)
	}

	t := task{ctx: ctx, fn: fn, result: make(chan error, 1)}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return errors.New(errors.ErrCodeClosed, "context queue closed")
	}
	select {
	case q.tasks <- t:
		q.mu.RUnlock()
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}

	return <-t.result
}

// Close stops accepting work, lets the running task finish and stops the
// thread. Close is idempotent.
func (q *Queue) Close() error {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.tasks)
		q.mu.Unlock()
	})
	<-q.done
	return nil
}

// String identifies the queue in logs.
func (q *Queue) String() string {
	return fmt.Sprintf("ctxthread.Queue(%p)", q)
}
