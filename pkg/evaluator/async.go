package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/network"
)

// isInFlight reports whether node has a running task. A task started for an
// older generation is canceled, but the node still counts as in flight until
// the task returns.
func (e *Evaluator) isInFlight(node *network.Node, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.inflight[node]
	if !ok {
		return false
	}
	if f.gen != gen && f.handle != nil {
		f.handle.Cancel()
	}
	return true
}

func (e *Evaluator) markInFlight(node *network.Node, gen uint64) {
	e.mu.Lock()
	e.inflight[node] = &flight{gen: gen, start: time.Now()}
	e.mu.Unlock()
}

func (e *Evaluator) submit(d dispatch) {
	node := d.node
	h, err := e.pool.Submit(func(ctx context.Context) {
		commit, err := e.runTask(ctx, node, d.task)
		e.complete(node, d.gen, commit, err)
	})
	if err != nil {
		e.complete(node, d.gen, nil, err)
		return
	}

	e.mu.Lock()
	if f, ok := e.inflight[node]; ok && f.gen == d.gen {
		f.handle = h
	}
	e.mu.Unlock()
}

func (e *Evaluator) runTask(ctx context.Context, node *network.Node, task network.Task) (commit network.Commit, err error) {
	defer func() {
		if r := recover(); r != nil {
			commit, err = nil, &errors.ProcessorError{Processor: node.ID(), Panic: true, Cause: fmt.Errorf("%v", r)}
		}
	}()
	// Close cancels the evaluator context, which may outlive a shared pool.
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	defer context.AfterFunc(e.ctx, stop)()
	return task(ctx, node.SetProgress)
}

// complete settles a finished task. The commit runs under the pass lock so
// it never overlaps an evaluation pass.
func (e *Evaluator) complete(node *network.Node, gen uint64, commit network.Commit, err error) {
	e.mu.Lock()
	var start time.Time
	if f, ok := e.inflight[node]; ok {
		start = f.start
	}
	e.mu.Unlock()

	if err == nil && commit != nil {
		e.pass.Lock()
		if node.Generation() == gen && e.ctx.Err() == nil {
			if cerr := e.guardCommit(node, commit); cerr != nil {
				err = cerr
			} else {
				node.Settle(gen, network.Valid, nil)
			}
		}
		e.pass.Unlock()
	}

	switch {
	case node.Generation() != gen || e.ctx.Err() != nil:
		e.logger.Debug("dropped stale task result", "processor", node.ID())
	case err != nil:
		if _, ok := err.(*errors.ProcessorError); !ok {
			err = &errors.ProcessorError{Processor: node.ID(), Cause: err}
		}
		if node.Settle(gen, network.Error, err) {
			e.logger.Error("processor failed", "processor", node.ID(), "err", err)
		}
	case commit == nil:
		node.Settle(gen, network.Valid, nil)
	}
	e.hooks.OnTaskComplete(context.Background(), node.ID(), time.Since(start), err)

	// Scheduling the follow-up pass under the same lock keeps Wait from
	// observing an idle evaluator in between. A node invalidated during
	// flight is redispatched by that pass.
	e.mu.Lock()
	delete(e.inflight, node)
	e.requestLocked()
	e.idle.Broadcast()
	e.mu.Unlock()
}

func (e *Evaluator) guardCommit(node *network.Node, commit network.Commit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errors.ProcessorError{Processor: node.ID(), Panic: true, Cause: fmt.Errorf("%v", r)}
		}
	}()
	if err := commit(e.ctx); err != nil {
		return &errors.ProcessorError{Processor: node.ID(), Cause: err}
	}
	return nil
}
