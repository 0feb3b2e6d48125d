package evaluator

import "context"

// Watch subscribes to the network's evaluation requests and runs a pass in
// the background for each one. Requests that arrive while a pass is running
// are coalesced into one follow-up pass. Watch also schedules an initial
// pass.
func (e *Evaluator) Watch() {
	e.mu.Lock()
	if e.closed || e.watching {
		e.mu.Unlock()
		return
	}
	e.watching = true
	e.mu.Unlock()

	e.net.OnEvaluationRequest(e.request)
	e.request()
}

// Unwatch stops reacting to evaluation requests. A running pass finishes.
func (e *Evaluator) Unwatch() {
	e.mu.Lock()
	was := e.watching
	e.watching = false
	e.mu.Unlock()
	if was {
		e.net.OnEvaluationRequest(nil)
	}
}

// request schedules a watch pass, or marks one pending if a pass is already
// running.
func (e *Evaluator) request() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requestLocked()
}

func (e *Evaluator) requestLocked() {
	if !e.watching || e.closed {
		return
	}
	if e.running {
		e.pending = true
		return
	}
	e.running = true
	go e.loop()
}

func (e *Evaluator) loop() {
	for {
		_, err := e.Evaluate(e.ctx)

		e.mu.Lock()
		e.lastErr = err
		if !e.pending || !e.watching || e.closed {
			e.pending = false
			e.running = false
			e.idle.Broadcast()
			e.mu.Unlock()
			return
		}
		e.pending = false
		e.mu.Unlock()
	}
}

// Run watches until ctx is done, then closes the evaluator.
func (e *Evaluator) Run(ctx context.Context) error {
	e.Watch()
	<-ctx.Done()
	e.Close()
	return ctx.Err()
}
