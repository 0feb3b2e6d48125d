package cache

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy repeats operations that fail with a [Transient] error. The wait
// between attempts starts at Delay and doubles, capped at MaxDelay.
type RetryPolicy struct {
	Attempts int           // total tries, the first included
	Delay    time.Duration // wait before the second try
	MaxDelay time.Duration // upper bound for a single wait
}

// DefaultRetryPolicy returns the policy used for fields left at zero.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 4, Delay: 50 * time.Millisecond, MaxDelay: time.Second}
}

// withDefaults fills zero fields from DefaultRetryPolicy.
func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Delay <= 0 {
		p.Delay = def.Delay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = max(def.MaxDelay, p.Delay)
	}
	return p
}

// wait returns the pause after the given failed attempt, counted from 1.
func (p RetryPolicy) wait(attempt int) time.Duration {
	d := p.Delay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	return min(d, p.MaxDelay)
}

// Do runs op until it succeeds, fails with an error that is not transient, or
// the attempts run out. In the last case the final error is returned with
// the attempt count. A context canceled during a wait ends Do with ctx.Err().
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	p = p.withDefaults()
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == p.Attempts {
			if attempt == 1 {
				return err
			}
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		t := time.NewTimer(p.wait(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
