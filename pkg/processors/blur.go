package processors

import (
	"context"
	"sync"

	"github.com/matzehuels/dataflow/pkg/backend/compute"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// Blur applies a box blur on the compute backend. It runs as a background
// task, so the rest of the network keeps evaluating while it works.
type Blur struct {
	In  *network.Inport
	Out *network.Outport
	env Env

	mu     sync.Mutex
	radius int
}

// NewBlur creates a blur filter.
func NewBlur(env Env, radius int) *Blur {
	return &Blur{
		In:     network.NewInport("inport", repr.Layer),
		Out:    network.NewOutport("outport", repr.Layer),
		env:    env,
		radius: radius,
	}
}

func (p *Blur) Ports() []network.Port { return []network.Port{p.In, p.Out} }

// SetRadius changes the radius. The caller invalidates the processor.
func (p *Blur) SetRadius(r int) {
	p.mu.Lock()
	p.radius = r
	p.mu.Unlock()
}

func (p *Blur) Process(ctx context.Context) error {
	return network.RunInline(ctx, p)
}

// Dispatch snapshots the input tensor; the task never touches the input
// owner, which may be replaced while it runs.
func (p *Blur) Dispatch(ctx context.Context) (network.Task, error) {
	p.mu.Lock()
	r := p.radius
	p.mu.Unlock()
	if r < 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "blur radius %d must be >= 0", r)
	}

	src, err := read[*compute.Tensor](ctx, p.In, repr.Compute)
	if err != nil {
		return nil, err
	}
	snap := src.Clone().(*compute.Tensor)

	return func(ctx context.Context, progress network.ProgressFunc) (network.Commit, error) {
		out, err := compute.BoxBlur(ctx, snap, r, progress)
		if err != nil {
			return nil, err
		}
		return func(context.Context) error {
			return publish(p.Out, out, p.env)
		}, nil
	}, nil
}

var _ network.AsyncProcessor = (*Blur)(nil)
