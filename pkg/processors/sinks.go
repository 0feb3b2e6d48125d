package processors

import (
	"context"
	"math"
	"sync"

	"github.com/matzehuels/dataflow/pkg/backend/disk"
	"github.com/matzehuels/dataflow/pkg/backend/gpu"
	"github.com/matzehuels/dataflow/pkg/backend/ram"
	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// =============================================================================
// Stats
// =============================================================================

// Summary describes a buffer.
type Summary struct {
	Count int
	Min   float32
	Max   float32
	Mean  float64
}

// Stats summarizes the buffer on its inport and logs the result.
type Stats struct {
	In  *network.Inport
	env Env

	mu   sync.Mutex
	last Summary
	runs int
}

// NewStats creates a stats sink.
func NewStats(env Env) *Stats {
	return &Stats{In: network.NewInport("inport", repr.Buffer), env: env}
}

func (p *Stats) Ports() []network.Port { return []network.Port{p.In} }

func (p *Stats) Process(ctx context.Context) error {
	b, err := read[*ram.Buffer](ctx, p.In, repr.RAM)
	if err != nil {
		return err
	}
	s := Summary{Count: len(b.Values)}
	if s.Count > 0 {
		s.Min, s.Max = float32(math.Inf(1)), float32(math.Inf(-1))
		var sum float64
		for _, v := range b.Values {
			s.Min = min(s.Min, v)
			s.Max = max(s.Max, v)
			sum += float64(v)
		}
		s.Mean = sum / float64(s.Count)
	}

	p.mu.Lock()
	p.last = s
	p.runs++
	p.mu.Unlock()

	p.env.logger().Info("stats", "processor", p.In.Node().ID(), "count", s.Count, "min", s.Min, "max", s.Max, "mean", s.Mean)
	return nil
}

// Last returns the most recent summary and how many times the sink ran.
func (p *Stats) Last() (Summary, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.runs
}

// =============================================================================
// Preview
// =============================================================================

// Preview keeps its input resident on the GPU backend, the way a viewer
// would before drawing it.
type Preview struct {
	In  *network.Inport
	env Env

	mu     sync.Mutex
	handle uint32
	size   int
}

// NewPreview creates a preview sink.
func NewPreview(env Env) *Preview {
	return &Preview{In: network.NewInport("inport", repr.Layer), env: env}
}

func (p *Preview) Ports() []network.Port { return []network.Port{p.In} }

func (p *Preview) Process(ctx context.Context) error {
	r, err := read[*gpu.Resource](ctx, p.In, repr.GPU)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.handle, p.size = r.Handle(), r.Size()
	p.mu.Unlock()
	p.env.logger().Debug("preview uploaded", "processor", p.In.Node().ID(), "handle", r.Handle(), "bytes", r.Size())
	return nil
}

// Resident returns the device handle and size of the last upload.
func (p *Preview) Resident() (handle uint32, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle, p.size
}

// =============================================================================
// Persist
// =============================================================================

// Persist writes its input to the disk backend and records the blob key.
type Persist struct {
	In  *network.Inport
	env Env

	mu   sync.Mutex
	keys []string
}

// NewPersist creates a persist sink for data of the given kind.
func NewPersist(env Env, kind repr.OwnerKind) *Persist {
	return &Persist{In: network.NewInport("inport", kind), env: env}
}

func (p *Persist) Ports() []network.Port { return []network.Port{p.In} }

func (p *Persist) Process(ctx context.Context) error {
	b, err := read[*disk.Blob](ctx, p.In, repr.Disk)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.keys = append(p.keys, b.Key())
	p.mu.Unlock()
	p.env.logger().Info("persisted", "processor", p.In.Node().ID(), "key", b.Key(), "bytes", b.Size(), "stored", b.StoredSize())
	return nil
}

// Keys returns the blob keys written so far, oldest first.
func (p *Persist) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}
