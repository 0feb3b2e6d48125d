package processors

import (
	"context"

	"github.com/matzehuels/dataflow/pkg/backend/ram"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// =============================================================================
// Histogram
// =============================================================================

// Histogram counts pixel intensities (the channel mean) into equal bins. The result sums to 1.
type Histogram struct {
	In   *network.Inport
	Out  *network.Outport
	env  Env
	bins int
}

// NewHistogram creates a histogram filter with bins in [1, 256].
func NewHistogram(env Env, bins int) (*Histogram, error) {
	if bins < 1 || bins > 256 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "histogram bins %d out of range [1, 256]", bins)
	}
	return &Histogram{
		In:   network.NewInport("inport", repr.Layer),
		Out:  network.NewOutport("outport", repr.Buffer),
		env:  env,
		bins: bins,
	}, nil
}

func (p *Histogram) Ports() []network.Port { return []network.Port{p.In, p.Out} }

func (p *Histogram) Process(ctx context.Context) error {
	l, err := readLayer(ctx, p.In)
	if err != nil {
		return err
	}
	ch := l.Format.Channels()
	counts := make([]float32, p.bins)
	pixels := l.Width * l.Height
	for i := 0; i < pixels; i++ {
		sum := 0
		for _, v := range l.Pix[i*ch : (i+1)*ch] {
			sum += int(v)
		}
		counts[(sum/ch)*p.bins/256]++
	}
	for i := range counts {
		counts[i] /= float32(pixels)
	}
	return publish(p.Out, ram.NewBuffer(counts), p.env)
}

// =============================================================================
// Heightfield
// =============================================================================

// Heightfield turns a layer into a grid mesh with two triangles per grid
// cell. Each pixel becomes a vertex at height scale * v / 255, where v is its
// first channel.
type Heightfield struct {
	In    *network.Inport
	Out   *network.Outport
	env   Env
	scale float32
}

// NewHeightfield creates a heightfield filter.
func NewHeightfield(env Env, scale float32) *Heightfield {
	return &Heightfield{
		In:    network.NewInport("inport", repr.Layer),
		Out:   network.NewOutport("outport", repr.Mesh),
		env:   env,
		scale: scale,
	}
}

func (p *Heightfield) Ports() []network.Port { return []network.Port{p.In, p.Out} }

func (p *Heightfield) Process(ctx context.Context) error {
	l, err := readLayer(ctx, p.In)
	if err != nil {
		return err
	}
	w, h := l.Width, l.Height

	pos := make([]float32, 0, 3*w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			z := float32(l.At(x, y)[0]) / 255 * p.scale
			pos = append(pos, float32(x), float32(y), z)
		}
	}

	idx := make([]uint32, 0, 6*max(w-1, 0)*max(h-1, 0))
	for y := 0; y+1 < h; y++ {
		for x := 0; x+1 < w; x++ {
			i := uint32(y*w + x)
			right, below := i+1, i+uint32(w)
			idx = append(idx, i, below, right, right, below, below+1)
		}
	}

	mesh, err := ram.NewMesh(pos, idx)
	if err != nil {
		return err
	}
	return publish(p.Out, mesh, p.env)
}
