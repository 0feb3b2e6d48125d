package processors

import (
	"context"
	"sync"

	"github.com/matzehuels/dataflow/pkg/backend/ram"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// =============================================================================
// Invert
// =============================================================================

// Invert replaces every channel value v with 255 - v.
type Invert struct {
	In  *network.Inport
	Out *network.Outport
	env Env
}

// NewInvert creates an invert filter.
func NewInvert(env Env) *Invert {
	return &Invert{
		In:  network.NewInport("inport", repr.Layer),
		Out: network.NewOutport("outport", repr.Layer),
		env: env,
	}
}

func (p *Invert) Ports() []network.Port { return []network.Port{p.In, p.Out} }

func (p *Invert) Process(ctx context.Context) error {
	src, err := readLayer(ctx, p.In)
	if err != nil {
		return err
	}
	dst := src.Clone().(*ram.Layer)
	for i, v := range dst.Pix {
		dst.Pix[i] = 255 - v
	}
	return publish(p.Out, dst, p.env)
}

// =============================================================================
// Threshold
// =============================================================================

// Threshold maps values at or above Level to 255 and the rest to 0.
type Threshold struct {
	In  *network.Inport
	Out *network.Outport
	env Env

	mu    sync.Mutex
	level uint8
}

// NewThreshold creates a threshold filter.
func NewThreshold(env Env, level uint8) *Threshold {
	return &Threshold{
		In:    network.NewInport("inport", repr.Layer),
		Out:   network.NewOutport("outport", repr.Layer),
		env:   env,
		level: level,
	}
}

func (p *Threshold) Ports() []network.Port { return []network.Port{p.In, p.Out} }

// SetLevel changes the level. The caller invalidates the processor.
func (p *Threshold) SetLevel(level uint8) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

func (p *Threshold) Process(ctx context.Context) error {
	src, err := readLayer(ctx, p.In)
	if err != nil {
		return err
	}
	p.mu.Lock()
	level := p.level
	p.mu.Unlock()

	dst := src.Clone().(*ram.Layer)
	for i, v := range dst.Pix {
		if v >= level {
			dst.Pix[i] = 255
		} else {
			dst.Pix[i] = 0
		}
	}
	return publish(p.Out, dst, p.env)
}

// =============================================================================
// Blend
// =============================================================================

// Blend averages every connected layer. When the optional gray mask is
// connected the average is scaled by mask/255 per pixel.
type Blend struct {
	In   *network.Inport
	Mask *network.Inport
	Out  *network.Outport
	env  Env
}

// NewBlend creates a blend filter accepting up to max inputs; max <= 0
// means unbounded.
func NewBlend(env Env, max int) *Blend {
	return &Blend{
		In:   network.NewMultiInport("inport", repr.Layer, max),
		Mask: network.NewInport("mask", repr.Layer).Optional(),
		Out:  network.NewOutport("outport", repr.Layer),
		env:  env,
	}
}

func (p *Blend) Ports() []network.Port { return []network.Port{p.In, p.Mask, p.Out} }

func (p *Blend) Process(ctx context.Context) error {
	owners := p.In.AllData()
	if len(owners) == 0 {
		return errors.New(errors.ErrCodeEmptyData, "blend has no inputs")
	}
	layers := make([]*ram.Layer, len(owners))
	for i, o := range owners {
		l, err := ramLayer(ctx, o)
		if err != nil {
			return err
		}
		if i > 0 && !l.SameShape(layers[0]) {
			return errors.New(errors.ErrCodeInvalidInput,
				"blend input %d is %dx%d %s, want %dx%d %s",
				i, l.Width, l.Height, l.Format, layers[0].Width, layers[0].Height, layers[0].Format)
		}
		layers[i] = l
	}

	first := layers[0]
	dst, _ := ram.NewLayer(first.Width, first.Height, first.Format, nil)
	for i := range dst.Pix {
		sum := 0
		for _, l := range layers {
			sum += int(l.Pix[i])
		}
		dst.Pix[i] = uint8((sum + len(layers)/2) / len(layers))
	}

	if p.Mask.IsConnected() {
		mask, err := readLayer(ctx, p.Mask)
		if err != nil {
			return err
		}
		if mask.Width != dst.Width || mask.Height != dst.Height || mask.Format != ram.FormatGray8 {
			return errors.New(errors.ErrCodeInvalidInput, "mask must be a %dx%d gray layer", dst.Width, dst.Height)
		}
		ch := dst.Format.Channels()
		for i := range dst.Pix {
			m := int(mask.Pix[i/ch])
			dst.Pix[i] = uint8((int(dst.Pix[i])*m + 127) / 255)
		}
	}
	return publish(p.Out, dst, p.env)
}
