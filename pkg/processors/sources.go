package processors

import (
	"context"
	"math/rand"
	"sync"

	"github.com/matzehuels/dataflow/pkg/backend/ram"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// Noise generates a layer of uniformly random pixels. The same seed always
// produces the same layer.
type Noise struct {
	Out *network.Outport

	env    Env
	width  int
	height int
	format ram.Format

	mu   sync.Mutex
	seed int64
}

// NewNoise creates a noise source.
func NewNoise(env Env, width, height int, format ram.Format, seed int64) (*Noise, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "noise size %dx%d must be positive", width, height)
	}
	if format.Channels() == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown layer format %s", format)
	}
	return &Noise{
		Out:    network.NewOutport("outport", repr.Layer),
		env:    env,
		width:  width,
		height: height,
		format: format,
		seed:   seed,
	}, nil
}

func (n *Noise) Ports() []network.Port { return []network.Port{n.Out} }

// SetSeed changes the seed. The caller invalidates the processor.
func (n *Noise) SetSeed(seed int64) {
	n.mu.Lock()
	n.seed = seed
	n.mu.Unlock()
}

// Seed returns the current seed.
func (n *Noise) Seed() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seed
}

func (n *Noise) Process(ctx context.Context) error {
	l, err := ram.NewLayer(n.width, n.height, n.format, nil)
	if err != nil {
		return err
	}
	rand.New(rand.NewSource(n.Seed())).Read(l.Pix)
	return publish(n.Out, l, n.env)
}
