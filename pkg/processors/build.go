package processors

import (
	"maps"
	"slices"

	"github.com/matzehuels/dataflow/pkg/backend/ram"
	"github.com/matzehuels/dataflow/pkg/config"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// Factory creates a processor from pipeline parameters.
type Factory func(env Env, p config.Params) (network.Processor, error)

var factories = map[string]Factory{
	"noise": func(env Env, p config.Params) (network.Processor, error) {
		w, err := p.Int("width", 64)
		if err != nil {
			return nil, err
		}
		h, err := p.Int("height", 64)
		if err != nil {
			return nil, err
		}
		seed, err := p.Int("seed", 1)
		if err != nil {
			return nil, err
		}
		f, err := p.String("format", "gray8")
		if err != nil {
			return nil, err
		}
		format, err := ram.ParseFormat(f)
		if err != nil {
			return nil, err
		}
		return NewNoise(env, w, h, format, int64(seed))
	},
	"invert": func(env Env, _ config.Params) (network.Processor, error) {
		return NewInvert(env), nil
	},
	"threshold": func(env Env, p config.Params) (network.Processor, error) {
		level, err := p.Int("level", 128)
		if err != nil {
			return nil, err
		}
		if level < 0 || level > 255 {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "threshold level %d out of range [0, 255]", level)
		}
		return NewThreshold(env, uint8(level)), nil
	},
	"blend": func(env Env, p config.Params) (network.Processor, error) {
		n, err := p.Int("max_inputs", 0)
		if err != nil {
			return nil, err
		}
		return NewBlend(env, n), nil
	},
	"blur": func(env Env, p config.Params) (network.Processor, error) {
		r, err := p.Int("radius", 1)
		if err != nil {
			return nil, err
		}
		return NewBlur(env, r), nil
	},
	"histogram": func(env Env, p config.Params) (network.Processor, error) {
		bins, err := p.Int("bins", 16)
		if err != nil {
			return nil, err
		}
		return NewHistogram(env, bins)
	},
	"heightfield": func(env Env, p config.Params) (network.Processor, error) {
		scale, err := p.Float("scale", 1)
		if err != nil {
			return nil, err
		}
		return NewHeightfield(env, float32(scale)), nil
	},
	"stats": func(env Env, _ config.Params) (network.Processor, error) {
		return NewStats(env), nil
	},
	"preview": func(env Env, _ config.Params) (network.Processor, error) {
		return NewPreview(env), nil
	},
	"persist": func(env Env, p config.Params) (network.Processor, error) {
		k, err := p.String("kind", "layer")
		if err != nil {
			return nil, err
		}
		kind, err := repr.ParseOwnerKind(k)
		if err != nil {
			return nil, err
		}
		return NewPersist(env, kind), nil
	},
}

// Types returns the processor type names accepted by [New], sorted.
func Types() []string {
	return slices.Sorted(maps.Keys(factories))
}

// New creates the processor described by spec.
func New(env Env, spec config.ProcessorSpec) (network.Processor, error) {
	f, ok := factories[spec.Type]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "processor %s: unknown type %q", spec.ID, spec.Type)
	}
	p, err := f(env, config.Params(spec.Params))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "processor %s", spec.ID)
	}
	return p, nil
}

// Build adds the pipeline's processors and connections to net as one batch,
// so the network raises a single evaluation request. It stops at the first
// error; processors added before it stay in the network.
func Build(net *network.Network, p *config.Pipeline, env Env) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return net.Batch(func() error {
		for _, spec := range p.Processors {
			proc, err := New(env, spec)
			if err != nil {
				return err
			}
			if _, err := net.AddProcessor(spec.ID, proc); err != nil {
				return err
			}
		}
		for _, c := range p.Connections {
			out, err := outport(net, c.From)
			if err != nil {
				return err
			}
			in, err := inport(net, c.To)
			if err != nil {
				return err
			}
			if err := net.Connect(out, in); err != nil {
				return err
			}
		}
		return nil
	})
}

func outport(net *network.Network, endpoint string) (*network.Outport, error) {
	id, port, err := config.Endpoint(endpoint)
	if err != nil {
		return nil, err
	}
	n, ok := net.Processor(id)
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "processor %q not found", id)
	}
	if p := n.Outport(port); p != nil {
		return p, nil
	}
	return nil, errors.New(errors.ErrCodeNotFound, "processor %s has no outport %q", id, port)
}

func inport(net *network.Network, endpoint string) (*network.Inport, error) {
	id, port, err := config.Endpoint(endpoint)
	if err != nil {
		return nil, err
	}
	n, ok := net.Processor(id)
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "processor %q not found", id)
	}
	if p := n.Inport(port); p != nil {
		return p, nil
	}
	return nil, errors.New(errors.ErrCodeNotFound, "processor %s has no inport %q", id, port)
}
