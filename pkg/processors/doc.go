// Package processors provides the stock processors used by the dataflow CLI.
//
// Sources generate data, filters transform it, and sinks consume it. Every
// processor publishes results through [network.Outport.SetData], which
// invalidates the directly connected downstream processors.
//
//	env := processors.Env{Data: data.Options{Registry: reg, Queue: q}}
//	noise, _ := processors.NewNoise(env, 64, 64, ram.FormatGray8, 1)
//	blur := processors.NewBlur(env, 2)
//	net.AddProcessor("Noise", noise)
//	net.AddProcessor("Blur", blur)
//	net.Connect(noise.Out, blur.In)
//
// Processors can also be built from a [config.Pipeline] with [Build].
//
// # Processor Types
//
//	noise      source   layer          random pixels from a seed
//	invert     filter   layer -> layer 255 - value
//	threshold  filter   layer -> layer binarize at a level
//	blend      filter   layer* -> layer average of all inputs, optional mask
//	blur       filter   layer -> layer box blur on the compute backend (background)
//	histogram  filter   layer -> buffer normalized intensity histogram
//	heightfield filter  layer -> mesh  triangulated height map
//	stats      sink     buffer         min, max and mean
//	preview    sink     layer          uploads to the GPU backend
//	persist    sink     any            writes to the disk backend
package processors

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dataflow/pkg/backend/ram"
	"github.com/matzehuels/dataflow/pkg/data"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// Env holds the services processors need to create data.
type Env struct {
	// Data is used for every owner a processor publishes.
	Data data.Options

	// Logger receives sink reports. Defaults to log.Default().
	Logger *log.Logger
}

func (e Env) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// publish replaces the owner on out with one holding rep and closes the
// previous owner.
func publish(out *network.Outport, rep repr.Representation, env Env) error {
	old := out.Data()
	if err := out.SetData(data.NewFrom(rep, env.Data)); err != nil {
		return err
	}
	if old != nil {
		return old.Close()
	}
	return nil
}

// read returns the representation of the data connected to in on backend b.
func read[T repr.Representation](ctx context.Context, in *network.Inport, b repr.Backend) (T, error) {
	o := in.Data()
	if o == nil {
		var zero T
		return zero, errors.New(errors.ErrCodeEmptyData, "inport %s has no data", in)
	}
	return data.As[T](ctx, o, b)
}

// readLayer returns the RAM layer connected to in.
func readLayer(ctx context.Context, in *network.Inport) (*ram.Layer, error) {
	return read[*ram.Layer](ctx, in, repr.RAM)
}

func ramLayer(ctx context.Context, o *data.Owner) (*ram.Layer, error) {
	return data.As[*ram.Layer](ctx, o, repr.RAM)
}
