// Package backend registers the converters between the built-in backends.
//
//	q := ctxthread.New(logger)
//	dev, _ := gpu.NewDevice(q, 0)
//	store, _ := disk.NewStore(fileCache, nil)
//	reg := repr.NewRegistry()
//	err := backend.Register(reg, backend.Deps{Device: dev, Store: store})
//
// RAM is the hub. Compute and GPU are also connected directly so tensors
// computed on the CPU can be uploaded without a RAM round trip.
package backend

import (
	"context"

	"github.com/matzehuels/dataflow/pkg/backend/compute"
	"github.com/matzehuels/dataflow/pkg/backend/disk"
	"github.com/matzehuels/dataflow/pkg/backend/gpu"
	"github.com/matzehuels/dataflow/pkg/backend/ram"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// Converter costs. A direct RAM to GPU upload costs the same as going
// through compute, and wins the tie by having fewer hops.
const (
	CostRAMCompute = 1
	CostComputeGPU = 1
	CostRAMGPU     = 2
	CostDisk       = 8
)

// Deps are the optional services backing the GPU and disk backends.
type Deps struct {
	Device *gpu.Device // nil leaves the GPU backend unreachable
	Store  *disk.Store // nil leaves the disk backend unreachable
}

// computeKinds are the kinds the compute backend can hold.
var computeKinds = []repr.OwnerKind{repr.Buffer, repr.Layer, repr.Volume}

// Register adds every available converter to reg.
func Register(reg *repr.Registry, deps Deps) error {
	if reg == nil {
		return errors.New(errors.ErrCodeInvalidInput, "registry is nil")
	}
	var cs []repr.Converter

	for _, k := range computeKinds {
		cs = append(cs,
			repr.Converter{Kind: k, From: repr.RAM, To: repr.Compute, Cost: CostRAMCompute, Convert: ramToCompute},
			repr.Converter{Kind: k, From: repr.Compute, To: repr.RAM, Cost: CostRAMCompute, Convert: computeToRAM},
		)
	}

	if dev := deps.Device; dev != nil {
		for _, k := range repr.OwnerKinds {
			cs = append(cs,
				repr.Converter{Kind: k, From: repr.RAM, To: repr.GPU, Cost: CostRAMGPU, Convert: upload(dev)},
				repr.Converter{Kind: k, From: repr.GPU, To: repr.RAM, Cost: CostRAMGPU, Convert: download(dev)},
			)
		}
		for _, k := range computeKinds {
			cs = append(cs,
				repr.Converter{Kind: k, From: repr.Compute, To: repr.GPU, Cost: CostComputeGPU, Convert: computeToGPU(dev)},
				repr.Converter{Kind: k, From: repr.GPU, To: repr.Compute, Cost: CostComputeGPU, Convert: gpuToCompute(dev)},
			)
		}
	}

	if st := deps.Store; st != nil {
		for _, k := range repr.OwnerKinds {
			cs = append(cs,
				repr.Converter{Kind: k, From: repr.RAM, To: repr.Disk, Cost: CostDisk, Convert: store(st)},
				repr.Converter{Kind: k, From: repr.Disk, To: repr.RAM, Cost: CostDisk, Convert: load(st)},
			)
		}
	}

	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func ramToCompute(_ context.Context, src, dst repr.Representation) (repr.Representation, error) {
	t, _ := dst.(*compute.Tensor)
	return compute.FromRAM(src, t)
}

func computeToRAM(_ context.Context, src, dst repr.Representation) (repr.Representation, error) {
	return compute.ToRAM(src.(*compute.Tensor), dst)
}

func upload(dev *gpu.Device) repr.ConvertFunc {
	return func(ctx context.Context, src, dst repr.Representation) (repr.Representation, error) {
		r, _ := dst.(*gpu.Resource)
		return dev.Upload(ctx, src, r)
	}
}

func download(dev *gpu.Device) repr.ConvertFunc {
	return func(ctx context.Context, src, _ repr.Representation) (repr.Representation, error) {
		return dev.Download(ctx, src.(*gpu.Resource))
	}
}

func computeToGPU(dev *gpu.Device) repr.ConvertFunc {
	return func(ctx context.Context, src, dst repr.Representation) (repr.Representation, error) {
		host, err := compute.ToRAM(src.(*compute.Tensor), nil)
		if err != nil {
			return nil, err
		}
		r, _ := dst.(*gpu.Resource)
		return dev.Upload(ctx, host, r)
	}
}

func gpuToCompute(dev *gpu.Device) repr.ConvertFunc {
	return func(ctx context.Context, src, dst repr.Representation) (repr.Representation, error) {
		host, err := dev.Download(ctx, src.(*gpu.Resource))
		if err != nil {
			return nil, err
		}
		t, _ := dst.(*compute.Tensor)
		return compute.FromRAM(host, t)
	}
}

func store(st *disk.Store) repr.ConvertFunc {
	return func(ctx context.Context, src, dst repr.Representation) (repr.Representation, error) {
		b, _ := dst.(*disk.Blob)
		return st.Write(ctx, src, b)
	}
}

func load(st *disk.Store) repr.ConvertFunc {
	return func(ctx context.Context, src, _ repr.Representation) (repr.Representation, error) {
		return st.Read(ctx, src.(*disk.Blob))
	}
}

var (
	_ repr.Representation = (*ram.Layer)(nil)
	_ repr.Representation = (*compute.Tensor)(nil)
	_ repr.Representation = (*gpu.Resource)(nil)
	_ repr.Representation = (*disk.Blob)(nil)
)
