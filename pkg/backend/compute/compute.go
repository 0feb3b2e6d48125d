// Package compute provides the compute backend: data laid out as float32
// tensors for parallel CPU kernels.
//
// Layers become tensors of shape [height, width, channels] with values
// normalized to [0, 1]; volumes keep their dims; buffers are
// one-dimensional. Kernels in this package split work across goroutines.
package compute

import (
	"context"
	"math"
	"runtime"
	"slices"
	"sync"

	"github.com/matzehuels/dataflow/pkg/backend/ram"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// Tensor is a dense float32 array in the compute backend.
type Tensor struct {
	kind   repr.OwnerKind
	Shape  []int
	Data   []float32
	Format ram.Format // pixel format for layer tensors
}

// NewTensor allocates a zeroed tensor.
func NewTensor(kind repr.OwnerKind, shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{kind: kind, Shape: slices.Clone(shape), Data: make([]float32, n)}
}

func (t *Tensor) Kind() repr.OwnerKind { return t.kind }
func (*Tensor) Backend() repr.Backend  { return repr.Compute }
func (t *Tensor) Release() error       { t.Data = nil; return nil }

// Clone returns a deep copy.
func (t *Tensor) Clone() repr.Representation {
	c := *t
	c.Shape = slices.Clone(t.Shape)
	c.Data = slices.Clone(t.Data)
	return &c
}

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// =============================================================================
// Conversion
// =============================================================================

// FromRAM converts a RAM representation into a tensor, reusing dst's storage
// when it has the right size.
func FromRAM(src repr.Representation, dst *Tensor) (*Tensor, error) {
	switch r := src.(type) {
	case *ram.Layer:
		t := reuse(dst, repr.Layer, r.Height, r.Width, r.Format.Channels())
		t.Format = r.Format
		for i, b := range r.Pix {
			t.Data[i] = float32(b) / 255
		}
		return t, nil
	case *ram.Volume:
		t := reuse(dst, repr.Volume, r.Dims[2], r.Dims[1], r.Dims[0])
		copy(t.Data, r.Voxels)
		return t, nil
	case *ram.Buffer:
		t := reuse(dst, repr.Buffer, len(r.Values))
		copy(t.Data, r.Values)
		return t, nil
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "compute backend does not hold %s", repr.KeyOf(src))
	}
}

// ToRAM converts a tensor back into its RAM representation. Layer values are
// clamped to [0, 1] and rounded to the nearest 8-bit level.
func ToRAM(t *Tensor, dst repr.Representation) (repr.Representation, error) {
	switch t.kind {
	case repr.Layer:
		h, w := t.Shape[0], t.Shape[1]
		l, ok := dst.(*ram.Layer)
		if !ok || l.Width != w || l.Height != h || l.Format != t.Format || len(l.Pix) != len(t.Data) {
			var err error
			if l, err = ram.NewLayer(w, h, t.Format, nil); err != nil {
				return nil, err
			}
		}
		for i, v := range t.Data {
			l.Pix[i] = quantize(v)
		}
		return l, nil
	case repr.Volume:
		dims := [3]int{t.Shape[2], t.Shape[1], t.Shape[0]}
		v, ok := dst.(*ram.Volume)
		if !ok || v.Dims != dims || len(v.Voxels) != len(t.Data) {
			v = &ram.Volume{Dims: dims, Voxels: make([]float32, len(t.Data))}
		}
		copy(v.Voxels, t.Data)
		return v, nil
	case repr.Buffer:
		b, ok := dst.(*ram.Buffer)
		if !ok || len(b.Values) != len(t.Data) {
			b = &ram.Buffer{Values: make([]float32, len(t.Data))}
		}
		copy(b.Values, t.Data)
		return b, nil
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "compute backend does not hold %s", t.kind)
	}
}

func quantize(v float32) byte {
	return byte(math.Round(float64(min(max(v, 0), 1)) * 255))
}

func reuse(dst *Tensor, kind repr.OwnerKind, shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if dst != nil && dst.kind == kind && len(dst.Data) == n {
		dst.Shape = slices.Clone(shape)
		return dst
	}
	return NewTensor(kind, shape...)
}

// =============================================================================
// Kernels
// =============================================================================

// Parallel calls fn for disjoint index ranges covering [0, n), one range per
// CPU. It stops early and returns ctx.Err() when ctx is canceled; progress,
// if non-nil, receives the completed fraction.
func Parallel(ctx context.Context, n int, progress func(float64), fn func(lo, hi int)) error {
	workers := min(runtime.NumCPU(), max(n, 1))
	chunk := (n + workers - 1) / workers
	if chunk == 0 {
		return ctx.Err()
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			fn(lo, hi)
			if progress != nil {
				mu.Lock()
				done += hi - lo
				progress(float64(done) / float64(n))
				mu.Unlock()
			}
		}(lo, hi)
	}
	wg.Wait()
	return ctx.Err()
}

// BoxBlur blurs a layer tensor with a (2r+1)x(2r+1) box filter, writing the
// result into a new tensor. Edges are clamped.
func BoxBlur(ctx context.Context, src *Tensor, r int, progress func(float64)) (*Tensor, error) {
	if src.kind != repr.Layer || len(src.Shape) != 3 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "box blur needs a layer tensor, got %s", src.kind)
	}
	if r < 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "blur radius %d must be >= 0", r)
	}
	h, w, ch := src.Shape[0], src.Shape[1], src.Shape[2]
	out := NewTensor(repr.Layer, h, w, ch)
	out.Format = src.Format

	err := Parallel(ctx, h, progress, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < w; x++ {
				for c := 0; c < ch; c++ {
					var sum float32
					for dy := -r; dy <= r; dy++ {
						yy := min(max(y+dy, 0), h-1)
						for dx := -r; dx <= r; dx++ {
							xx := min(max(x+dx, 0), w-1)
							sum += src.Data[(yy*w+xx)*ch+c]
						}
					}
					side := float32(2*r + 1)
					out.Data[(y*w+x)*ch+c] = sum / (side * side)
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ repr.Cloner = (*Tensor)(nil)
