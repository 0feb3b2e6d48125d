// Package ram provides the host-memory representations of every owner kind.
//
// RAM is the hub backend: every other backend converts to and from it, and
// readers normally produce RAM representations first.
package ram

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// Format is the pixel format of a layer.
type Format uint8

// Pixel formats.
const (
	FormatGray8 Format = iota + 1
	FormatRGBA8
)

// Channels returns the number of bytes per pixel.
func (f Format) Channels() int {
	switch f {
	case FormatGray8:
		return 1
	case FormatRGBA8:
		return 4
	default:
		return 0
	}
}

func (f Format) String() string {
	switch f {
	case FormatGray8:
		return "gray8"
	case FormatRGBA8:
		return "rgba8"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParseFormat parses "gray8" or "rgba8".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "gray8":
		return FormatGray8, nil
	case "rgba8":
		return FormatRGBA8, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidInput, "unknown layer format %q", s)
}

// =============================================================================
// Layer
// =============================================================================

// Layer is a 2D image with 8-bit channels, rows top to bottom.
type Layer struct {
	Width, Height int
	Format        Format
	Pix           []byte
}

// NewLayer creates a layer. A nil pix allocates a zeroed buffer.
func NewLayer(width, height int, format Format, pix []byte) (*Layer, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "layer size %dx%d must be positive", width, height)
	}
	if format.Channels() == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown layer format %s", format)
	}
	n := width * height * format.Channels()
	if pix == nil {
		pix = make([]byte, n)
	}
	if len(pix) != n {
		return nil, errors.New(errors.ErrCodeInvalidInput, "layer %dx%d %s needs %d bytes, got %d", width, height, format, n, len(pix))
	}
	return &Layer{Width: width, Height: height, Format: format, Pix: pix}, nil
}

func (*Layer) Kind() repr.OwnerKind  { return repr.Layer }
func (*Layer) Backend() repr.Backend { return repr.RAM }
func (l *Layer) Release() error      { l.Pix = nil; return nil }

// Clone returns a deep copy.
func (l *Layer) Clone() repr.Representation {
	c := *l
	c.Pix = slices.Clone(l.Pix)
	return &c
}

// Stride returns the number of bytes per row.
func (l *Layer) Stride() int { return l.Width * l.Format.Channels() }

// At returns the channels of pixel (x, y).
func (l *Layer) At(x, y int) []byte {
	ch := l.Format.Channels()
	i := y*l.Stride() + x*ch
	return l.Pix[i : i+ch]
}

// SameShape reports whether o has the same size and format.
func (l *Layer) SameShape(o *Layer) bool {
	return l.Width == o.Width && l.Height == o.Height && l.Format == o.Format
}

// =============================================================================
// Volume
// =============================================================================

// Volume is a 3D scalar field stored x-fastest.
type Volume struct {
	Dims   [3]int
	Voxels []float32
}

// NewVolume creates a volume. A nil voxels slice allocates a zeroed one.
func NewVolume(dims [3]int, voxels []float32) (*Volume, error) {
	n := 1
	for _, d := range dims {
		if d <= 0 {
			return nil, errors.New(errors.ErrCodeInvalidInput, "volume dims %v must be positive", dims)
		}
		n *= d
	}
	if voxels == nil {
		voxels = make([]float32, n)
	}
	if len(voxels) != n {
		return nil, errors.New(errors.ErrCodeInvalidInput, "volume %v needs %d voxels, got %d", dims, n, len(voxels))
	}
	return &Volume{Dims: dims, Voxels: voxels}, nil
}

func (*Volume) Kind() repr.OwnerKind  { return repr.Volume }
func (*Volume) Backend() repr.Backend { return repr.RAM }
func (v *Volume) Release() error      { v.Voxels = nil; return nil }

// Clone returns a deep copy.
func (v *Volume) Clone() repr.Representation {
	return &Volume{Dims: v.Dims, Voxels: slices.Clone(v.Voxels)}
}

// =============================================================================
// Buffer
// =============================================================================

// Buffer is a flat array of scalars, such as a histogram or a lookup table.
type Buffer struct {
	Values []float32
}

// NewBuffer wraps values.
func NewBuffer(values []float32) *Buffer {
	return &Buffer{Values: values}
}

func (*Buffer) Kind() repr.OwnerKind  { return repr.Buffer }
func (*Buffer) Backend() repr.Backend { return repr.RAM }
func (b *Buffer) Release() error      { b.Values = nil; return nil }

// Clone returns a deep copy.
func (b *Buffer) Clone() repr.Representation {
	return &Buffer{Values: slices.Clone(b.Values)}
}

// =============================================================================
// Mesh
// =============================================================================

// Mesh is an indexed triangle mesh.
type Mesh struct {
	Positions []float32 // x, y, z per vertex
	Indices   []uint32  // three per triangle
}

// NewMesh validates and wraps mesh data.
func NewMesh(positions []float32, indices []uint32) (*Mesh, error) {
	if len(positions)%3 != 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "mesh positions length %d is not a multiple of 3", len(positions))
	}
	if len(indices)%3 != 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "mesh indices length %d is not a multiple of 3", len(indices))
	}
	verts := uint32(len(positions) / 3)
	for _, i := range indices {
		if i >= verts {
			return nil, errors.New(errors.ErrCodeInvalidInput, "mesh index %d out of range (%d vertices)", i, verts)
		}
	}
	return &Mesh{Positions: positions, Indices: indices}, nil
}

func (*Mesh) Kind() repr.OwnerKind  { return repr.Mesh }
func (*Mesh) Backend() repr.Backend { return repr.RAM }
func (m *Mesh) Release() error      { m.Positions, m.Indices = nil, nil; return nil }

// Clone returns a deep copy.
func (m *Mesh) Clone() repr.Representation {
	return &Mesh{Positions: slices.Clone(m.Positions), Indices: slices.Clone(m.Indices)}
}

// Vertices returns the number of vertices.
func (m *Mesh) Vertices() int { return len(m.Positions) / 3 }

// Triangles returns the number of triangles.
func (m *Mesh) Triangles() int { return len(m.Indices) / 3 }

var (
	_ repr.Cloner = (*Layer)(nil)
	_ repr.Cloner = (*Volume)(nil)
	_ repr.Cloner = (*Buffer)(nil)
	_ repr.Cloner = (*Mesh)(nil)
)
