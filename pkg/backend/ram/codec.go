package ram

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// magic prefixes every encoded representation.
var magic = [4]byte{'D', 'F', 'R', '1'}

// Encode serializes a RAM representation into a self-describing byte
// slice. Decode(Encode(r)) reproduces r exactly.
func Encode(rep repr.Representation) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(byte(rep.Kind()))

	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	switch r := rep.(type) {
	case *Layer:
		w(uint32(r.Width))
		w(uint32(r.Height))
		buf.WriteByte(byte(r.Format))
		buf.Write(r.Pix)
	case *Volume:
		for _, d := range r.Dims {
			w(uint32(d))
		}
		w(r.Voxels)
	case *Buffer:
		w(uint32(len(r.Values)))
		w(r.Values)
	case *Mesh:
		w(uint32(len(r.Positions)))
		w(uint32(len(r.Indices)))
		w(r.Positions)
		w(r.Indices)
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "cannot encode %T", rep)
	}
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (repr.Representation, error) {
	if len(data) < len(magic)+1 || !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "not an encoded representation")
	}
	kind := repr.OwnerKind(data[len(magic)])
	d := &decoder{buf: data[len(magic)+1:]}

	var rep repr.Representation
	var err error
	switch kind {
	case repr.Layer:
		w, h := int(d.u32()), int(d.u32())
		f := Format(d.byte())
		if d.err == nil {
			rep, err = NewLayer(w, h, f, d.bytes(w*h*f.Channels()))
		}
	case repr.Volume:
		dims := [3]int{int(d.u32()), int(d.u32()), int(d.u32())}
		if d.err == nil {
			rep, err = NewVolume(dims, d.f32s(dims[0]*dims[1]*dims[2]))
		}
	case repr.Buffer:
		n := int(d.u32())
		rep = NewBuffer(d.f32s(n))
	case repr.Mesh:
		np, ni := int(d.u32()), int(d.u32())
		pos := d.f32s(np)
		idx := d.u32s(ni)
		if d.err == nil {
			rep, err = NewMesh(pos, idx)
		}
	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "cannot decode %s", kind)
	}
	if d.err != nil {
		return nil, d.err
	}
	if err != nil {
		return nil, err
	}
	if len(d.buf) != 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%d trailing bytes after %s", len(d.buf), kind)
	}
	return rep, nil
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf) {
		d.err = errors.New(errors.ErrCodeInvalidInput, "truncated representation: need %d bytes, have %d", n, len(d.buf))
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) byte() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) bytes(n int) []byte {
	b := d.take(n)
	if b == nil {
		return nil
	}
	return bytes.Clone(b)
}

func (d *decoder) f32s(n int) []float32 {
	b := d.take(4 * n)
	if b == nil {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func (d *decoder) u32s(n int) []uint32 {
	b := d.take(4 * n)
	if b == nil {
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return out
}
