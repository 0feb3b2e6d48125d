// Package gpu provides the GPU backend on top of a device that is bound to
// one context thread.
//
// The [Device] simulates device memory: resources are opaque handles whose
// contents live in a device-side table. Like a real graphics context, every
// upload and download must happen on the device's [ctxthread.Queue]; calls
// from any other goroutine fail with ErrCodeInternal.
package gpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/matzehuels/dataflow/pkg/backend/ram"
	"github.com/matzehuels/dataflow/pkg/ctxthread"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// Device owns GPU resources.
type Device struct {
	queue *ctxthread.Queue
	limit int64 // bytes, 0 for unlimited

	mu        sync.Mutex
	next      uint32
	mem       map[uint32][]byte
	used      int64
	uploads   int
	downloads int
}

// NewDevice creates a device bound to queue. limit caps device memory in
// bytes; zero means unlimited.
func NewDevice(queue *ctxthread.Queue, limit int64) (*Device, error) {
	if queue == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "gpu device needs a context queue")
	}
	if limit < 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "gpu memory limit %d must be >= 0", limit)
	}
	return &Device{queue: queue, limit: limit, mem: make(map[uint32][]byte)}, nil
}

// Queue returns the context queue the device is bound to.
func (d *Device) Queue() *ctxthread.Queue { return d.queue }

// Stats describes device memory use.
type Stats struct {
	Resources int
	Bytes     int64
	Uploads   int
	Downloads int
}

// Stats returns current memory use and transfer counts.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{Resources: len(d.mem), Bytes: d.used, Uploads: d.uploads, Downloads: d.downloads}
}

func (d *Device) String() string {
	s := d.Stats()
	return fmt.Sprintf("gpu(%d resources, %d bytes)", s.Resources, s.Bytes)
}

func (d *Device) checkThread(ctx context.Context, op string) error {
	if !d.queue.OnThread(ctx) {
		return errors.New(errors.ErrCodeInternal, "gpu %s called outside the context thread", op)
	}
	return nil
}

// Upload copies a RAM representation into device memory. When dst is a
// resource of the same kind it is overwritten in place and keeps its handle.
func (d *Device) Upload(ctx context.Context, src repr.Representation, dst *Resource) (*Resource, error) {
	if err := d.checkThread(ctx, "upload"); err != nil {
		return nil, err
	}
	payload, err := ram.Encode(src)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	reuse := dst != nil && dst.dev == d && dst.kind == src.Kind() && d.mem[dst.handle] != nil
	grow := int64(len(payload))
	if reuse {
		grow -= int64(len(d.mem[dst.handle]))
	}
	if d.limit > 0 && d.used+grow > d.limit {
		return nil, errors.New(errors.ErrCodeInternal, "gpu out of memory: %d + %d exceeds %d bytes", d.used, grow, d.limit)
	}

	r := dst
	if !reuse {
		d.next++
		r = &Resource{dev: d, kind: src.Kind(), handle: d.next}
	}
	d.mem[r.handle] = payload
	d.used += grow
	d.uploads++
	r.size = len(payload)
	return r, nil
}

// Download reads a resource back into a new RAM representation.
func (d *Device) Download(ctx context.Context, r *Resource) (repr.Representation, error) {
	if err := d.checkThread(ctx, "download"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	payload, ok := d.mem[r.handle]
	d.downloads++
	d.mu.Unlock()
	if !ok || r.dev != d {
		return nil, errors.New(errors.ErrCodeNotFound, "gpu resource %d is not resident", r.handle)
	}
	return ram.Decode(payload)
}

func (d *Device) free(handle uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.mem[handle]; ok {
		d.used -= int64(len(p))
		delete(d.mem, handle)
	}
}

// Resource is a representation resident in device memory.
type Resource struct {
	dev    *Device
	kind   repr.OwnerKind
	handle uint32
	size   int
}

func (r *Resource) Kind() repr.OwnerKind { return r.kind }
func (*Resource) Backend() repr.Backend  { return repr.GPU }
func (r *Resource) Handle() uint32       { return r.handle }
func (r *Resource) Size() int            { return r.size }

// Release frees the device memory. Owners call it on the context thread.
func (r *Resource) Release() error {
	r.dev.free(r.handle)
	return nil
}

func (r *Resource) String() string {
	return fmt.Sprintf("gpu %s #%d (%d bytes)", r.kind, r.handle, r.size)
}
