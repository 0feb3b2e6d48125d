package repr

import (
	"context"
	"testing"

	"github.com/matzehuels/dataflow/pkg/errors"
)

func noop(_ context.Context, src, _ Representation) (Representation, error) { return src, nil }

func edge(kind OwnerKind, from, to Backend, cost int) Converter {
	return Converter{Kind: kind, From: from, To: to, Cost: cost, Convert: noop}
}

func hops(path []Converter) []Backend {
	if len(path) == 0 {
		return nil
	}
	out := []Backend{path[0].From}
	for _, c := range path {
		out = append(out, c.To)
	}
	return out
}

func equalBackends(a, b []Backend) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResolve_PrefersDirectEdge(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		edge(Layer, RAM, GPU, 1),
		edge(Layer, RAM, Compute, 1),
		edge(Layer, Compute, GPU, 1),
	)

	path, err := r.Resolve(Layer, RAM, GPU)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got, want := hops(path), []Backend{RAM, GPU}; !equalBackends(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_LowestCost(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		edge(Volume, RAM, GPU, 5),
		edge(Volume, RAM, Compute, 1),
		edge(Volume, Compute, GPU, 1),
	)

	path, err := r.Resolve(Volume, RAM, GPU)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got, want := hops(path), []Backend{RAM, Compute, GPU}; !equalBackends(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_TieBreaks(t *testing.T) {
	t.Run("fewest hops", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegister(
			edge(Mesh, RAM, Disk, 1),
			edge(Mesh, Disk, GPU, 1),
			edge(Mesh, RAM, GPU, 2),
		)
		path, err := r.Resolve(Mesh, RAM, GPU)
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		if got, want := hops(path), []Backend{RAM, GPU}; !equalBackends(got, want) {
			t.Errorf("Resolve() = %v, want %v", got, want)
		}
	})

	t.Run("registration order", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegister(
			edge(Mesh, RAM, Disk, 1),
			edge(Mesh, RAM, Compute, 1),
			edge(Mesh, Compute, GPU, 1),
			edge(Mesh, Disk, GPU, 1),
		)
		path, err := r.Resolve(Mesh, RAM, GPU)
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		if got, want := hops(path), []Backend{RAM, Disk, GPU}; !equalBackends(got, want) {
			t.Errorf("Resolve() = %v, want %v", got, want)
		}
	})
}

func TestResolve_SameBackend(t *testing.T) {
	r := NewRegistry()
	path, err := r.Resolve(Buffer, RAM, RAM)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(path) != 0 {
		t.Errorf("Resolve(RAM, RAM) returned %d edges, want 0", len(path))
	}
}

func TestResolve_NoPath(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(edge(Layer, RAM, GPU, 1))

	tests := []struct {
		name string
		kind OwnerKind
		from Backend
		to   Backend
	}{
		{"reverse direction", Layer, GPU, RAM},
		{"unregistered target", Layer, RAM, Disk},
		{"graphs are per kind", Volume, RAM, GPU},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.kind, tt.from, tt.to)
			if !errors.Is(err, errors.ErrCodeNoConverterPath) {
				t.Errorf("Resolve() error = %v, want %s", err, errors.ErrCodeNoConverterPath)
			}
		})
	}
}

func TestResolveAny(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		edge(Layer, RAM, GPU, 2),
		edge(Layer, Compute, GPU, 1),
		edge(Layer, Disk, GPU, 2),
	)

	path, err := r.ResolveAny(Layer, []Backend{RAM, Compute}, GPU)
	if err != nil {
		t.Fatalf("ResolveAny() error: %v", err)
	}
	if got, want := hops(path), []Backend{Compute, GPU}; !equalBackends(got, want) {
		t.Errorf("ResolveAny() = %v, want %v", got, want)
	}

	// Equal cost: the first listed source wins.
	path, err = r.ResolveAny(Layer, []Backend{Disk, RAM}, GPU)
	if err != nil {
		t.Fatalf("ResolveAny() error: %v", err)
	}
	if got, want := hops(path), []Backend{Disk, GPU}; !equalBackends(got, want) {
		t.Errorf("ResolveAny() = %v, want %v", got, want)
	}

	if _, err := r.ResolveAny(Layer, nil, GPU); !errors.Is(err, errors.ErrCodeEmptyData) {
		t.Errorf("ResolveAny(nil) error = %v, want %s", err, errors.ErrCodeEmptyData)
	}
}

func TestRegister_Errors(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(edge(Layer, RAM, GPU, 1)); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	tests := []struct {
		name string
		c    Converter
		code errors.Code
	}{
		{"duplicate", edge(Layer, RAM, GPU, 3), errors.ErrCodeDuplicateConverter},
		{"self edge", edge(Layer, RAM, RAM, 1), errors.ErrCodeInvalidInput},
		{"nil func", Converter{Kind: Layer, From: GPU, To: RAM}, errors.ErrCodeInvalidInput},
		{"invalid kind", edge(0, RAM, GPU, 1), errors.ErrCodeInvalidInput},
		{"invalid backend", edge(Layer, RAM, Backend(42), 1), errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.c); !errors.Is(err, tt.code) {
				t.Errorf("Register() error = %v, want %s", err, tt.code)
			}
		})
	}

	// Same pair on another kind is fine.
	if err := r.Register(edge(Volume, RAM, GPU, 1)); err != nil {
		t.Errorf("Register() on a different kind error: %v", err)
	}
}

func TestRegister_DefaultCost(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(edge(Buffer, RAM, Disk, 0))

	cs := r.Converters(Buffer)
	if len(cs) != 1 || cs[0].Cost != 1 {
		t.Errorf("Converters() = %v, want one edge with cost 1", cs)
	}
}

func TestConverters_RegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		edge(Layer, GPU, RAM, 1),
		edge(Layer, RAM, GPU, 1),
		edge(Layer, RAM, Disk, 1),
	)
	cs := r.Converters(Layer)
	want := []string{"layer: gpu -> ram", "layer: ram -> gpu", "layer: ram -> disk"}
	if len(cs) != len(want) {
		t.Fatalf("Converters() len = %d, want %d", len(cs), len(want))
	}
	for i := range want {
		if cs[i].String() != want[i] {
			t.Errorf("Converters()[%d] = %s, want %s", i, cs[i], want[i])
		}
	}

	if kinds := r.Kinds(); len(kinds) != 1 || kinds[0] != Layer {
		t.Errorf("Kinds() = %v, want [layer]", kinds)
	}
}

func TestParseKinds(t *testing.T) {
	if k, err := ParseOwnerKind("Volume"); err != nil || k != Volume {
		t.Errorf("ParseOwnerKind(Volume) = %v, %v", k, err)
	}
	if _, err := ParseOwnerKind("pointcloud"); err == nil {
		t.Error("ParseOwnerKind(pointcloud) should fail")
	}
	if b, err := ParseBackend("GPU"); err != nil || b != GPU {
		t.Errorf("ParseBackend(GPU) = %v, %v", b, err)
	}
	if _, err := ParseBackend("tpu"); err == nil {
		t.Error("ParseBackend(tpu) should fail")
	}
	if got := (Key{Layer, GPU}).String(); got != "layer/gpu" {
		t.Errorf("Key.String() = %q", got)
	}
	if !GPU.RequiresContext() || RAM.RequiresContext() {
		t.Error("only GPU requires the context thread")
	}
}
