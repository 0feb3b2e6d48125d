package network

import (
	"context"
	"slices"
	"testing"

	"github.com/matzehuels/dataflow/pkg/data"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// stub is a processor with one inport and one outport.
type stub struct {
	in  *Inport
	out *Outport
}

func newStub(kind repr.OwnerKind) *stub {
	return &stub{in: NewInport("inport", kind), out: NewOutport("outport", kind)}
}

func (s *stub) Ports() []Port                     { return []Port{s.in, s.out} }
func (s *stub) Process(ctx context.Context) error { return nil }

// sink has a single multi inport.
type sink struct{ in *Inport }

func (s *sink) Ports() []Port                     { return []Port{s.in} }
func (s *sink) Process(ctx context.Context) error { return nil }

func mustAdd(t *testing.T, n *Network, id string, p Processor) *Node {
	t.Helper()
	node, err := n.AddProcessor(id, p)
	if err != nil {
		t.Fatalf("AddProcessor(%q): %v", id, err)
	}
	return node
}

func mustConnect(t *testing.T, n *Network, out *Outport, in *Inport) {
	t.Helper()
	if err := n.Connect(out, in); err != nil {
		t.Fatalf("Connect(%s, %s): %v", out, in, err)
	}
}

func ids(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	return out
}

func TestAddProcessor(t *testing.T) {
	n := New(nil)
	a := newStub(repr.Layer)
	node := mustAdd(t, n, "A", a)

	if node.State() != Invalid {
		t.Errorf("initial state = %v, want invalid", node.State())
	}
	if a.in.Node() != node || a.out.Node() != node {
		t.Error("ports not bound to node")
	}
	if got := a.out.String(); got != "A.outport" {
		t.Errorf("port name = %q, want A.outport", got)
	}

	tests := []struct {
		name string
		id   string
		p    Processor
		code errors.Code
	}{
		{"duplicate id", "A", newStub(repr.Layer), errors.ErrCodeDuplicateProcessor},
		{"empty id", "", newStub(repr.Layer), errors.ErrCodeInvalidInput},
		{"nil processor", "B", nil, errors.ErrCodeInvalidInput},
		{"bound ports", "C", a, errors.ErrCodeInvalidInput},
		{"duplicate port", "D", &stub{in: NewInport("x", repr.Layer), out: NewOutport("x", repr.Layer)}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.AddProcessor(tt.id, tt.p)
			if !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want code %s", err, tt.code)
			}
		})
	}
	if n.ProcessorCount() != 1 {
		t.Errorf("ProcessorCount = %d, want 1", n.ProcessorCount())
	}
}

func TestUniqueID(t *testing.T) {
	n := New(nil)
	if got := n.UniqueID("Blur"); got != "Blur" {
		t.Errorf("UniqueID = %q, want Blur", got)
	}
	mustAdd(t, n, "Blur", newStub(repr.Layer))
	mustAdd(t, n, "Blur 2", newStub(repr.Layer))
	if got := n.UniqueID("Blur"); got != "Blur 3" {
		t.Errorf("UniqueID = %q, want Blur 3", got)
	}
}

func TestConnect_Errors(t *testing.T) {
	n := New(nil)
	a := newStub(repr.Layer)
	b := newStub(repr.Layer)
	v := newStub(repr.Volume)
	mustAdd(t, n, "A", a)
	mustAdd(t, n, "B", b)
	mustAdd(t, n, "V", v)
	mustConnect(t, n, a.out, b.in)

	stray := newStub(repr.Layer)
	other := New(nil)
	foreign := newStub(repr.Layer)
	mustAdd(t, other, "F", foreign)

	tests := []struct {
		name string
		out  *Outport
		in   *Inport
		code errors.Code
	}{
		{"type mismatch", a.out, v.in, errors.ErrCodePortTypeMismatch},
		{"duplicate", a.out, b.in, errors.ErrCodeDuplicateConnection},
		{"kind checked first", v.out, b.in, errors.ErrCodePortTypeMismatch},
		{"self loop", a.out, a.in, errors.ErrCodeCyclicNetwork},
		{"cycle", b.out, a.in, errors.ErrCodeCyclicNetwork},
		{"unbound port", stray.out, a.in, errors.ErrCodeNotFound},
		{"other network", foreign.out, a.in, errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := n.Connections()
			err := n.Connect(tt.out, tt.in)
			if !errors.Is(err, tt.code) {
				t.Fatalf("err = %v, want code %s", err, tt.code)
			}
			if !slices.Equal(before, n.Connections()) {
				t.Error("failed connect changed the connection set")
			}
		})
	}
}

func TestConnect_FanIn(t *testing.T) {
	n := New(nil)
	a, b, c := newStub(repr.Layer), newStub(repr.Layer), newStub(repr.Layer)
	mustAdd(t, n, "A", a)
	mustAdd(t, n, "B", b)
	mustAdd(t, n, "C", c)
	mustConnect(t, n, a.out, c.in)

	if err := n.Connect(b.out, c.in); !errors.Is(err, errors.ErrCodeFanInExceeded) {
		t.Errorf("err = %v, want FAN_IN_EXCEEDED", err)
	}

	s := &sink{in: NewMultiInport("inport", repr.Layer, 2)}
	mustAdd(t, n, "Sink", s)
	mustConnect(t, n, a.out, s.in)
	mustConnect(t, n, b.out, s.in)
	if err := n.Connect(c.out, s.in); !errors.Is(err, errors.ErrCodeFanInExceeded) {
		t.Errorf("third connection: err = %v, want FAN_IN_EXCEEDED", err)
	}
	if got := len(s.in.Sources()); got != 2 {
		t.Errorf("sources = %d, want 2", got)
	}
}

func TestConnect_InvalidatesTarget(t *testing.T) {
	n := New(nil)
	a, b := newStub(repr.Layer), newStub(repr.Layer)
	mustAdd(t, n, "A", a)
	nb := mustAdd(t, n, "B", b)
	nb.Settle(nb.Generation(), Valid, nil)

	mustConnect(t, n, a.out, b.in)
	if nb.State() != Invalid {
		t.Errorf("state = %v, want invalid", nb.State())
	}
}

func TestRemoveProcessor(t *testing.T) {
	n := New(nil)
	a, b, c := newStub(repr.Layer), newStub(repr.Layer), newStub(repr.Layer)
	mustAdd(t, n, "A", a)
	mustAdd(t, n, "B", b)
	nc := mustAdd(t, n, "C", c)
	mustConnect(t, n, a.out, b.in)
	mustConnect(t, n, b.out, c.in)
	nc.Settle(nc.Generation(), Valid, nil)

	if err := n.RemoveProcessor("B"); err != nil {
		t.Fatalf("RemoveProcessor: %v", err)
	}
	if n.ConnectionCount() != 0 {
		t.Errorf("connections = %v, want none", n.Connections())
	}
	if len(a.out.Targets()) != 0 || c.in.IsConnected() {
		t.Error("ports still reference removed connections")
	}
	if nc.State() != Invalid {
		t.Errorf("downstream state = %v, want invalid", nc.State())
	}
	if _, ok := n.Processor("B"); ok {
		t.Error("B still present")
	}
	if err := n.RemoveProcessor("B"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("second remove: err = %v, want NOT_FOUND", err)
	}

	n.Clear()
	if n.ProcessorCount() != 0 {
		t.Errorf("ProcessorCount after Clear = %d", n.ProcessorCount())
	}
}

func TestRemoveProcessor_CanBeAddedAgain(t *testing.T) {
	ctx := context.Background()
	n := New(nil)
	a, b := newStub(repr.Layer), newStub(repr.Layer)
	na := mustAdd(t, n, "A", a)
	nb := mustAdd(t, n, "B", b)
	mustConnect(t, n, a.out, b.in)
	owner := data.NewFrom(&testRep{}, data.Options{Registry: repr.NewRegistry()})
	if err := a.out.SetData(owner); err != nil {
		t.Fatalf("SetData: %v", err)
	}

	if err := n.RemoveProcessor("A"); err != nil {
		t.Fatalf("RemoveProcessor: %v", err)
	}
	if a.in.Node() != nil || a.out.Node() != nil {
		t.Error("ports still bound to the removed processor")
	}

	// A removed node no longer raises evaluation requests.
	requests := 0
	n.OnEvaluationRequest(func() { requests++ })
	na.Invalidate()
	if _, err := owner.Editable(ctx, repr.RAM); err != nil {
		t.Fatalf("Editable: %v", err)
	}
	if requests != 0 {
		t.Errorf("evaluation requests from removed processor = %d, want 0", requests)
	}
	n.OnEvaluationRequest(nil)

	mustAdd(t, n, "A", a)
	mustConnect(t, n, a.out, b.in)
	nb.Settle(nb.Generation(), Valid, nil)
	if _, err := owner.Editable(ctx, repr.RAM); err != nil {
		t.Fatalf("Editable: %v", err)
	}
	if nb.State() != Invalid {
		t.Errorf("B state after edit = %v, want invalid once A is back", nb.State())
	}
}

func TestDisconnect(t *testing.T) {
	n := New(nil)
	a, b := newStub(repr.Layer), newStub(repr.Layer)
	mustAdd(t, n, "A", a)
	mustAdd(t, n, "B", b)
	mustConnect(t, n, a.out, b.in)

	if err := n.Disconnect(a.out, b.in); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if n.IsConnected(a.out, b.in) {
		t.Error("still connected")
	}
	if err := n.Disconnect(a.out, b.in); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestTopologicalOrder(t *testing.T) {
	n := New(nil)
	src, a, b, c := newStub(repr.Layer), newStub(repr.Layer), newStub(repr.Layer), newStub(repr.Layer)
	s := &sink{in: NewMultiInport("inport", repr.Layer, 0)}
	// Insert out of dependency order on purpose.
	mustAdd(t, n, "Sink", s)
	mustAdd(t, n, "C", c)
	mustAdd(t, n, "B", b)
	mustAdd(t, n, "A", a)
	mustAdd(t, n, "Source", src)
	mustConnect(t, n, src.out, a.in)
	mustConnect(t, n, a.out, b.in)
	mustConnect(t, n, a.out, c.in)
	mustConnect(t, n, b.out, s.in)
	mustConnect(t, n, c.out, s.in)

	order, err := n.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	want := []string{"Source", "A", "C", "B", "Sink"}
	if got := ids(order); !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}

	again, _ := n.TopologicalOrder()
	if &again[0] == &order[0] {
		t.Error("cached order returned without copying")
	}
	if !slices.Equal(ids(again), want) {
		t.Errorf("cached order = %v, want %v", ids(again), want)
	}

	if got := ids(n.Sources()); !slices.Equal(got, []string{"Source"}) {
		t.Errorf("Sources = %v", got)
	}
	if got := ids(n.Sinks()); !slices.Equal(got, []string{"Sink"}) {
		t.Errorf("Sinks = %v", got)
	}
	na, _ := n.Processor("A")
	if got := ids(n.Successors(na)); !slices.Equal(got, []string{"B", "C"}) {
		t.Errorf("Successors(A) = %v", got)
	}
	ns, _ := n.Processor("Sink")
	up, err := n.Upstream(ns)
	if err != nil {
		t.Fatalf("Upstream: %v", err)
	}
	if got := ids(up); !slices.Equal(got, []string{"Source", "A", "C", "B"}) {
		t.Errorf("Upstream(Sink) = %v", got)
	}

	// A structural edit drops the cache.
	v := n.Version()
	if err := n.Disconnect(c.out, s.in); err != nil {
		t.Fatal(err)
	}
	if n.Version() == v {
		t.Error("version not bumped")
	}
	order, _ = n.TopologicalOrder()
	if got := ids(order); !slices.Equal(got, []string{"Source", "A", "C", "B", "Sink"}) {
		t.Errorf("order after disconnect = %v", got)
	}
}

func TestInvalidateDownstream_DirectOnly(t *testing.T) {
	n := New(nil)
	a, b, c, d := newStub(repr.Layer), newStub(repr.Layer), newStub(repr.Layer), newStub(repr.Layer)
	na := mustAdd(t, n, "A", a)
	nb := mustAdd(t, n, "B", b)
	nc := mustAdd(t, n, "C", c)
	nd := mustAdd(t, n, "D", d)
	mustConnect(t, n, a.out, b.in)
	mustConnect(t, n, b.out, c.in)
	for _, node := range []*Node{na, nb, nc, nd} {
		node.Settle(node.Generation(), Valid, nil)
	}

	n.InvalidateDownstream(a.out)

	want := map[*Node]State{na: Valid, nb: Invalid, nc: Valid, nd: Valid}
	for node, st := range want {
		if node.State() != st {
			t.Errorf("%s state = %v, want %v", node.ID(), node.State(), st)
		}
	}
}

func TestSetData_InvalidatesOnEdit(t *testing.T) {
	ctx := context.Background()
	reg := repr.NewRegistry()
	n := New(nil)
	a, b := newStub(repr.Layer), newStub(repr.Layer)
	mustAdd(t, n, "A", a)
	nb := mustAdd(t, n, "B", b)
	mustConnect(t, n, a.out, b.in)

	owner := data.NewFrom(&testRep{}, data.Options{Registry: reg})
	if err := a.out.SetData(owner); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if !b.in.IsReady() {
		t.Error("inport should be ready once data is published")
	}

	nb.Settle(nb.Generation(), Valid, nil)
	if _, err := owner.Editable(ctx, repr.RAM); err != nil {
		t.Fatalf("Editable: %v", err)
	}
	if nb.State() != Invalid {
		t.Errorf("state after edit = %v, want invalid", nb.State())
	}

	vol := data.New(repr.Volume, data.Options{Registry: reg})
	if err := a.out.SetData(vol); !errors.Is(err, errors.ErrCodePortTypeMismatch) {
		t.Errorf("err = %v, want PORT_TYPE_MISMATCH", err)
	}
}

func TestInport_Optional(t *testing.T) {
	p := NewInport("mask", repr.Layer).Optional()
	if !p.IsReady() {
		t.Error("unconnected optional inport should be ready")
	}
	if NewInport("x", repr.Layer).IsReady() {
		t.Error("unconnected required inport should not be ready")
	}
}

func TestLock_CoalescesRequests(t *testing.T) {
	n := New(nil)
	var requests int
	n.OnEvaluationRequest(func() { requests++ })

	mustAdd(t, n, "A", newStub(repr.Layer))
	if requests != 1 {
		t.Fatalf("requests = %d, want 1", requests)
	}

	requests = 0
	err := n.Batch(func() error {
		n.Lock()
		for i := 0; i < 5; i++ {
			mustAdd(t, n, n.UniqueID("A"), newStub(repr.Layer))
		}
		n.Unlock()
		if !n.Locked() {
			t.Error("outer batch should still hold the lock")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}

	requests = 0
	_ = n.Batch(func() error { return nil })
	if requests != 0 {
		t.Errorf("empty batch fired %d requests", requests)
	}
}

func TestSettle_DropsStaleGeneration(t *testing.T) {
	n := New(nil)
	node := mustAdd(t, n, "A", newStub(repr.Layer))
	gen := node.Generation()
	node.Invalidate()

	if node.Settle(gen, Valid, nil) {
		t.Error("Settle applied a stale generation")
	}
	if node.State() != Invalid {
		t.Errorf("state = %v, want invalid", node.State())
	}
	if !node.Settle(node.Generation(), Error, errors.New(errors.ErrCodeInternal, "boom")) {
		t.Error("Settle rejected the current generation")
	}
	if node.State() != Error || node.Err() == nil {
		t.Errorf("state = %v err = %v, want error state", node.State(), node.Err())
	}
}

type testRep struct{}

func (testRep) Kind() repr.OwnerKind  { return repr.Layer }
func (testRep) Backend() repr.Backend { return repr.RAM }
func (testRep) Release() error        { return nil }
