package evaluator

import (
	"context"
	"maps"
	"slices"
	"sync"
	"testing"

	"github.com/matzehuels/dataflow/pkg/data"
	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// value is a RAM layer holding one integer.
type value struct{ n int }

func (*value) Kind() repr.OwnerKind  { return repr.Layer }
func (*value) Backend() repr.Backend { return repr.RAM }
func (*value) Release() error        { return nil }

// trace records processor calls in order.
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (t *trace) add(id string) {
	t.mu.Lock()
	t.calls = append(t.calls, id)
	t.mu.Unlock()
}

func (t *trace) get() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.calls)
}

func (t *trace) reset() {
	t.mu.Lock()
	t.calls = nil
	t.mu.Unlock()
}

func (t *trace) count(id string) int {
	n := 0
	for _, c := range t.get() {
		if c == id {
			n++
		}
	}
	return n
}

var testOpts = data.Options{Registry: repr.NewRegistry()}

// source publishes an owner holding its current value.
type source struct {
	name  string
	tr    *trace
	out   *network.Outport
	owner *data.Owner
	start int
}

func newSource(name string, tr *trace, start int) *source {
	return &source{name: name, tr: tr, start: start, out: network.NewOutport("outport", repr.Layer)}
}

func (s *source) Ports() []network.Port { return []network.Port{s.out} }

func (s *source) Process(ctx context.Context) error {
	s.tr.add(s.name)
	if s.owner == nil {
		s.owner = data.NewFrom(&value{n: s.start}, testOpts)
	}
	return s.out.SetData(s.owner)
}

// add reads all inputs, sums them, adds delta and publishes the result.
type add struct {
	name  string
	tr    *trace
	delta int
	fail  error
	panic bool
	hook  func()
	in    *network.Inport
	out   *network.Outport
}

func newAdd(name string, tr *trace, delta int) *add {
	return &add{
		name:  name,
		tr:    tr,
		delta: delta,
		in:    network.NewMultiInport("inport", repr.Layer, 0),
		out:   network.NewOutport("outport", repr.Layer),
	}
}

func (a *add) Ports() []network.Port { return []network.Port{a.in, a.out} }

func (a *add) Process(ctx context.Context) error {
	a.tr.add(a.name)
	if a.hook != nil {
		a.hook()
	}
	if a.panic {
		panic("kaboom")
	}
	if a.fail != nil {
		return a.fail
	}
	sum, err := sumInputs(ctx, a.in)
	if err != nil {
		return err
	}
	return a.out.SetData(data.NewFrom(&value{n: sum + a.delta}, testOpts))
}

func sumInputs(ctx context.Context, in *network.Inport) (int, error) {
	sum := 0
	for _, o := range in.AllData() {
		v, err := data.As[*value](ctx, o, repr.RAM)
		if err != nil {
			return 0, err
		}
		sum += v.n
	}
	return sum, nil
}

// sink stores the sum of its inputs.
type sink struct {
	name string
	tr   *trace
	in   *network.Inport
	got  int
}

func newSink(name string, tr *trace) *sink {
	return &sink{name: name, tr: tr, in: network.NewMultiInport("inport", repr.Layer, 0)}
}

func (s *sink) Ports() []network.Port { return []network.Port{s.in} }

func (s *sink) Process(ctx context.Context) error {
	s.tr.add(s.name)
	sum, err := sumInputs(ctx, s.in)
	s.got = sum
	return err
}

func newEvaluator(t *testing.T, n *network.Network) *Evaluator {
	t.Helper()
	ev, err := New(n, Options{Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(ev.Close)
	return ev
}

func mustAdd(t *testing.T, n *network.Network, id string, p network.Processor) *network.Node {
	t.Helper()
	node, err := n.AddProcessor(id, p)
	if err != nil {
		t.Fatalf("AddProcessor(%q): %v", id, err)
	}
	return node
}

func mustConnect(t *testing.T, n *network.Network, out *network.Outport, in *network.Inport) {
	t.Helper()
	if err := n.Connect(out, in); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

type diamond struct {
	net     *network.Network
	tr      *trace
	src     *source
	a, b, c *add
	sink    *sink
}

// newDiamond builds Source -> A -> {B, C} -> Sink.
func newDiamond(t *testing.T) *diamond {
	t.Helper()
	d := &diamond{net: network.New(nil), tr: &trace{}}
	d.src = newSource("Source", d.tr, 1)
	d.a = newAdd("A", d.tr, 1)
	d.b = newAdd("B", d.tr, 10)
	d.c = newAdd("C", d.tr, 100)
	d.sink = newSink("Sink", d.tr)

	mustAdd(t, d.net, "Source", d.src)
	mustAdd(t, d.net, "A", d.a)
	mustAdd(t, d.net, "B", d.b)
	mustAdd(t, d.net, "C", d.c)
	mustAdd(t, d.net, "Sink", d.sink)
	mustConnect(t, d.net, d.src.out, d.a.in)
	mustConnect(t, d.net, d.a.out, d.b.in)
	mustConnect(t, d.net, d.a.out, d.c.in)
	mustConnect(t, d.net, d.b.out, d.sink.in)
	mustConnect(t, d.net, d.c.out, d.sink.in)
	return d
}

func (d *diamond) states() map[string]network.State {
	out := make(map[string]network.State)
	for _, n := range d.net.Processors() {
		out[n.ID()] = n.State()
	}
	return out
}

func TestEvaluate_Diamond(t *testing.T) {
	d := newDiamond(t)
	ev := newEvaluator(t, d.net)

	res, err := ev.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []string{"Source", "A", "B", "C", "Sink"}
	if got := d.tr.get(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if res.Processed != 5 || res.Failed != 0 {
		t.Errorf("result = %+v, want 5 processed", res)
	}
	// Source 1 -> A 2 -> B 12, C 102 -> Sink 114
	if d.sink.got != 114 {
		t.Errorf("sink = %d, want 114", d.sink.got)
	}
	for id, st := range d.states() {
		if st != network.Valid {
			t.Errorf("%s state = %v, want valid", id, st)
		}
	}

	d.tr.reset()
	res, err = ev.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if calls := d.tr.get(); len(calls) != 0 {
		t.Errorf("second pass made calls %v", calls)
	}
	if res.Processed != 0 {
		t.Errorf("second pass processed %d", res.Processed)
	}
}

func TestEvaluate_PropagatesEdits(t *testing.T) {
	ctx := context.Background()
	d := newDiamond(t)
	// An independent branch Source2 -> X.
	src2, x := newSource("Source2", d.tr, 7), newAdd("X", d.tr, 1)
	mustAdd(t, d.net, "Source2", src2)
	mustAdd(t, d.net, "X", x)
	mustConnect(t, d.net, src2.out, x.in)

	ev := newEvaluator(t, d.net)
	if _, err := ev.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}

	v, err := data.EditableAs[*value](ctx, d.src.owner, repr.RAM)
	if err != nil {
		t.Fatalf("EditableAs: %v", err)
	}
	v.n = 5

	want := map[string]network.State{
		"Source":  network.Valid,
		"A":       network.Invalid,
		"B":       network.Valid,
		"C":       network.Valid,
		"Sink":    network.Valid,
		"Source2": network.Valid,
		"X":       network.Valid,
	}
	if got := d.states(); !maps.Equal(got, want) {
		t.Errorf("states after edit = %v, want %v", got, want)
	}

	d.tr.reset()
	if _, err := ev.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}
	if got := d.tr.get(); !slices.Equal(got, []string{"A", "B", "C", "Sink"}) {
		t.Errorf("calls = %v", got)
	}
	if n := d.tr.count("Source2") + d.tr.count("X"); n != 0 {
		t.Errorf("unrelated branch processed %d times, want 0", n)
	}
	// Source 5 -> A 6 -> B 16, C 106 -> Sink 122
	if d.sink.got != 122 {
		t.Errorf("sink = %d, want 122", d.sink.got)
	}
}

func TestEvaluate_ErrorIsolatesBranch(t *testing.T) {
	ctx := context.Background()
	net := network.New(nil)
	tr := &trace{}
	src := newSource("Source", tr, 1)
	bad := newAdd("Bad", tr, 0)
	bad.fail = errors.New(errors.ErrCodeInternal, "bad input")
	after := newAdd("After", tr, 0)
	good := newAdd("Good", tr, 0)

	mustAdd(t, net, "Source", src)
	nBad := mustAdd(t, net, "Bad", bad)
	nAfter := mustAdd(t, net, "After", after)
	nGood := mustAdd(t, net, "Good", good)
	mustConnect(t, net, src.out, bad.in)
	mustConnect(t, net, bad.out, after.in)
	mustConnect(t, net, src.out, good.in)

	ev := newEvaluator(t, net)
	res, err := ev.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if nBad.State() != network.Error {
		t.Errorf("Bad state = %v, want error", nBad.State())
	}
	if !errors.Is(nBad.Err(), errors.ErrCodeProcessorFailed) || !errors.Is(nBad.Err(), errors.ErrCodeInternal) {
		t.Errorf("Bad err = %v", nBad.Err())
	}
	if nAfter.State() != network.Invalid || tr.count("After") != 0 {
		t.Errorf("After ran or changed state: %v", nAfter.State())
	}
	if nGood.State() != network.Valid {
		t.Errorf("Good state = %v, want valid", nGood.State())
	}
	if res.Failed != 1 || len(res.Errors) != 1 || res.Processed != 2 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}

	// Error is not Invalid: a second pass leaves the failed branch alone.
	tr.reset()
	if _, err := ev.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}
	if calls := tr.get(); len(calls) != 0 {
		t.Errorf("second pass made calls %v", calls)
	}

	// Fixing and invalidating the processor recovers the branch.
	bad.fail = nil
	if err := net.Invalidate("Bad"); err != nil {
		t.Fatal(err)
	}
	if _, err := ev.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}
	if got := tr.get(); !slices.Equal(got, []string{"Bad", "After"}) {
		t.Errorf("calls = %v", got)
	}
	if nAfter.State() != network.Valid {
		t.Errorf("After state = %v, want valid", nAfter.State())
	}
}

func TestEvaluate_PanicBecomesError(t *testing.T) {
	net := network.New(nil)
	tr := &trace{}
	src := newSource("Source", tr, 1)
	p := newAdd("Panicky", tr, 0)
	p.panic = true
	mustAdd(t, net, "Source", src)
	node := mustAdd(t, net, "Panicky", p)
	mustConnect(t, net, src.out, p.in)

	ev := newEvaluator(t, net)
	res, err := ev.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}
	var perr *errors.ProcessorError
	if pe, ok := node.Err().(*errors.ProcessorError); ok {
		perr = pe
	}
	if perr == nil || !perr.Panic || perr.Processor != "Panicky" {
		t.Errorf("err = %#v, want panic ProcessorError", node.Err())
	}
}

func TestEvaluate_CanceledBetweenProcessors(t *testing.T) {
	d := newDiamond(t)
	ev := newEvaluator(t, d.net)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.a.hook = cancel

	res, err := ev.Evaluate(ctx)
	if !errors.Is(err, errors.ErrCodeCanceled) {
		t.Fatalf("err = %v, want CANCELED", err)
	}
	if got := d.tr.get(); !slices.Equal(got, []string{"Source", "A"}) {
		t.Errorf("calls = %v, want [Source A]", got)
	}
	if res.Processed != 2 {
		t.Errorf("processed = %d, want 2", res.Processed)
	}

	d.a.hook = nil
	d.tr.reset()
	if _, err := ev.Evaluate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := d.tr.get(); !slices.Equal(got, []string{"B", "C", "Sink"}) {
		t.Errorf("resumed calls = %v", got)
	}
}

func TestEvaluate_SourceWithoutInputIsNotReady(t *testing.T) {
	net := network.New(nil)
	tr := &trace{}
	orphan := newAdd("Orphan", tr, 0)
	node := mustAdd(t, net, "Orphan", orphan)

	ev := newEvaluator(t, net)
	res, err := ev.Evaluate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || node.State() != network.Invalid || len(tr.get()) != 0 {
		t.Errorf("result = %+v state = %v", res, node.State())
	}
}

func TestWatch_ReevaluatesOnChange(t *testing.T) {
	ctx := context.Background()
	d := newDiamond(t)
	ev := newEvaluator(t, d.net)

	ev.Watch()
	ev.Wait()
	if d.sink.got != 114 {
		t.Fatalf("sink = %d after watch pass, want 114", d.sink.got)
	}
	for _, id := range []string{"Source", "A", "B", "C", "Sink"} {
		if n := d.tr.count(id); n != 1 {
			t.Errorf("%s ran %d times, want 1", id, n)
		}
	}

	// Hold the network lock so the pass starts after the write.
	err := d.net.Batch(func() error {
		v, err := data.EditableAs[*value](ctx, d.src.owner, repr.RAM)
		if err != nil {
			return err
		}
		v.n = 5
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	ev.Wait()

	if d.sink.got != 122 {
		t.Errorf("sink = %d after edit, want 122", d.sink.got)
	}
	if n := d.tr.count("Source"); n != 1 {
		t.Errorf("Source ran %d times, want 1", n)
	}
	if n := d.tr.count("A"); n != 2 {
		t.Errorf("A ran %d times, want 2", n)
	}
	if err = ev.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}

	ev.Unwatch()
	_ = d.net.Invalidate("Sink")
	ev.Wait()
	if n := d.tr.count("Sink"); n != 2 {
		t.Errorf("Sink ran %d times after Unwatch, want 2", n)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Options{}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("nil network: err = %v", err)
	}
	if _, err := New(network.New(nil), Options{Workers: -1}); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("negative workers: err = %v", err)
	}
}
