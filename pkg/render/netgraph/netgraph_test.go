package netgraph

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/repr"
)

type stub struct {
	ports []network.Port
}

func (s *stub) Ports() []network.Port            { return s.ports }
func (s *stub) Process(ctx context.Context) error { return nil }

func buildNet(t *testing.T) *network.Network {
	t.Helper()
	net := network.New(nil)
	out := network.NewOutport("outport", repr.Layer)
	in := network.NewInport("inport", repr.Layer)
	if _, err := net.AddProcessor("Noise", &stub{ports: []network.Port{out}}); err != nil {
		t.Fatal(err)
	}
	if _, err := net.AddProcessor("Blur", &stub{ports: []network.Port{in}}); err != nil {
		t.Fatal(err)
	}
	if err := net.Connect(out, in); err != nil {
		t.Fatal(err)
	}
	return net
}

func TestToDOT(t *testing.T) {
	net := buildNet(t)
	noise, _ := net.Processor("Noise")
	noise.Settle(noise.Generation(), network.Valid, nil)

	dot := ToDOT(net, Options{Detailed: true, InFlight: []string{"Blur"}})

	for _, want := range []string{
		"digraph network {",
		`"Noise" [label="Noise\nvalid|{<out_outport> outport}", fillcolor=palegreen];`,
		`"Blur" [label="{<in_inport> inport}|Blur\ninvalid", fillcolor=lightgoldenrod1, penwidth=3, color=royalblue];`,
		`"Noise":"out_outport":e -> "Blur":"in_inport":w [label="layer"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %s\n%s", want, dot)
		}
	}
}

func TestEscape(t *testing.T) {
	if got := escape("a|b {c}"); got != `a\|b\ \{c\}` {
		t.Errorf("escape = %s", got)
	}
	if got := quote(`say "hi"`); got != `"say \"hi\""` {
		t.Errorf("quote = %s", got)
	}
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(context.Background(), ToDOT(buildNet(t), Options{}))
	if err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	if !strings.Contains(string(svg), "<svg") {
		t.Error("output is not SVG")
	}
	if !strings.Contains(string(svg), "Blur") {
		t.Error("SVG missing processor label")
	}
}
