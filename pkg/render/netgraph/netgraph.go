// Package netgraph renders a processor network as a Graphviz diagram.
//
// Each processor becomes a record node listing its inports on the left and
// its outports on the right, filled by state. Connections are drawn from
// outport to inport and labeled with the data kind.
//
//	dot := netgraph.ToDOT(net, netgraph.Options{InFlight: ev.InFlight()})
//	svg, err := netgraph.RenderSVG(ctx, dot)
package netgraph

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/dataflow/pkg/network"
)

// Options configures diagram generation.
type Options struct {
	// Detailed adds the state and progress to every node label.
	Detailed bool

	// InFlight lists processors with a running background task. They are
	// outlined in bold.
	InFlight []string
}

// Fill colors per state.
var stateColors = map[network.State]string{
	network.Invalid: "lightgoldenrod1",
	network.Valid:   "palegreen",
	network.Error:   "lightcoral",
}

// ToDOT converts a network to Graphviz DOT source.
func ToDOT(net *network.Network, opts Options) string {
	inflight := make(map[string]bool, len(opts.InFlight))
	for _, id := range opts.InFlight {
		inflight[id] = true
	}

	var buf bytes.Buffer
	buf.WriteString("digraph network {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=record, style=\"rounded,filled\", fontname=\"Helvetica\", fontsize=12];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=9, color=gray40];\n")
	buf.WriteString("\n")

	for _, n := range net.Processors() {
		attrs := []string{
			"label=" + quote(recordLabel(n, opts.Detailed)),
			fmt.Sprintf("fillcolor=%s", stateColors[n.State()]),
		}
		if inflight[n.ID()] {
			attrs = append(attrs, "penwidth=3", "color=royalblue")
		}
		if err := n.Err(); err != nil {
			attrs = append(attrs, "tooltip="+quote(err.Error()))
		}
		fmt.Fprintf(&buf, "  %s [%s];\n", quote(n.ID()), strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, c := range net.Connections() {
		fmt.Fprintf(&buf, "  %s:%s:e -> %s:%s:w [label=%s];\n",
			quote(c.Out.Node().ID()), quote("out_"+c.Out.Identifier()),
			quote(c.In.Node().ID()), quote("in_"+c.In.Identifier()),
			quote(c.Out.Kind().String()))
	}

	buf.WriteString("}\n")
	return buf.String()
}

// recordLabel builds "{ inports | title | outports }".
func recordLabel(n *network.Node, detailed bool) string {
	title := escape(n.ID())
	if detailed {
		title += `\n` + n.State().String()
		if p := n.Progress(); p > 0 && p < 1 {
			title += fmt.Sprintf(" %d%%", int(p*100))
		}
	}

	parts := make([]string, 0, 3)
	if ins := n.Inports(); len(ins) > 0 {
		fields := make([]string, len(ins))
		for i, p := range ins {
			fields[i] = fmt.Sprintf("<in_%s> %s", p.Identifier(), escape(p.Identifier()))
		}
		parts = append(parts, "{"+strings.Join(fields, "|")+"}")
	}
	parts = append(parts, title)
	if outs := n.Outports(); len(outs) > 0 {
		fields := make([]string, len(outs))
		for i, p := range outs {
			fields[i] = fmt.Sprintf("<out_%s> %s", p.Identifier(), escape(p.Identifier()))
		}
		parts = append(parts, "{"+strings.Join(fields, "|")+"}")
	}
	return strings.Join(parts, "|")
}

var recordEscaper = strings.NewReplacer(
	`{`, `\{`, `}`, `\}`, `|`, `\|`, `<`, `\<`, `>`, `\>`, ` `, `\ `,
)

func escape(s string) string { return recordEscaper.Replace(s) }

// quote makes a DOT string. Backslashes pass through so label escapes such
// as \n and \{ keep their meaning.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// RenderSVG renders DOT source to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
