package network

import (
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/repr"
)

// multi is a processor whose single inport accepts any number of sources.
type multi struct{ stub }

func newMulti() *multi {
	return &multi{stub{
		in:  NewMultiInport("inport", repr.Layer, 0),
		out: NewOutport("outport", repr.Layer),
	}}
}

const propNodes = 6

// connectAll adds propNodes processors and attempts one connection per
// edge spec (from = s / propNodes, to = s % propNodes). It reports false as
// soon as a rejected cycle leaves the edge set changed or an accepted edge
// breaks the topological order.
func connectAll(specs []int) bool {
	n := New(nil)
	procs := make([]*multi, propNodes)
	for i := range procs {
		procs[i] = newMulti()
		if _, err := n.AddProcessor(string(rune('A'+i)), procs[i]); err != nil {
			return false
		}
	}

	for _, s := range specs {
		from, to := procs[s/propNodes], procs[s%propNodes]
		before := n.Connections()
		err := n.Connect(from.out, to.in)
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrCodeCyclicNetwork), errors.Is(err, errors.ErrCodeDuplicateConnection):
			if !slices.Equal(before, n.Connections()) {
				return false
			}
		default:
			return false
		}
	}

	order, err := n.TopologicalOrder()
	if err != nil || len(order) != propNodes {
		return false
	}
	pos := make(map[*Node]int, len(order))
	for i, node := range order {
		pos[node] = i
	}
	for _, c := range n.Connections() {
		if pos[c.Out.Node()] >= pos[c.In.Node()] {
			return false
		}
	}
	return true
}

func TestConnect_NeverCreatesCycle(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("rejected edges leave the network unchanged and accepted ones keep it acyclic",
		prop.ForAll(connectAll, gen.SliceOf(gen.IntRange(0, propNodes*propNodes-1))))

	properties.TestingRun(t)
}
