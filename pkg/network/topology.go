package network

import (
	"slices"

	"github.com/matzehuels/dataflow/pkg/errors"
)

// TopologicalOrder returns every node ordered so that each node comes after
// all of its predecessors (Kahn's algorithm). Ready nodes are taken in
// insertion order, which makes the result deterministic.
//
// The order is cached and reused until the next structural edit.
func (n *Network) TopologicalOrder() ([]*Node, error) {
	n.mu.RLock()
	if n.topoValid && n.topoVersion == n.version {
		out := slices.Clone(n.topo)
		n.mu.RUnlock()
		return out, nil
	}
	n.mu.RUnlock()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.topoValid && n.topoVersion == n.version {
		return slices.Clone(n.topo), nil
	}
	order, err := n.kahnLocked()
	if err != nil {
		return nil, err
	}
	n.topo = order
	n.topoVersion = n.version
	n.topoValid = true
	return slices.Clone(order), nil
}

func (n *Network) kahnLocked() ([]*Node, error) {
	indeg := make(map[*Node]int, len(n.order))
	for _, node := range n.order {
		indeg[node] = 0
	}
	for _, node := range n.order {
		for _, s := range n.successorsLocked(node) {
			indeg[s]++
		}
	}

	// n.order is sorted by seq, so keeping the queue sorted by seq takes
	// ready nodes in insertion order.
	var queue []*Node
	for _, node := range n.order {
		if indeg[node] == 0 {
			queue = append(queue, node)
		}
	}

	order := make([]*Node, 0, len(n.order))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		for _, s := range n.successorsLocked(node) {
			indeg[s]--
			if indeg[s] == 0 {
				i, _ := slices.BinarySearchFunc(queue, s, func(a, b *Node) int { return a.seq - b.seq })
				queue = slices.Insert(queue, i, s)
			}
		}
	}

	if len(order) != len(n.order) {
		return nil, errors.New(errors.ErrCodeCyclicNetwork,
			"network contains a cycle (%d of %d processors ordered)", len(order), len(n.order))
	}
	return order, nil
}

// reachableLocked reports whether to can be reached from from by following
// connections downstream. A node reaches itself.
func (n *Network) reachableLocked(from, to *Node) bool {
	if from == to {
		return true
	}
	seen := map[*Node]bool{from: true}
	stack := []*Node{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range n.successorsLocked(cur) {
			if s == to {
				return true
			}
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return false
}

// successorsLocked returns the distinct nodes fed by node, in connection
// order.
func (n *Network) successorsLocked(node *Node) []*Node {
	var out []*Node
	for _, p := range node.outports {
		for _, in := range p.targets {
			if !slices.Contains(out, in.Node()) {
				out = append(out, in.Node())
			}
		}
	}
	return out
}

func (n *Network) predecessorsLocked(node *Node) []*Node {
	var out []*Node
	for _, p := range node.inports {
		for _, src := range p.sources {
			if !slices.Contains(out, src.Node()) {
				out = append(out, src.Node())
			}
		}
	}
	return out
}

// Successors returns the distinct processors directly fed by node.
func (n *Network) Successors(node *Node) []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.successorsLocked(node)
}

// Predecessors returns the distinct processors directly feeding node.
func (n *Network) Predecessors(node *Node) []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.predecessorsLocked(node)
}

// Sources returns the processors with no connected inputs, in insertion
// order.
func (n *Network) Sources() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []*Node
	for _, node := range n.order {
		if len(n.predecessorsLocked(node)) == 0 {
			out = append(out, node)
		}
	}
	return out
}

// Sinks returns the processors with no outports, in insertion order.
func (n *Network) Sinks() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []*Node
	for _, node := range n.order {
		if node.IsSink() {
			out = append(out, node)
		}
	}
	return out
}

// Upstream returns every processor node transitively depends on, in
// topological order.
func (n *Network) Upstream(node *Node) ([]*Node, error) {
	order, err := n.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []*Node
	for _, cand := range order {
		if cand != node && n.reachableLocked(cand, node) {
			out = append(out, cand)
		}
	}
	return out, nil
}
