// Package network provides the processor network: processors, typed ports
// and the connections between them.
//
// # Overview
//
// A [Network] is a directed acyclic graph of [Node] values, each wrapping a
// user [Processor]. Processors declare an [Inport] for every dataset they
// read and an [Outport] for every dataset they publish. Connections always
// run from an Outport to an Inport of the same [repr.OwnerKind].
//
// # Basic Usage
//
// Create ports inside the processor, then add the processor and connect:
//
//	net := network.New(nil)
//	src, _ := net.AddProcessor("Source", source)
//	blur, _ := net.AddProcessor("Blur", blur)
//	err := net.Connect(source.Out, blur.In)
//
// [Network.Connect] checks type compatibility and fan-in, and rejects any
// connection that would close a cycle with an ErrCodeCyclicNetwork error.
// A rejected edit leaves the network untouched.
//
// # States
//
// Every node is in one of three states: [Invalid] (needs recompute, the
// initial state), [Valid], or [Error]. The evaluator moves nodes out of
// Invalid; data changes move downstream nodes back into it.
//
// # Invalidation
//
// An Outport installs itself as the change handler of the data owner it
// publishes. When the owner reports a write, the Outport calls
// [Network.InvalidateDownstream], which marks exactly the directly connected
// downstream nodes Invalid. Nothing else is touched.
//
// # Batching
//
// Every invalidation raises an evaluation request. [Network.Lock] and
// [Network.Unlock] coalesce requests raised during a batch of edits into a
// single request on the final unlock.
//
// # Concurrency
//
// Network is safe for concurrent use. Structure is guarded by a RWMutex and
// node state by a per-node mutex. Change handlers run without any network
// lock held.
package network
