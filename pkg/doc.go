// Package pkg provides the core libraries for dataflow, a multi-representation
// data cache and processor network evaluator.
//
// # Overview
//
// A dataflow program is a directed acyclic network of processors connected
// through typed ports. Data flowing between them is held by owners that keep
// the same logical dataset in several backends at once (RAM, compute
// buffers, GPU memory, disk) and convert lazily between them. The pkg
// directory is organized into four main areas:
//
//  1. Data - [repr], [data] and the [backend] packages
//  2. Networks - [network] and [evaluator]
//  3. Infrastructure - [cache], [workerpool], [ctxthread], [config]
//  4. Observability - [observability], [metrics] and [render/netgraph]
//
// # Architecture
//
// The typical data flow through dataflow:
//
//	Pipeline file (TOML/YAML)
//	         ↓
//	    [config] package (load and validate)
//	         ↓
//	    [processors] package (build the network)
//	         ↓
//	    [evaluator] package (topological passes, background tasks)
//	         ↓
//	    [data] owners converting through the [repr] registry
//
// # Quick Start
//
// Register the converters, build a network and evaluate it:
//
//	reg := repr.NewRegistry()
//	if err := backend.Register(reg, backend.Deps{}); err != nil {
//	    return err
//	}
//	env := processors.Env{Data: data.Options{Registry: reg}}
//
//	net := network.New(logger)
//	noise, _ := processors.NewNoise(env, 64, 64, ram.FormatGray8, 1)
//	inv := processors.NewInvert(env)
//	net.AddProcessor("Noise", noise)
//	net.AddProcessor("Invert", inv)
//	net.Connect(noise.Out, inv.In)
//
//	ev, _ := evaluator.New(net, evaluator.Options{Logger: logger})
//	defer ev.Close()
//	res, err := ev.Evaluate(ctx)
//
// # Main Packages
//
// ## Data
//
// [repr] - Owner kinds, backends and the converter registry. Conversion
// paths are resolved with Dijkstra's algorithm over one graph per kind.
//
// [data] - Owners holding one dataset in many representations. Reads are
// memoized; editable access makes one representation authoritative and
// marks the rest stale.
//
// [backend] - Registers every backend's converters. Subpackages implement
// the representations: [backend/ram], [backend/compute], [backend/gpu] and
// [backend/disk].
//
// ## Networks
//
// [network] - Processors, typed ports and connections. Connecting rejects
// type mismatches, fan-in overflow and cycles, leaving the graph unchanged.
//
// [evaluator] - Brings a network up to date in topological order, runs
// background tasks on a bounded pool and re-evaluates on request.
//
// [processors] - Stock processors (noise, filters, blur, histogram,
// heightfield and sinks) plus the pipeline builder.
//
// ## Infrastructure
//
// [cache] - Blob stores behind the disk backend: file, Redis and null.
//
// [workerpool] - Bounded goroutine pool with cancelable handles.
//
// [ctxthread] - The single goroutine that owns the GPU context.
//
// [config] - TOML and YAML settings and pipeline files.
//
// ## Observability
//
// [observability] - Hook interfaces injected into owners, evaluators and
// caches.
//
// [metrics] - Prometheus implementation of the hooks.
//
// [render/netgraph] - Graphviz DOT and SVG drawings of a network.
package pkg
