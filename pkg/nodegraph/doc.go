/*
Package nodegraph executes dataflow graphs of typed computational nodes.

# Overview

A graph is a set of nodes, each exposing named, typed input and output
ports, linked by directed connections from an output port to an input
port. Running the graph executes every node once, in dependency order,
moving produced values along the connections. Nodes with no dependency
between them run concurrently.

The package provides:
  - Typed ports with explicit values, connection-delivered values and defaults
  - Build-time connection checks (type compatibility, one source per input)
  - Whole-graph validation reporting every problem at once
  - Layered concurrent execution with failure isolation and cancellation
  - An immutable per-run ExecutionReport
  - slog logging and OpenTelemetry metrics and tracing

# Basic Usage

	source := nodegraph.MustNode(nodegraph.NodeSpec{
	    ID:      "a",
	    Outputs: []nodegraph.PortSpec{{Name: "value", Type: nodegraph.TypeInt}},
	}, func(ctx nodegraph.Context, in nodegraph.Inputs) (nodegraph.Outputs, error) {
	    return nodegraph.Outputs{"value": nodegraph.Int(5)}, nil
	})

	double := nodegraph.MustNode(nodegraph.NodeSpec{
	    ID:      "b",
	    Inputs:  []nodegraph.PortSpec{{Name: "x", Type: nodegraph.TypeInt, Required: true}},
	    Outputs: []nodegraph.PortSpec{{Name: "y", Type: nodegraph.TypeInt}},
	}, func(ctx nodegraph.Context, in nodegraph.Inputs) (nodegraph.Outputs, error) {
	    x, err := in.Int("x")
	    if err != nil {
	        return nil, err
	    }
	    return nodegraph.Outputs{"y": nodegraph.Int(x * 2)}, nil
	})

	g := nodegraph.NewGraph("example")
	_ = g.AddNode(source)
	_ = g.AddNode(double)
	if _, err := g.Connect("a", "value", "b", "x"); err != nil {
	    log.Fatal(err)
	}
	if err := g.Validate(); err != nil {
	    log.Fatal(err)
	}
	report, err := g.Run(context.Background())
	if err != nil {
	    log.Fatal(err)
	}
	y, _ := report.Results["b"].Output("y")
	fmt.Println(y) // 10

# Value Resolution

An input port's effective value is, in priority order, the value set with
Port.SetValue, the value delivered by its incoming connection during the
current run, or its default. A required input must have one of these (or
an incoming connection) for its node to validate.

Values are tagged with a DataType. A connection or SetValue is accepted
when the types match exactly, when the receiving port is TypeAny, or for
the one declared coercion, TypeInt into TypeFloat. The value is stored
converted to the port's declared type.

# Failure Handling

A node that fails, panics or exceeds its timeout is reported as failed. Its
transitive downstream nodes are skipped; independent branches continue.
Cancelling the run's context stops new nodes from starting: nodes still
running observe the same context and report cancelled, and all nodes not
yet started are skipped. Use WithFailFast to stop starting new layers after
the first failure.

Runtime failures never escape Graph.Run as errors; they appear in the
ExecutionReport. Run itself fails only for a nil context, an unvalidated
graph or a cycle.

# Re-running

After a run the graph is no longer validated and its nodes hold the run's
outputs. Reset clears outputs and delivered values (user-set input values
and defaults survive); validate again before the next run:

	_ = g.Reset()
	if err := g.Validate(); err != nil {
	    return err
	}
	report, err = g.Run(ctx)

# Error Handling

Errors carry sentinels for errors.Is and typed details for errors.As:

	if errors.Is(err, nodegraph.ErrCyclicGraph) {
	    var cyc *nodegraph.CycleError
	    errors.As(err, &cyc)
	    log.Printf("cycle: %v", cyc.NodeIDs)
	}

# Thread Safety

Graph methods are safe for concurrent use, but mutation is rejected with
ErrInvalidState while a run is in flight. A node's ports must only be
touched by the node itself during execution; the scheduler delivers values
between layers, never while the receiving node runs.
*/
package nodegraph
