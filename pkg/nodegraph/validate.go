package nodegraph

import (
	"errors"
	"fmt"
)

// Validate checks the whole graph and reports every problem at once:
// connections that reference nodes or ports not in the graph, a dependency
// cycle (*CycleError), and each node's own validation (*ValidationError).
// The result is an errors.Join of all problems, nil when the graph is valid.
//
// On success the graph is marked validated and may be Run.
func (g *Graph) Validate() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return &StateError{Op: "validate", State: "running"}
	}
	g.validated = false

	var errs []error
	errs = append(errs, g.checkConnections()...)
	if cyc := g.findCycle(); cyc != nil {
		errs = append(errs, cyc)
	}
	for _, id := range g.order {
		if ok, problems := g.nodes[id].Validate(); !ok {
			errs = append(errs, &ValidationError{NodeID: id, Problems: problems})
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	g.validated = true
	return nil
}

// checkConnections reports connections whose endpoints are no longer the
// ports of nodes in the graph.
func (g *Graph) checkConnections() []error {
	var errs []error
	for _, c := range g.conns {
		if n, ok := g.nodes[c.SourceNodeID()]; !ok {
			errs = append(errs, fmtConnErr(c, "source node", ErrNodeNotFound))
		} else if p, ok := n.Output(c.source.id); !ok || p != c.source {
			errs = append(errs, fmtConnErr(c, "source port", ErrPortNotFound))
		}
		if n, ok := g.nodes[c.TargetNodeID()]; !ok {
			errs = append(errs, fmtConnErr(c, "target node", ErrNodeNotFound))
		} else if p, ok := n.Input(c.target.id); !ok || p != c.target {
			errs = append(errs, fmtConnErr(c, "target port", ErrPortNotFound))
		}
	}
	return errs
}

func fmtConnErr(c *Connection, what string, sentinel error) error {
	return fmt.Errorf("connection %s: %s: %w", c, what, sentinel)
}

// dfs colours for cycle detection.
const (
	white = iota
	grey
	black
)

// findCycle runs a three-colour depth-first search over the dependency
// relation and returns the first cycle found, or nil.
func (g *Graph) findCycle() *CycleError {
	adj := g.adjacency()
	colour := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		colour[id] = grey
		stack = append(stack, id)
		for _, next := range adj[id] {
			switch colour[next] {
			case grey:
				return &CycleError{NodeIDs: cyclePath(stack, next)}
			case white:
				if cyc := visit(next); cyc != nil {
					return cyc
				}
			}
		}
		stack = stack[:len(stack)-1]
		colour[id] = black
		return nil
	}

	for _, id := range g.order {
		if colour[id] == white {
			if cyc := visit(id); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

// cyclePath extracts the cycle that closes at start from the DFS stack,
// repeating start at the end.
func cyclePath(stack []string, start string) []string {
	for i, id := range stack {
		if id == start {
			path := make([]string, 0, len(stack)-i+1)
			path = append(path, stack[i:]...)
			return append(path, start)
		}
	}
	return []string{start, start}
}
