package graphdef

import (
	"errors"
	"fmt"
	"sort"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/catalog"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/config"
)

// Build creates a graph from a definition, instantiating nodes from c.
//
// Every problem is reported at once as an errors.Join: unknown node types,
// factory errors, explicit values for unknown ports or of the wrong type,
// and connection errors (missing endpoints, type mismatches, fan-in). The
// returned graph is not validated; call Validate before running it.
func Build(def *Definition, c *catalog.Catalog) (*nodegraph.Graph, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: definition is nil", ErrInvalidDefinition)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	g := nodegraph.NewGraph(def.Name)
	var errs []error

	for _, nd := range def.Nodes {
		params := nd.Params
		if nd.Name != "" {
			params = withName(params, nd.Name)
		}
		n, err := c.New(nd.Type, nd.ID, config.NewParams(params))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, applyValues(n, nd.Values)...)
		if err := g.AddNode(n); err != nil {
			errs = append(errs, err)
		}
	}

	for i, cd := range def.Connections {
		srcNode, srcPort, _ := SplitEndpoint(cd.From)
		dstNode, dstPort, _ := SplitEndpoint(cd.To)
		if _, ok := g.Node(srcNode); !ok && !declared(def, srcNode) {
			errs = append(errs, fmt.Errorf("connections[%d]: source %q: %w", i, srcNode, nodegraph.ErrNodeNotFound))
			continue
		}
		if _, ok := g.Node(dstNode); !ok && !declared(def, dstNode) {
			errs = append(errs, fmt.Errorf("connections[%d]: target %q: %w", i, dstNode, nodegraph.ErrNodeNotFound))
			continue
		}
		if _, err := g.Connect(srcNode, srcPort, dstNode, dstPort); err != nil {
			// Nodes that failed to build were already reported.
			if errors.Is(err, nodegraph.ErrNodeNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("connections[%d]: %w", i, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return g, nil
}

// applyValues sets explicit input values, in port order for stable errors.
func applyValues(n nodegraph.Node, values map[string]any) []error {
	ports := make([]string, 0, len(values))
	for id := range values {
		ports = append(ports, id)
	}
	sort.Strings(ports)

	var errs []error
	for _, id := range ports {
		p, ok := n.Input(id)
		if !ok {
			errs = append(errs, fmt.Errorf("node %s: value for input %q: %w", n.ID(), id, nodegraph.ErrPortNotFound))
			continue
		}
		v, err := nodegraph.ValueOf(values[id])
		if err != nil {
			errs = append(errs, fmt.Errorf("node %s: value for input %q: %w", n.ID(), id, err))
			continue
		}
		if err := p.SetValue(v); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", n.ID(), err))
		}
	}
	return errs
}

func withName(params map[string]any, name string) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	if _, ok := out["name"]; !ok {
		out["name"] = name
	}
	return out
}

func declared(def *Definition, id string) bool {
	for _, nd := range def.Nodes {
		if nd.ID == id {
			return true
		}
	}
	return false
}
