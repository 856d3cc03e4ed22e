package nodegraph

import "sort"

// Layers partitions the nodes into dependency layers: every node's
// upstream nodes are in strictly earlier layers. Nodes within a layer are
// independent of one another and sorted by ID.
//
// Returns a *CycleError if the graph is not acyclic.
func (g *Graph) Layers() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.layers()
}

// layers computes Kahn levels. Callers hold g.mu.
func (g *Graph) layers() ([][]string, error) {
	adj := g.adjacency()

	inDegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		inDegree[id] = 0
	}
	for _, dsts := range adj {
		for _, d := range dsts {
			inDegree[d]++
		}
	}

	var current []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}
	sort.Strings(current)

	var result [][]string
	placed := 0
	for len(current) > 0 {
		result = append(result, current)
		placed += len(current)

		var next []string
		for _, id := range current {
			for _, d := range adj[id] {
				inDegree[d]--
				if inDegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		sort.Strings(next)
		current = next
	}

	if placed != len(g.nodes) {
		if cyc := g.findCycle(); cyc != nil {
			return nil, cyc
		}
		return nil, &CycleError{}
	}
	return result, nil
}
