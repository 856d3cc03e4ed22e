package nodegraph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Graph is a set of nodes and the typed connections between them.
//
// Build a graph with AddNode and Connect, call Validate, then Run. Any
// mutation clears the validated mark, and mutation is rejected with
// ErrInvalidState while a run is in flight.
//
// Example:
//
//	g := nodegraph.NewGraph("pipeline")
//	_ = g.AddNode(source)
//	_ = g.AddNode(double)
//	if _, err := g.Connect("source", "value", "double", "x"); err != nil {
//	    return err
//	}
//	if err := g.Validate(); err != nil {
//	    return err
//	}
//	report, err := g.Run(ctx)
type Graph struct {
	name string

	mu        sync.RWMutex
	nodes     map[string]Node
	order     []string
	conns     []*Connection
	validated bool
	running   bool
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{
		name:  name,
		nodes: make(map[string]Node),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// AddNode adds a node. Node IDs must be unique within the graph.
func (g *Graph) AddNode(n Node) error {
	if n == nil {
		return errors.New("nodegraph: node cannot be nil")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkMutable("add node"); err != nil {
		return err
	}
	id := n.ID()
	if id == "" {
		return errors.New("nodegraph: node ID cannot be empty")
	}
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("add node %s: %w", id, ErrDuplicateNode)
	}
	g.nodes[id] = n
	g.order = append(g.order, id)
	g.validated = false
	return nil
}

// RemoveNode removes a node and every connection touching it.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkMutable("remove node"); err != nil {
		return err
	}
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("remove node %s: %w", id, ErrNodeNotFound)
	}

	kept := g.conns[:0]
	var dropped []*Connection
	for _, c := range g.conns {
		if c.SourceNodeID() == id || c.TargetNodeID() == id {
			dropped = append(dropped, c)
			continue
		}
		kept = append(kept, c)
	}
	g.conns = kept
	for _, c := range dropped {
		g.refreshConnected(c.source)
		g.refreshConnected(c.target)
	}

	delete(g.nodes, id)
	for i, nid := range g.order {
		if nid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.validated = false
	return nil
}

// Connect links an output port of srcNode to an input port of dstNode.
//
// Fails with ErrNodeNotFound, ErrPortNotFound, ErrSelfConnection,
// ErrPortAlreadyConnected (the input already has a source) or
// ErrTypeMismatch (as *TypeMismatchError). No connection is created on failure.
func (g *Graph) Connect(srcNode, srcPort, dstNode, dstPort string) (*Connection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ref := fmt.Sprintf("%s.%s -> %s.%s", srcNode, srcPort, dstNode, dstPort)
	if err := g.checkMutable("connect"); err != nil {
		return nil, err
	}

	src, ok := g.nodes[srcNode]
	if !ok {
		return nil, fmt.Errorf("connect %s: source %q: %w", ref, srcNode, ErrNodeNotFound)
	}
	dst, ok := g.nodes[dstNode]
	if !ok {
		return nil, fmt.Errorf("connect %s: target %q: %w", ref, dstNode, ErrNodeNotFound)
	}
	if srcNode == dstNode {
		return nil, fmt.Errorf("connect %s: %w", ref, ErrSelfConnection)
	}
	out, ok := src.Output(srcPort)
	if !ok {
		return nil, fmt.Errorf("connect %s: output %q: %w", ref, srcPort, ErrPortNotFound)
	}
	in, ok := dst.Input(dstPort)
	if !ok {
		return nil, fmt.Errorf("connect %s: input %q: %w", ref, dstPort, ErrPortNotFound)
	}
	if existing := g.incoming(in); existing != nil {
		return nil, fmt.Errorf("connect %s: input already fed by %s: %w", ref, existing.source.Ref(), ErrPortAlreadyConnected)
	}
	if !Compatible(out.Type(), in.Type()) {
		return nil, &TypeMismatchError{Port: in.Ref(), Want: in.Type(), Got: out.Type()}
	}

	c := &Connection{source: out, target: in}
	g.conns = append(g.conns, c)
	out.connected = true
	in.connected = true
	g.validated = false
	return c, nil
}

// Disconnect removes the connection between the given ports.
func (g *Graph) Disconnect(srcNode, srcPort, dstNode, dstPort string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkMutable("disconnect"); err != nil {
		return err
	}
	for i, c := range g.conns {
		if c.SourceNodeID() == srcNode && c.source.id == srcPort &&
			c.TargetNodeID() == dstNode && c.target.id == dstPort {
			g.conns = append(g.conns[:i], g.conns[i+1:]...)
			g.refreshConnected(c.source)
			g.refreshConnected(c.target)
			g.validated = false
			return nil
		}
	}
	return fmt.Errorf("disconnect %s.%s -> %s.%s: %w", srcNode, srcPort, dstNode, dstPort, ErrNotConnected)
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// NodeIDs returns all node IDs in insertion order.
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Connections returns all connections in creation order.
func (g *Graph) Connections() []*Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Connection, len(g.conns))
	copy(out, g.conns)
	return out
}

// Upstream returns the sorted IDs of nodes feeding the given node.
func (g *Graph) Upstream(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]bool)
	for _, c := range g.conns {
		if c.TargetNodeID() == id {
			seen[c.SourceNodeID()] = true
		}
	}
	return sortedKeys(seen)
}

// Downstream returns the sorted IDs of nodes fed directly by the given node.
func (g *Graph) Downstream(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.adjacency()[id]
}

// DownstreamClosure returns the sorted IDs of every node reachable from the
// given nodes, excluding the starting nodes unless they are reachable from
// one another.
func (g *Graph) DownstreamClosure(ids ...string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return downstreamClosure(g.adjacency(), ids...)
}

// IsValidated reports whether the graph passed Validate since its last
// mutation, reset or run.
func (g *Graph) IsValidated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.validated
}

// Reset resets every node, clearing outputs and delivered values, and
// clears the validated mark. Call Validate again before the next Run.
func (g *Graph) Reset() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return &StateError{Op: "reset", State: "running"}
	}
	for _, id := range g.order {
		g.nodes[id].Reset()
	}
	g.validated = false
	return nil
}

func (g *Graph) checkMutable(op string) error {
	if g.running {
		return &StateError{Op: op, State: "running"}
	}
	return nil
}

// incoming returns the connection feeding an input port, if any.
func (g *Graph) incoming(in *Port) *Connection {
	for _, c := range g.conns {
		if c.target == in {
			return c
		}
	}
	return nil
}

// refreshConnected recomputes a port's connected flag after a removal.
func (g *Graph) refreshConnected(p *Port) {
	for _, c := range g.conns {
		if c.source == p || c.target == p {
			p.connected = true
			return
		}
	}
	p.connected = false
}

// adjacency maps each node ID to the sorted, de-duplicated IDs of its
// direct successors.
func (g *Graph) adjacency() map[string][]string {
	sets := make(map[string]map[string]bool, len(g.nodes))
	for _, c := range g.conns {
		src := c.SourceNodeID()
		if sets[src] == nil {
			sets[src] = make(map[string]bool)
		}
		sets[src][c.TargetNodeID()] = true
	}
	adj := make(map[string][]string, len(sets))
	for src, dsts := range sets {
		adj[src] = sortedKeys(dsts)
	}
	return adj
}

func downstreamClosure(adj map[string][]string, ids ...string) []string {
	seen := make(map[string]bool)
	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		queue = append(queue, adj[id]...)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, adj[id]...)
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
