// Package catalog is a thread-safe registry of node types.
//
// A node type couples a name such as "math.scale" with a port schema and a
// factory that builds node instances from per-node parameters. Graph
// definitions refer to node types by name; graphdef.Build looks them up here.
//
//	c := catalog.New()
//	nodes.Register(c)
//
//	n, err := c.New("math.scale", "double", config.NewParams(map[string]any{"factor": 2}))
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/config"
)

// Sentinel errors for catalog operations.
var (
	// ErrUnknownType indicates a node type that has not been registered.
	ErrUnknownType = errors.New("unknown node type")

	// ErrDuplicateType indicates a type name that is already registered.
	ErrDuplicateType = errors.New("node type already registered")

	// ErrInvalidType indicates a type without a name or factory.
	ErrInvalidType = errors.New("invalid node type")
)

// Factory builds a node instance with the given ID.
type Factory func(id string, params config.Params) (nodegraph.Node, error)

// Type describes a node type.
type Type struct {
	Name        string
	Category    string
	Description string

	// Inputs and Outputs document the ports built with default parameters.
	// Some types (e.g. sum) derive their ports from parameters.
	Inputs  []nodegraph.PortSpec
	Outputs []nodegraph.PortSpec

	Factory Factory
}

// Catalog is a registry of node types, safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]Type
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{types: make(map[string]Type)}
}

// Register adds a node type. Names must be unique.
func (c *Catalog) Register(t Type) error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidType)
	}
	if t.Factory == nil {
		return fmt.Errorf("%w: %s has no factory", ErrInvalidType, t.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.types[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, t.Name)
	}
	c.types[t.Name] = t
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Catalog) MustRegister(t Type) {
	if err := c.Register(t); err != nil {
		panic(err)
	}
}

// Get returns a registered type.
func (c *Catalog) Get(name string) (Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	return t, ok
}

// Has reports whether a type is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.types[name]
	return ok
}

// Names returns the registered type names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Types returns the registered types sorted by name.
func (c *Catalog) Types() []Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types := make([]Type, 0, len(c.types))
	for _, t := range c.types {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types
}

// Len returns the number of registered types.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types)
}

// New builds a node of the named type.
func (c *Catalog) New(typeName, id string, params config.Params) (nodegraph.Node, error) {
	t, ok := c.Get(typeName)
	if !ok {
		return nil, fmt.Errorf("node %s: %w: %q", id, ErrUnknownType, typeName)
	}
	n, err := t.Factory(id, params)
	if err != nil {
		return nil, fmt.Errorf("node %s (%s): %w", id, typeName, err)
	}
	if n == nil {
		return nil, fmt.Errorf("node %s (%s): factory returned nil", id, typeName)
	}
	if n.ID() != id {
		return nil, fmt.Errorf("node %s (%s): factory built node with ID %q", id, typeName, n.ID())
	}
	return n, nil
}
