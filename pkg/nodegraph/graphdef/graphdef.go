// Package graphdef loads declarative graph definitions from YAML or JSON
// and builds them into runnable graphs using a node catalog.
//
// A definition looks like:
//
//	name: pipeline
//	nodes:
//	  - id: a
//	    type: constant
//	    params: {value: 5}
//	  - id: b
//	    type: math.scale
//	    params: {factor: 2}
//	  - id: c
//	    type: math.scale
//	    params: {offset: 1}
//	connections:
//	  - {from: a.value, to: b.x}
//	  - {from: b.y, to: c.x}
package graphdef

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/config"
)

// ErrInvalidDefinition indicates a structurally invalid definition.
var ErrInvalidDefinition = errors.New("invalid graph definition")

// Definition is a declarative graph.
type Definition struct {
	Name        string          `yaml:"name" json:"name" validate:"required"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Nodes       []NodeDef       `yaml:"nodes" json:"nodes" validate:"required,min=1,dive"`
	Connections []ConnectionDef `yaml:"connections,omitempty" json:"connections,omitempty" validate:"dive"`
}

// NodeDef declares one node instance.
type NodeDef struct {
	ID   string `yaml:"id" json:"id" validate:"required"`
	Type string `yaml:"type" json:"type" validate:"required"`
	// Name is the display name. Defaults to ID.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Params are passed to the node type's factory.
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	// Values are explicit input values keyed by input port ID.
	Values map[string]any `yaml:"values,omitempty" json:"values,omitempty"`
}

// ConnectionDef links "node.port" endpoints.
type ConnectionDef struct {
	From string `yaml:"from" json:"from" validate:"required"`
	To   string `yaml:"to" json:"to" validate:"required"`
}

// Load reads a definition file (.yaml, .yml or .json).
func Load(path string) (*Definition, error) {
	format, err := config.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return Parse(data, format)
}

// Parse decodes a definition and checks its structure.
func Parse(data []byte, format config.Format) (*Definition, error) {
	var def Definition
	if err := config.Decode(data, format, &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks the definition's structure: required fields, unique node
// IDs and well-formed connection endpoints. It does not consult a catalog.
func (d *Definition) Validate() error {
	var errs []error
	if err := getValidator().Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", trimRoot(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	seen := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			continue
		}
		if seen[n.ID] {
			errs = append(errs, fmt.Errorf("node %s: %w", n.ID, nodegraph.ErrDuplicateNode))
		}
		seen[n.ID] = true
	}
	for i, c := range d.Connections {
		for _, ep := range []string{c.From, c.To} {
			if ep == "" {
				continue
			}
			if _, _, err := SplitEndpoint(ep); err != nil {
				errs = append(errs, fmt.Errorf("connections[%d]: %w", i, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, errors.Join(errs...))
	}
	return nil
}

// SplitEndpoint splits "node.port" at the first dot.
func SplitEndpoint(ep string) (nodeID, portID string, err error) {
	nodeID, portID, ok := strings.Cut(ep, ".")
	if !ok || nodeID == "" || portID == "" {
		return "", "", fmt.Errorf("endpoint %q: want node.port", ep)
	}
	return nodeID, portID, nil
}

func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
