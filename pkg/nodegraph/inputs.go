package nodegraph

import (
	"fmt"
	"sort"
)

// Inputs is a read-only view of a node's effective input values, keyed by
// input port ID. Optional inputs without a value are absent.
type Inputs struct {
	nodeID string
	values map[string]Value
}

// NewInputs builds an Inputs view from raw values. Useful when testing a
// ComputeFunc or CheckFunc directly.
func NewInputs(values map[string]Value) Inputs {
	cp := make(map[string]Value, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Inputs{values: cp}
}

// Has reports whether the input has a value.
func (in Inputs) Has(id string) bool {
	_, ok := in.values[id]
	return ok
}

// Names returns the IDs of inputs that have values, sorted.
func (in Inputs) Names() []string {
	names := make([]string, 0, len(in.values))
	for k := range in.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Value returns the raw value of an input.
func (in Inputs) Value(id string) (Value, error) {
	v, ok := in.values[id]
	if !ok {
		return Value{}, fmt.Errorf("input %q: %w", id, ErrMissingValue)
	}
	return v, nil
}

// Int returns an int input.
func (in Inputs) Int(id string) (int64, error) {
	v, err := in.Value(id)
	if err != nil {
		return 0, err
	}
	i, ok := v.AsInt()
	if !ok {
		return 0, in.mismatch(id, TypeInt, v)
	}
	return i, nil
}

// Float returns a float input. Int values are widened.
func (in Inputs) Float(id string) (float64, error) {
	v, err := in.Value(id)
	if err != nil {
		return 0, err
	}
	f, ok := v.AsFloat()
	if !ok {
		return 0, in.mismatch(id, TypeFloat, v)
	}
	return f, nil
}

// String returns a string input.
func (in Inputs) String(id string) (string, error) {
	v, err := in.Value(id)
	if err != nil {
		return "", err
	}
	s, ok := v.AsString()
	if !ok {
		return "", in.mismatch(id, TypeString, v)
	}
	return s, nil
}

// Bool returns a bool input.
func (in Inputs) Bool(id string) (bool, error) {
	v, err := in.Value(id)
	if err != nil {
		return false, err
	}
	b, ok := v.AsBool()
	if !ok {
		return false, in.mismatch(id, TypeBool, v)
	}
	return b, nil
}

// List returns a list input.
func (in Inputs) List(id string) ([]Value, error) {
	v, err := in.Value(id)
	if err != nil {
		return nil, err
	}
	items, ok := v.AsList()
	if !ok {
		return nil, in.mismatch(id, TypeList, v)
	}
	return items, nil
}

func (in Inputs) mismatch(id string, want DataType, v Value) error {
	port := id
	if in.nodeID != "" {
		port = in.nodeID + "." + id
	}
	return &TypeMismatchError{Port: port, Want: want, Got: v.Type()}
}
