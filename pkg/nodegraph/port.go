package nodegraph

import "fmt"

// Direction is the data flow direction of a port.
type Direction int

const (
	// Input ports receive values from upstream connections, explicit values or defaults.
	Input Direction = iota
	// Output ports are written only by their owning node during execution.
	Output
)

// String returns "input" or "output".
func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// PortSpec declares a port on a node.
type PortSpec struct {
	// ID is unique within the node. Defaults to Name when empty.
	ID string
	// Name is the display name and the key used in node outputs.
	Name string
	// Type is the declared data type.
	Type DataType
	// Required marks an input that must have an effective value for the node to validate.
	Required bool
	// Default is the value used when nothing else is available. Inputs only.
	Default *Value
}

// Port is a typed data slot on a node.
//
// Ports are pure data holders. They are owned by their node; the only
// writer from outside the node is Connection.Propagate, which the scheduler
// calls only while the owning node is not running.
type Port struct {
	nodeID    string
	id        string
	name      string
	typ       DataType
	dir       Direction
	required  bool
	connected bool

	explicit  Value
	delivered Value
	def       Value
}

func newPort(nodeID string, spec PortSpec, dir Direction) (*Port, error) {
	id := spec.ID
	if id == "" {
		id = spec.Name
	}
	if id == "" {
		return nil, fmt.Errorf("node %s: %s port needs an ID or name", nodeID, dir)
	}
	name := spec.Name
	if name == "" {
		name = id
	}
	if spec.Type == TypeInvalid {
		return nil, fmt.Errorf("node %s: port %s has no data type", nodeID, id)
	}

	p := &Port{
		nodeID:   nodeID,
		id:       id,
		name:     name,
		typ:      spec.Type,
		dir:      dir,
		required: spec.Required,
	}
	if spec.Default != nil {
		if dir == Output {
			return nil, fmt.Errorf("node %s: output port %s cannot have a default", nodeID, id)
		}
		if err := p.SetDefault(*spec.Default); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ID returns the port identifier, unique within its node.
func (p *Port) ID() string { return p.id }

// Name returns the port name.
func (p *Port) Name() string { return p.name }

// NodeID returns the owning node's identifier.
func (p *Port) NodeID() string { return p.nodeID }

// Type returns the declared data type.
func (p *Port) Type() DataType { return p.typ }

// Direction returns Input or Output.
func (p *Port) Direction() Direction { return p.dir }

// Required reports whether an input must have an effective value.
func (p *Port) Required() bool { return p.required }

// IsConnected reports whether the port participates in a connection.
func (p *Port) IsConnected() bool { return p.connected }

// Ref returns "node.port" for messages.
func (p *Port) Ref() string { return p.nodeID + "." + p.id }

// SetValue stores an explicit value on an input port. The explicit value
// takes priority over connection-delivered values and defaults.
//
// Fails with ErrOutputPort on an output port, and with a *TypeMismatchError
// if v is not compatible with the declared type.
func (p *Port) SetValue(v Value) error {
	if p.dir == Output {
		return fmt.Errorf("port %s: %w", p.Ref(), ErrOutputPort)
	}
	return p.setValue(v)
}

// setValue stores v without the direction check. The owning node uses it
// to record produced outputs.
func (p *Port) setValue(v Value) error {
	stored, err := p.coerce(v)
	if err != nil {
		return err
	}
	p.explicit = stored
	return nil
}

// ClearValue removes the explicit value.
func (p *Port) ClearValue() {
	p.explicit = Value{}
}

// Value returns the explicit value, if set.
func (p *Port) Value() (Value, bool) {
	return p.explicit, p.explicit.IsValid()
}

// SetDefault sets the fallback value of an input port.
func (p *Port) SetDefault(v Value) error {
	if p.dir == Output {
		return fmt.Errorf("port %s: output ports have no default", p.Ref())
	}
	stored, err := p.coerce(v)
	if err != nil {
		return err
	}
	p.def = stored
	return nil
}

// Default returns the default value, if any.
func (p *Port) Default() (Value, bool) {
	return p.def, p.def.IsValid()
}

// Delivered returns the value delivered by the upstream connection during
// the current run, if any.
func (p *Port) Delivered() (Value, bool) {
	return p.delivered, p.delivered.IsValid()
}

// EffectiveValue returns, in priority order, the explicit value, the
// connection-delivered value, or the default. Returns ErrMissingValue when
// none is available.
func (p *Port) EffectiveValue() (Value, error) {
	switch {
	case p.explicit.IsValid():
		return p.explicit, nil
	case p.delivered.IsValid():
		return p.delivered, nil
	case p.def.IsValid():
		return p.def, nil
	}
	return Value{}, fmt.Errorf("port %s: %w", p.Ref(), ErrMissingValue)
}

// HasEffectiveValue reports whether the port has, or will receive during a
// run, an effective value. A connected input counts because its upstream
// node delivers a value before this node executes.
func (p *Port) HasEffectiveValue() bool {
	return p.explicit.IsValid() || p.delivered.IsValid() || p.def.IsValid() ||
		(p.dir == Input && p.connected)
}

// deliver writes the connection-delivered slot.
func (p *Port) deliver(v Value) error {
	stored, err := p.coerce(v)
	if err != nil {
		return err
	}
	p.delivered = stored
	return nil
}

// reset clears run state. Input ports keep user-set explicit values and
// defaults; output ports lose their produced value.
func (p *Port) reset() {
	p.delivered = Value{}
	if p.dir == Output {
		p.explicit = Value{}
	}
}

func (p *Port) coerce(v Value) (Value, error) {
	stored, err := Coerce(v, p.typ)
	if err != nil {
		return Value{}, &TypeMismatchError{Port: p.Ref(), Want: p.typ, Got: v.Type()}
	}
	return stored, nil
}
