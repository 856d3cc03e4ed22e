package nodegraph

import "fmt"

// Connection is a directed data edge from an output port of one node to an
// input port of another. Connections are created by Graph.Connect, which
// checks type compatibility and fan-in before the connection exists.
type Connection struct {
	source *Port
	target *Port
}

// Source returns the upstream output port.
func (c *Connection) Source() *Port { return c.source }

// Target returns the downstream input port.
func (c *Connection) Target() *Port { return c.target }

// SourceNodeID returns the upstream node ID.
func (c *Connection) SourceNodeID() string { return c.source.nodeID }

// TargetNodeID returns the downstream node ID.
func (c *Connection) TargetNodeID() string { return c.target.nodeID }

// String returns "src.port -> dst.port".
func (c *Connection) String() string {
	return c.source.Ref() + " -> " + c.target.Ref()
}

// Propagate copies the source output's current value into the target
// input's delivered slot. The value is coerced to the target's declared
// type on store and otherwise passed through unchanged.
//
// Fails with ErrMissingValue if the source has not produced a value.
func (c *Connection) Propagate() error {
	v, ok := c.source.Value()
	if !ok {
		return fmt.Errorf("propagate %s: %w", c, ErrMissingValue)
	}
	if err := c.target.deliver(v); err != nil {
		return fmt.Errorf("propagate %s: %w", c, err)
	}
	return nil
}
