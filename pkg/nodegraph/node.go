package nodegraph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph/retry"
)

// NodeState is the lifecycle state of a node.
//
//	Unvalidated --Validate(ok)--> Validated --Execute--> Running
//	Running --success--> Completed
//	Running --failure/cancel--> Failed
//	Completed|Failed --Reset--> Unvalidated
type NodeState int

const (
	StateUnvalidated NodeState = iota
	StateValidated
	StateRunning
	StateCompleted
	StateFailed
)

// String returns the lowercase state name.
func (s NodeState) String() string {
	switch s {
	case StateUnvalidated:
		return "unvalidated"
	case StateValidated:
		return "validated"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Node is a unit of computation with named, typed input and output ports.
//
// Implementations must only touch their own ports. All data moving between
// nodes goes through connections managed by the Graph.
type Node interface {
	ID() string
	Name() string
	Category() string
	Description() string

	// Inputs and Outputs return the ports in declaration order.
	Inputs() []*Port
	Outputs() []*Port

	// Input and Output look up a port by ID.
	Input(id string) (*Port, bool)
	Output(id string) (*Port, bool)

	State() NodeState

	// Validate checks every required input and node-specific invariant,
	// returning all violations rather than just the first.
	Validate() (bool, []string)

	// Execute runs the computation. It is only permitted from the Validated
	// state and must observe ctx for cancellation.
	Execute(ctx Context) NodeResult

	// Reset clears run state and returns the node to Unvalidated. Idempotent.
	Reset()
}

// Outputs maps output port names to produced values.
type Outputs map[string]Value

// ComputeFunc is the node-specific computation run by BasicNode.
//
// It receives effective input values and returns one value per declared
// output port. Long-running computations should poll ctx.Done().
//
// Example:
//
//	func double(ctx nodegraph.Context, in nodegraph.Inputs) (nodegraph.Outputs, error) {
//	    x, err := in.Int("x")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return nodegraph.Outputs{"y": nodegraph.Int(x * 2)}, nil
//	}
type ComputeFunc func(ctx Context, in Inputs) (Outputs, error)

// CheckFunc reports node-specific invariant violations (e.g., numeric ranges)
// given the inputs currently available. Inputs that will be delivered by a
// connection are absent at validation time, as are the defaults they shadow.
type CheckFunc func(in Inputs) []string

// NodeSpec declares a BasicNode.
type NodeSpec struct {
	ID          string
	Name        string
	Category    string
	Description string
	Inputs      []PortSpec
	Outputs     []PortSpec

	// Check adds node-specific validation. Optional.
	Check CheckFunc

	// Timeout bounds a single execution. Zero means no node-level timeout.
	// Exceeding it is a computational failure, not a cancellation.
	Timeout time.Duration

	// Retry re-runs the computation on transient errors. Nil means one attempt.
	Retry *retry.Policy
}

// BasicNode is the standard Node implementation: declared ports, lifecycle
// enforcement, panic recovery, timeouts and retries around a ComputeFunc.
type BasicNode struct {
	spec    NodeSpec
	compute ComputeFunc

	inputs   []*Port
	outputs  []*Port
	inByID   map[string]*Port
	outByID  map[string]*Port
	outByKey map[string]*Port

	mu    sync.Mutex
	state NodeState
}

// Compile-time interface check.
var _ Node = (*BasicNode)(nil)

// NewNode creates a BasicNode from a spec and compute function.
func NewNode(spec NodeSpec, compute ComputeFunc) (*BasicNode, error) {
	if spec.ID == "" {
		return nil, errors.New("nodegraph: node ID cannot be empty")
	}
	if strings.ContainsAny(spec.ID, " \t\n\r.") {
		return nil, fmt.Errorf("nodegraph: node ID %q cannot contain whitespace or dots", spec.ID)
	}
	if compute == nil {
		return nil, fmt.Errorf("nodegraph: node %s: compute function cannot be nil", spec.ID)
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}

	n := &BasicNode{
		spec:     spec,
		compute:  compute,
		inByID:   make(map[string]*Port, len(spec.Inputs)),
		outByID:  make(map[string]*Port, len(spec.Outputs)),
		outByKey: make(map[string]*Port, len(spec.Outputs)),
	}

	var errs []error
	for _, ps := range spec.Inputs {
		p, err := newPort(spec.ID, ps, Input)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := n.inByID[p.id]; dup {
			errs = append(errs, fmt.Errorf("node %s: duplicate input port %s", spec.ID, p.id))
			continue
		}
		n.inputs = append(n.inputs, p)
		n.inByID[p.id] = p
	}
	for _, ps := range spec.Outputs {
		p, err := newPort(spec.ID, ps, Output)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := n.outByID[p.id]; dup {
			errs = append(errs, fmt.Errorf("node %s: duplicate output port %s", spec.ID, p.id))
			continue
		}
		if _, dup := n.outByKey[p.name]; dup {
			errs = append(errs, fmt.Errorf("node %s: duplicate output port name %s", spec.ID, p.name))
			continue
		}
		n.outputs = append(n.outputs, p)
		n.outByID[p.id] = p
		n.outByKey[p.name] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return n, nil
}

// MustNode is like NewNode but panics on an invalid spec.
// Intended for statically declared nodes and tests.
func MustNode(spec NodeSpec, compute ComputeFunc) *BasicNode {
	n, err := NewNode(spec, compute)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *BasicNode) ID() string          { return n.spec.ID }
func (n *BasicNode) Name() string        { return n.spec.Name }
func (n *BasicNode) Category() string    { return n.spec.Category }
func (n *BasicNode) Description() string { return n.spec.Description }

// Inputs returns the input ports in declaration order.
func (n *BasicNode) Inputs() []*Port {
	out := make([]*Port, len(n.inputs))
	copy(out, n.inputs)
	return out
}

// Outputs returns the output ports in declaration order.
func (n *BasicNode) Outputs() []*Port {
	out := make([]*Port, len(n.outputs))
	copy(out, n.outputs)
	return out
}

// Input looks up an input port by ID.
func (n *BasicNode) Input(id string) (*Port, bool) {
	p, ok := n.inByID[id]
	return p, ok
}

// Output looks up an output port by ID.
func (n *BasicNode) Output(id string) (*Port, bool) {
	p, ok := n.outByID[id]
	return p, ok
}

// State returns the current lifecycle state.
func (n *BasicNode) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Validate checks required inputs and runs NodeSpec.Check.
// On success an Unvalidated node becomes Validated. Validating a node that
// is running or has already run reports a problem; Reset it first.
func (n *BasicNode) Validate() (bool, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateUnvalidated && n.state != StateValidated {
		return false, []string{fmt.Sprintf("node is %s; reset before validating", n.state)}
	}

	var problems []string
	for _, p := range n.inputs {
		if p.required && !p.HasEffectiveValue() {
			problems = append(problems, fmt.Sprintf("required input %q has no value, connection or default", p.id))
		}
	}
	if n.spec.Check != nil {
		problems = append(problems, n.spec.Check(n.availableInputs())...)
	}

	if len(problems) > 0 {
		n.state = StateUnvalidated
		return false, problems
	}
	n.state = StateValidated
	return true, nil
}

// Execute runs the compute function.
func (n *BasicNode) Execute(ctx Context) NodeResult {
	start := time.Now()

	n.mu.Lock()
	if n.state != StateValidated {
		state := n.state
		n.mu.Unlock()
		return failedResult(n.spec.ID, &StateError{NodeID: n.spec.ID, Op: "execute", State: state.String()}, 0, 0)
	}
	if err := ctx.Err(); err != nil {
		n.state = StateFailed
		n.mu.Unlock()
		var timeoutErr *TimeoutError
		if errors.As(context.Cause(ctx), &timeoutErr) {
			return failedResult(n.spec.ID, &NodeError{NodeID: n.spec.ID, Op: "execute", Err: timeoutErr}, 0, time.Since(start))
		}
		return cancelledResult(n.spec.ID, &CancellationError{NodeID: n.spec.ID, Cause: err}, 0, time.Since(start))
	}
	n.state = StateRunning
	n.mu.Unlock()

	outputs, attempts, err := n.run(ctx)
	if err == nil {
		err = n.writeOutputs(outputs)
	}
	duration := time.Since(start)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		n.state = StateFailed
		if isCancellation(ctx, err) {
			cause := ctx.Err()
			if cause == nil {
				cause = err
			}
			return cancelledResult(n.spec.ID, &CancellationError{NodeID: n.spec.ID, Cause: cause, WasExecuting: true}, attempts, duration)
		}
		return failedResult(n.spec.ID, err, attempts, duration)
	}
	n.state = StateCompleted
	return succeededResult(n.spec.ID, outputs, attempts, duration)
}

// Reset clears output values and connection-delivered values and returns
// the node to Unvalidated. User-set input values and defaults are kept.
func (n *BasicNode) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.inputs {
		p.reset()
	}
	for _, p := range n.outputs {
		p.reset()
	}
	n.state = StateUnvalidated
}

// run executes the compute function with timeout and retry handling.
func (n *BasicNode) run(ctx Context) (Outputs, int, error) {
	in, err := n.effectiveInputs()
	if err != nil {
		return nil, 0, &NodeError{NodeID: n.spec.ID, Op: "inputs", Err: err}
	}

	policy := retry.None
	if n.spec.Retry != nil {
		policy = *n.spec.Retry
	}

	var outputs Outputs
	attempts, err := retry.Do(ctx, policy, func(attempt int) error {
		var attemptErr error
		outputs, attemptErr = n.attempt(withAttempt(ctx, attempt), in)
		return attemptErr
	})
	return outputs, attempts, err
}

// attempt runs the compute function once, converting panics and timeouts.
func (n *BasicNode) attempt(ctx Context, in Inputs) (out Outputs, err error) {
	if n.spec.Timeout > 0 {
		timeoutCtx, cancel := context.WithTimeoutCause(ctx, n.spec.Timeout,
			&TimeoutError{NodeID: n.spec.ID, Timeout: n.spec.Timeout})
		defer cancel()
		ctx = withParent(ctx, timeoutCtx)
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &PanicError{
				NodeID: n.spec.ID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	out, err = n.compute(ctx, in)
	if err != nil {
		var timeoutErr *TimeoutError
		if errors.As(context.Cause(ctx), &timeoutErr) {
			err = fmt.Errorf("%w: %w", timeoutErr, err)
		}
		return nil, &NodeError{NodeID: n.spec.ID, Op: "execute", Err: err}
	}
	return out, nil
}

// writeOutputs checks that every declared output was produced with a
// compatible type, then stores the values in the output ports.
func (n *BasicNode) writeOutputs(out Outputs) error {
	var errs []error
	for name := range out {
		if _, ok := n.outByKey[name]; !ok {
			errs = append(errs, fmt.Errorf("unknown output %q", name))
		}
	}
	for _, p := range n.outputs {
		v, ok := out[p.name]
		if !ok || !v.IsValid() {
			errs = append(errs, fmt.Errorf("output %q not produced", p.name))
			continue
		}
		if err := p.setValue(v); err != nil {
			errs = append(errs, err)
			continue
		}
		out[p.name] = p.explicit
	}
	if len(errs) > 0 {
		for _, p := range n.outputs {
			p.ClearValue()
		}
		return &NodeError{NodeID: n.spec.ID, Op: "outputs", Err: errors.Join(errs...)}
	}
	return nil
}

// effectiveInputs collects every input's effective value. A required input
// without one is an error; optional inputs without one are omitted.
func (n *BasicNode) effectiveInputs() (Inputs, error) {
	values := make(map[string]Value, len(n.inputs))
	var errs []error
	for _, p := range n.inputs {
		v, err := p.EffectiveValue()
		if err != nil {
			if p.required {
				errs = append(errs, err)
			}
			continue
		}
		values[p.id] = v
	}
	if len(errs) > 0 {
		return Inputs{}, errors.Join(errs...)
	}
	return Inputs{nodeID: n.spec.ID, values: values}, nil
}

// availableInputs returns whatever effective values exist right now. A
// connected input without an explicit value is left out, since its default
// is never used once the connection delivers.
func (n *BasicNode) availableInputs() Inputs {
	values := make(map[string]Value, len(n.inputs))
	for _, p := range n.inputs {
		if _, explicit := p.Value(); p.IsConnected() && !explicit {
			if v, ok := p.Delivered(); ok {
				values[p.id] = v
			}
			continue
		}
		if v, err := p.EffectiveValue(); err == nil {
			values[p.id] = v
		}
	}
	return Inputs{nodeID: n.spec.ID, values: values}
}

// isCancellation reports whether a failure happened because the run was
// cancelled, as opposed to a node timeout or a computational error. A node
// that fails while the run is being cancelled reports Cancelled.
func isCancellation(ctx Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	var timeoutErr *TimeoutError
	if errors.As(context.Cause(ctx), &timeoutErr) || errors.As(err, &timeoutErr) {
		return false
	}
	return true
}
