package nodegraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for graph construction.
var (
	// ErrTypeMismatch indicates a value or connection incompatible with a port's declared type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrPortAlreadyConnected indicates an input port that already has an incoming connection.
	ErrPortAlreadyConnected = errors.New("port already connected")

	// ErrNodeNotFound indicates a reference to a node that is not in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrPortNotFound indicates a reference to a port the node does not declare.
	ErrPortNotFound = errors.New("port not found")

	// ErrDuplicateNode indicates a node ID that is already used in the graph.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrSelfConnection indicates a connection from a node to itself.
	ErrSelfConnection = errors.New("node cannot connect to itself")

	// ErrNotConnected indicates Disconnect was asked to remove a connection that does not exist.
	ErrNotConnected = errors.New("ports not connected")
)

// Sentinel errors for validation.
var (
	// ErrCyclicGraph indicates the node dependency relation contains a cycle.
	ErrCyclicGraph = errors.New("graph contains a cycle")

	// ErrValidationFailed indicates a node failed its own validation.
	ErrValidationFailed = errors.New("node validation failed")

	// ErrMissingValue indicates a port has no explicit, delivered or default value.
	ErrMissingValue = errors.New("missing value")

	// ErrOutputPort indicates a host tried to write a node's output port.
	ErrOutputPort = errors.New("output ports are written only by their node")
)

// Sentinel errors for execution.
var (
	// ErrInvalidState indicates an operation invoked outside its allowed lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrExecutionFailed indicates a node computation returned an error or panicked.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrCancelled indicates execution stopped because the run was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")
)

// TypeMismatchError describes a port type incompatibility.
type TypeMismatchError struct {
	// Port identifies the port, usually "node.port".
	Port string
	// Want is the declared type of the receiving port.
	Want DataType
	// Got is the type that was offered.
	Got DataType
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("type mismatch: cannot use %s as %s", e.Got, e.Want)
	}
	return fmt.Sprintf("type mismatch at %s: cannot use %s as %s", e.Port, e.Got, e.Want)
}

// Unwrap returns ErrTypeMismatch for errors.Is support.
func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// CycleError reports the nodes that form a dependency cycle.
type CycleError struct {
	// NodeIDs lists the cycle in traversal order. The first node is repeated
	// at the end to close the loop.
	NodeIDs []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("graph contains a cycle: %s", strings.Join(e.NodeIDs, " -> "))
}

// Unwrap returns ErrCyclicGraph for errors.Is support.
func (e *CycleError) Unwrap() error {
	return ErrCyclicGraph
}

// ValidationError lists every problem found on a single node.
type ValidationError struct {
	NodeID   string
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("node %s invalid: %s", e.NodeID, strings.Join(e.Problems, "; "))
}

// Unwrap returns ErrValidationFailed for errors.Is support.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// StateError reports an operation attempted from the wrong lifecycle state.
type StateError struct {
	// NodeID is empty for graph-level operations.
	NodeID string
	Op     string
	State  string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("graph: cannot %s while %s", e.Op, e.State)
	}
	return fmt.Sprintf("node %s: cannot %s while %s", e.NodeID, e.Op, e.State)
}

// Unwrap returns ErrInvalidState for errors.Is support.
func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// NodeError wraps an error with node context.
// It matches both ErrExecutionFailed and the underlying error.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "execute", "inputs", "outputs").
	Op string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the sentinel and the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() []error {
	return []error{ErrExecutionFailed, e.Err}
}

// PanicError captures panic information from node execution.
// It includes the stack trace for debugging.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// Unwrap returns ErrExecutionFailed for errors.Is support.
func (e *PanicError) Unwrap() error {
	return ErrExecutionFailed
}

// CancellationError records that a node stopped because the run was cancelled.
type CancellationError struct {
	// NodeID is the node that was about to execute or was executing.
	NodeID string
	// Cause is the underlying cancellation cause (context.Canceled or context.DeadlineExceeded).
	Cause error
	// WasExecuting is true if cancellation occurred during node execution.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns ErrCancelled and the cause for errors.Is/As support.
func (e *CancellationError) Unwrap() []error {
	return []error{ErrCancelled, e.Cause}
}

// TimeoutError is the context cause used when a node exceeds its own timeout.
// A node timeout is a computational failure, not a cancellation of the run.
type TimeoutError struct {
	NodeID  string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("node %s exceeded timeout of %s", e.NodeID, e.Timeout)
}

func isCancelledErr(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
