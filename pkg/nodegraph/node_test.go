package nodegraph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph/retry"
)

func TestNewNode_RejectsBadSpecs(t *testing.T) {
	noop := func(Context, Inputs) (Outputs, error) { return nil, nil }

	_, err := NewNode(NodeSpec{}, noop)
	assert.ErrorContains(t, err, "ID cannot be empty")

	_, err = NewNode(NodeSpec{ID: "a.b"}, noop)
	assert.ErrorContains(t, err, "whitespace or dots")

	_, err = NewNode(NodeSpec{ID: "a"}, nil)
	assert.ErrorContains(t, err, "compute function")

	_, err = NewNode(NodeSpec{
		ID:      "a",
		Inputs:  []PortSpec{{Name: "x", Type: TypeInt}, {Name: "x", Type: TypeInt}},
		Outputs: []PortSpec{{Name: "y"}},
	}, noop)
	assert.ErrorContains(t, err, "duplicate input port x")
	assert.ErrorContains(t, err, "no data type", "every port problem is reported")
}

func TestBasicNode_Metadata(t *testing.T) {
	n := MustNode(NodeSpec{
		ID:          "n",
		Category:    "math",
		Description: "desc",
		Inputs:      []PortSpec{{Name: "a", Type: TypeInt}, {Name: "b", Type: TypeInt}},
		Outputs:     []PortSpec{{ID: "out", Name: "result", Type: TypeInt}},
	}, func(Context, Inputs) (Outputs, error) { return nil, nil })

	assert.Equal(t, "n", n.Name(), "name defaults to ID")
	assert.Equal(t, "math", n.Category())
	assert.Equal(t, "desc", n.Description())
	require.Len(t, n.Inputs(), 2)
	assert.Equal(t, "a", n.Inputs()[0].ID())
	_, ok := n.Output("out")
	assert.True(t, ok)
	_, ok = n.Output("result")
	assert.False(t, ok, "outputs are looked up by ID")
	assert.Equal(t, StateUnvalidated, n.State())
}

func TestBasicNode_ValidateRequiredInputs(t *testing.T) {
	n := scaleNode("b", 2, 0)
	ok, problems := n.Validate()
	assert.False(t, ok)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], `required input "x"`)
	assert.Equal(t, StateUnvalidated, n.State())

	in, _ := n.Input("x")
	require.NoError(t, in.SetValue(Int(4)))
	ok, problems = n.Validate()
	assert.True(t, ok)
	assert.Empty(t, problems)
	assert.Equal(t, StateValidated, n.State())
}

func TestBasicNode_ValidateCheck(t *testing.T) {
	n := MustNode(NodeSpec{
		ID:      "div",
		Inputs:  []PortSpec{{Name: "b", Type: TypeFloat, Required: true}},
		Outputs: []PortSpec{{Name: "q", Type: TypeFloat}},
		Check: func(in Inputs) []string {
			if b, err := in.Float("b"); err == nil && b == 0 {
				return []string{"b must not be zero"}
			}
			return nil
		},
	}, func(Context, Inputs) (Outputs, error) { return nil, nil })

	in, _ := n.Input("b")
	require.NoError(t, in.SetValue(Int(0)))
	ok, problems := n.Validate()
	assert.False(t, ok)
	assert.Equal(t, []string{"b must not be zero"}, problems)
}

func TestBasicNode_ExecuteRequiresValidation(t *testing.T) {
	n := sourceNode("a", 1)
	res := n.Execute(NewContext(context.Background()))
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, ErrInvalidState))
	assert.Equal(t, 0, res.Attempts)
}

func TestBasicNode_ExecuteSuccess(t *testing.T) {
	n := scaleNode("b", 3, 1)
	in, _ := n.Input("x")
	require.NoError(t, in.SetValue(Int(2)))
	ok, _ := n.Validate()
	require.True(t, ok)

	res := n.Execute(NewContext(context.Background()))
	require.Equal(t, StatusSucceeded, res.Status, res.ErrorMessage())
	assert.Equal(t, 1, res.Attempts)
	y, _ := res.Output("y")
	assert.True(t, y.Equal(Int(7)))

	out, _ := n.Output("y")
	v, ok := out.Value()
	require.True(t, ok, "output port holds the produced value")
	assert.True(t, v.Equal(Int(7)))
	assert.Equal(t, StateCompleted, n.State())

	res = n.Execute(NewContext(context.Background()))
	assert.True(t, errors.Is(res.Err, ErrInvalidState), "a completed node cannot run again")
}

func TestBasicNode_OutputsMustMatchDeclaration(t *testing.T) {
	tests := []struct {
		name string
		out  Outputs
		want string
	}{
		{"missing", Outputs{}, `output "y" not produced`},
		{"unknown", Outputs{"y": Int(1), "z": Int(2)}, `unknown output "z"`},
		{"wrong type", Outputs{"y": String("1")}, "type mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := MustNode(NodeSpec{
				ID:      "n",
				Outputs: []PortSpec{{Name: "y", Type: TypeInt}},
			}, func(Context, Inputs) (Outputs, error) { return tt.out, nil })
			n.Validate()

			res := n.Execute(NewContext(context.Background()))
			assert.Equal(t, StatusFailed, res.Status)
			assert.ErrorContains(t, res.Err, tt.want)
			out, _ := n.Output("y")
			_, ok := out.Value()
			assert.False(t, ok, "no partial outputs")
		})
	}
}

func TestBasicNode_OutputCoercedToDeclaredType(t *testing.T) {
	n := MustNode(NodeSpec{
		ID:      "n",
		Outputs: []PortSpec{{Name: "y", Type: TypeFloat}},
	}, func(Context, Inputs) (Outputs, error) { return Outputs{"y": Int(2)}, nil })
	n.Validate()

	res := n.Execute(NewContext(context.Background()))
	require.True(t, res.Success())
	y, _ := res.Output("y")
	assert.Equal(t, TypeFloat, y.Type())
}

func TestBasicNode_ComputeError(t *testing.T) {
	boom := errors.New("boom")
	n := MustNode(NodeSpec{ID: "n"}, func(Context, Inputs) (Outputs, error) { return nil, boom })
	n.Validate()

	res := n.Execute(NewContext(context.Background()))
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, boom))
	assert.True(t, errors.Is(res.Err, ErrExecutionFailed))
	var nodeErr *NodeError
	require.ErrorAs(t, res.Err, &nodeErr)
	assert.Equal(t, "n", nodeErr.NodeID)
	assert.Equal(t, StateFailed, n.State())
}

func TestBasicNode_PanicBecomesFailure(t *testing.T) {
	n := MustNode(NodeSpec{ID: "n"}, func(Context, Inputs) (Outputs, error) { panic("kaboom") })
	n.Validate()

	res := n.Execute(NewContext(context.Background()))
	assert.Equal(t, StatusFailed, res.Status)
	var panicErr *PanicError
	require.ErrorAs(t, res.Err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

func TestBasicNode_TimeoutIsFailure(t *testing.T) {
	n := MustNode(NodeSpec{ID: "slow", Timeout: 20 * time.Millisecond}, func(ctx Context, _ Inputs) (Outputs, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	n.Validate()

	res := n.Execute(NewContext(context.Background()))
	assert.Equal(t, StatusFailed, res.Status)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, res.Err, &timeoutErr)
	assert.Equal(t, "slow", timeoutErr.NodeID)
	assert.False(t, errors.Is(res.Err, ErrCancelled))
}

func TestBasicNode_CancelledWhileRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := MustNode(NodeSpec{ID: "n"}, func(c Context, _ Inputs) (Outputs, error) {
		cancel()
		<-c.Done()
		return nil, c.Err()
	})
	n.Validate()

	res := n.Execute(NewContext(ctx))
	assert.Equal(t, StatusCancelled, res.Status)
	var cancelErr *CancellationError
	require.ErrorAs(t, res.Err, &cancelErr)
	assert.True(t, cancelErr.WasExecuting)
	assert.True(t, errors.Is(res.Err, context.Canceled))
}

func TestBasicNode_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var called atomic.Bool
	n := MustNode(NodeSpec{ID: "n"}, func(Context, Inputs) (Outputs, error) {
		called.Store(true)
		return nil, nil
	})
	n.Validate()

	res := n.Execute(NewContext(ctx))
	assert.Equal(t, StatusCancelled, res.Status)
	assert.False(t, called.Load())
	assert.True(t, errors.Is(res.Err, ErrCancelled))
}

func TestBasicNode_RetriesTransientErrors(t *testing.T) {
	var attempts []int
	policy := retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	n := MustNode(NodeSpec{
		ID:      "flaky",
		Outputs: []PortSpec{{Name: "y", Type: TypeInt}},
		Retry:   &policy,
	}, func(ctx Context, _ Inputs) (Outputs, error) {
		attempts = append(attempts, ctx.Attempt())
		if ctx.Attempt() < 3 {
			return nil, retry.Transient(errors.New("not yet"))
		}
		return Outputs{"y": Int(1)}, nil
	})
	n.Validate()

	res := n.Execute(NewContext(context.Background()))
	require.True(t, res.Success(), res.ErrorMessage())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestBasicNode_PermanentErrorsAreNotRetried(t *testing.T) {
	policy := retry.Policy{MaxAttempts: 5, InitialBackoff: time.Millisecond}
	calls := 0
	n := MustNode(NodeSpec{ID: "n", Retry: &policy}, func(Context, Inputs) (Outputs, error) {
		calls++
		return nil, errors.New("bad input")
	})
	n.Validate()

	res := n.Execute(NewContext(context.Background()))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Attempts)
}

func TestBasicNode_Reset(t *testing.T) {
	n := scaleNode("b", 2, 0)
	in, _ := n.Input("x")
	require.NoError(t, in.SetValue(Int(1)))
	n.Validate()
	require.True(t, n.Execute(NewContext(context.Background())).Success())

	ok, problems := n.Validate()
	assert.False(t, ok, "must reset before validating again")
	assert.NotEmpty(t, problems)

	n.Reset()
	n.Reset()
	assert.Equal(t, StateUnvalidated, n.State())
	out, _ := n.Output("y")
	_, has := out.Value()
	assert.False(t, has)
	v, _ := in.Value()
	assert.True(t, v.Equal(Int(1)))

	ok, _ = n.Validate()
	assert.True(t, ok)
}

func TestNodeState_String(t *testing.T) {
	assert.Equal(t, "validated", StateValidated.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", NodeState(42).String())
}
