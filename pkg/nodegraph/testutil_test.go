package nodegraph

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testCtx returns a context bounded so a hung scheduler fails the test
// instead of the whole package.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sourceNode emits v on output "value".
func sourceNode(id string, v int64) *BasicNode {
	return MustNode(NodeSpec{
		ID:      id,
		Outputs: []PortSpec{{Name: "value", Type: TypeInt}},
	}, func(Context, Inputs) (Outputs, error) {
		return Outputs{"value": Int(v)}, nil
	})
}

// scaleNode computes y = x*factor + offset.
func scaleNode(id string, factor, offset int64) *BasicNode {
	return MustNode(NodeSpec{
		ID:      id,
		Inputs:  []PortSpec{{Name: "x", Type: TypeInt, Required: true}},
		Outputs: []PortSpec{{Name: "y", Type: TypeInt}},
	}, func(_ Context, in Inputs) (Outputs, error) {
		x, err := in.Int("x")
		if err != nil {
			return nil, err
		}
		return Outputs{"y": Int(x*factor + offset)}, nil
	})
}

// computeNode has one int input "x" and one int output "y" and runs fn.
func computeNode(id string, fn ComputeFunc) *BasicNode {
	return MustNode(NodeSpec{
		ID:      id,
		Inputs:  []PortSpec{{Name: "x", Type: TypeInt, Required: true}},
		Outputs: []PortSpec{{Name: "y", Type: TypeInt}},
	}, fn)
}

// linearGraph builds a(5) -> b(*2) -> c(+1), which yields 11 at c.y.
func linearGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph("linear")
	require.NoError(t, g.AddNode(sourceNode("a", 5)))
	require.NoError(t, g.AddNode(scaleNode("b", 2, 0)))
	require.NoError(t, g.AddNode(scaleNode("c", 1, 1)))
	_, err := g.Connect("a", "value", "b", "x")
	require.NoError(t, err)
	_, err = g.Connect("b", "y", "c", "x")
	require.NoError(t, err)
	return g
}

// connect is Connect for tests that expect success.
func connect(t *testing.T, g *Graph, src, srcPort, dst, dstPort string) {
	t.Helper()
	_, err := g.Connect(src, srcPort, dst, dstPort)
	require.NoError(t, err)
}

// runValidated validates g and runs it with a quiet logger.
func runValidated(t *testing.T, ctx context.Context, g *Graph, opts ...RunOption) *ExecutionReport {
	t.Helper()
	require.NoError(t, g.Validate())
	report, err := g.Run(ctx, append([]RunOption{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

func outputInt(t *testing.T, report *ExecutionReport, nodeID, port string) int64 {
	t.Helper()
	res, ok := report.Result(nodeID)
	require.True(t, ok, "no result for %s", nodeID)
	v, ok := res.Output(port)
	require.True(t, ok, "no output %s.%s", nodeID, port)
	i, ok := v.AsInt()
	require.True(t, ok, "output %s.%s is %s", nodeID, port, v.Type())
	return i
}
