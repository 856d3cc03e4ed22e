package nodegraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	g := linearGraph(t)
	require.NoError(t, g.Validate())
	assert.True(t, g.IsValidated())
	for _, n := range g.Nodes() {
		assert.Equal(t, StateValidated, n.State())
	}
}

func TestValidate_EmptyGraph(t *testing.T) {
	g := NewGraph("empty")
	require.NoError(t, g.Validate())

	report, err := g.Run(testCtx(t), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Empty(t, report.Results)
	assert.Empty(t, report.Layers)
}

func TestValidate_Cycle(t *testing.T) {
	g := NewGraph("cyclic")
	require.NoError(t, g.AddNode(scaleNode("a", 1, 0)))
	require.NoError(t, g.AddNode(scaleNode("b", 1, 0)))
	require.NoError(t, g.AddNode(scaleNode("c", 1, 0)))
	connect(t, g, "a", "y", "b", "x")
	connect(t, g, "b", "y", "c", "x")
	connect(t, g, "c", "y", "a", "x")

	err := g.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCyclicGraph))
	assert.False(t, g.IsValidated())

	var cyc *CycleError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cyc.NodeIDs)
	assert.Contains(t, err.Error(), "a -> b -> c -> a")

	_, err = g.Layers()
	assert.True(t, errors.Is(err, ErrCyclicGraph))
}

func TestValidate_TwoNodeCycle(t *testing.T) {
	g := NewGraph("cyclic")
	require.NoError(t, g.AddNode(sourceNode("src", 1)))
	require.NoError(t, g.AddNode(scaleNode("a", 1, 0)))
	require.NoError(t, g.AddNode(MustNode(NodeSpec{
		ID:      "b",
		Inputs:  []PortSpec{{Name: "x", Type: TypeInt}, {Name: "z", Type: TypeInt}},
		Outputs: []PortSpec{{Name: "y", Type: TypeInt}},
	}, func(Context, Inputs) (Outputs, error) { return nil, nil })))
	connect(t, g, "src", "value", "b", "z")
	connect(t, g, "a", "y", "b", "x")
	connect(t, g, "b", "y", "a", "x")

	var cyc *CycleError
	require.ErrorAs(t, g.Validate(), &cyc)
	assert.Equal(t, []string{"b", "a", "b"}, cyc.NodeIDs, "found while walking from src")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	g := NewGraph("bad")
	require.NoError(t, g.AddNode(scaleNode("lonely", 1, 0)))
	require.NoError(t, g.AddNode(scaleNode("alone", 1, 0)))

	err := g.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))

	var joined interface{ Unwrap() []error }
	require.ErrorAs(t, err, &joined)
	errs := joined.Unwrap()
	require.Len(t, errs, 2)

	var first *ValidationError
	require.ErrorAs(t, errs[0], &first)
	assert.Equal(t, "lonely", first.NodeID)
	assert.Contains(t, first.Problems[0], `required input "x"`)
	var second *ValidationError
	require.ErrorAs(t, errs[1], &second)
	assert.Equal(t, "alone", second.NodeID)
}

func TestValidate_ExplicitValueOrDefaultSatisfiesRequired(t *testing.T) {
	def := Int(10)
	g := NewGraph("g")
	withDefault := MustNode(NodeSpec{
		ID:      "d",
		Inputs:  []PortSpec{{Name: "x", Type: TypeInt, Required: true, Default: &def}},
		Outputs: []PortSpec{{Name: "y", Type: TypeInt}},
	}, func(_ Context, in Inputs) (Outputs, error) {
		x, err := in.Int("x")
		return Outputs{"y": Int(x)}, err
	})
	explicit := scaleNode("e", 1, 0)
	in, _ := explicit.Input("x")
	require.NoError(t, in.SetValue(Int(4)))

	require.NoError(t, g.AddNode(withDefault))
	require.NoError(t, g.AddNode(explicit))

	report := runValidated(t, testCtx(t), g)
	assert.True(t, report.Success)
	assert.Equal(t, int64(10), outputInt(t, report, "d", "y"))
	assert.Equal(t, int64(4), outputInt(t, report, "e", "y"))
}

func TestLayers(t *testing.T) {
	// src feeds a and b, which both feed c; d stands alone.
	g := NewGraph("diamond")
	require.NoError(t, g.AddNode(sourceNode("src", 1)))
	require.NoError(t, g.AddNode(scaleNode("b", 1, 0)))
	require.NoError(t, g.AddNode(scaleNode("a", 1, 0)))
	require.NoError(t, g.AddNode(MustNode(NodeSpec{
		ID:      "c",
		Inputs:  []PortSpec{{Name: "l", Type: TypeInt, Required: true}, {Name: "r", Type: TypeInt, Required: true}},
		Outputs: []PortSpec{{Name: "y", Type: TypeInt}},
	}, func(_ Context, in Inputs) (Outputs, error) {
		l, _ := in.Int("l")
		r, _ := in.Int("r")
		return Outputs{"y": Int(l + r)}, nil
	})))
	require.NoError(t, g.AddNode(sourceNode("d", 1)))
	connect(t, g, "src", "value", "a", "x")
	connect(t, g, "src", "value", "b", "x")
	connect(t, g, "a", "y", "c", "l")
	connect(t, g, "b", "y", "c", "r")

	layers, err := g.Layers()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"d", "src"}, {"a", "b"}, {"c"}}, layers)
}
