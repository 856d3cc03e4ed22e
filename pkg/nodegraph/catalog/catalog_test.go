package catalog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/config"
)

// echoType builds nodes that emit the "value" parameter as an int.
func echoType(name string) Type {
	return Type{
		Name:     name,
		Category: "test",
		Outputs:  []nodegraph.PortSpec{{Name: "value", Type: nodegraph.TypeInt}},
		Factory: func(id string, params config.Params) (nodegraph.Node, error) {
			v := params.Int("value", 0)
			return nodegraph.NewNode(nodegraph.NodeSpec{
				ID:      id,
				Outputs: []nodegraph.PortSpec{{Name: "value", Type: nodegraph.TypeInt}},
			}, func(nodegraph.Context, nodegraph.Inputs) (nodegraph.Outputs, error) {
				return nodegraph.Outputs{"value": nodegraph.Int(v)}, nil
			})
		},
	}
}

func TestNew(t *testing.T) {
	c := New()
	assert.Zero(t, c.Len())
	assert.Empty(t, c.Names())
}

func TestRegisterAndGet(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(echoType("echo")))

	typ, ok := c.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "test", typ.Category)
	assert.True(t, c.Has("echo"))
	assert.False(t, c.Has("missing"))
}

func TestRegister_Errors(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(echoType("echo")))

	assert.ErrorIs(t, c.Register(echoType("echo")), ErrDuplicateType)
	assert.ErrorIs(t, c.Register(Type{Name: "", Factory: echoType("x").Factory}), ErrInvalidType)
	assert.ErrorIs(t, c.Register(Type{Name: "nofactory"}), ErrInvalidType)
	assert.Equal(t, 1, c.Len())
}

func TestMustRegisterPanics(t *testing.T) {
	c := New()
	c.MustRegister(echoType("echo"))
	assert.Panics(t, func() { c.MustRegister(echoType("echo")) })
}

func TestNamesAndTypesSorted(t *testing.T) {
	c := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		c.MustRegister(echoType(name))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, c.Names())

	types := c.Types()
	require.Len(t, types, 3)
	assert.Equal(t, "alpha", types[0].Name)
	assert.Equal(t, "zeta", types[2].Name)
}

func TestCatalogNew(t *testing.T) {
	c := New()
	c.MustRegister(echoType("echo"))

	n, err := c.New("echo", "e1", config.NewParams(map[string]any{"value": 7}))
	require.NoError(t, err)
	assert.Equal(t, "e1", n.ID())

	g := nodegraph.NewGraph("catalog")
	require.NoError(t, g.AddNode(n))
	require.NoError(t, g.Validate())
	report, err := g.Run(t.Context())
	require.NoError(t, err)
	res, ok := report.Result("e1")
	require.True(t, ok)
	v, _ := res.Output("value")
	assert.Equal(t, nodegraph.Int(7), v)
}

func TestCatalogNew_Errors(t *testing.T) {
	c := New()
	c.MustRegister(echoType("echo"))
	c.MustRegister(Type{Name: "broken", Factory: func(string, config.Params) (nodegraph.Node, error) {
		return nil, fmt.Errorf("bad params")
	}})
	c.MustRegister(Type{Name: "nil", Factory: func(string, config.Params) (nodegraph.Node, error) {
		return nil, nil
	}})
	c.MustRegister(Type{Name: "wrongid", Factory: func(_ string, p config.Params) (nodegraph.Node, error) {
		return echoType("x").Factory("other", p)
	}})

	_, err := c.New("nope", "n", config.NewParams(nil))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = c.New("broken", "n", config.NewParams(nil))
	assert.EqualError(t, err, "node n (broken): bad params")

	_, err = c.New("nil", "n", config.NewParams(nil))
	assert.ErrorContains(t, err, "factory returned nil")

	_, err = c.New("wrongid", "n", config.NewParams(nil))
	assert.ErrorContains(t, err, `built node with ID "other"`)
}

func TestConcurrentRegister(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Register(echoType(fmt.Sprintf("type%d", i)))
			_ = c.Names()
			_, _ = c.Get("type0")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
}
