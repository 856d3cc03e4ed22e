package nodes

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/catalog"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/config"
)

// ErrDivideByZero is returned by math.divide when b is zero.
var ErrDivideByZero = errors.New("division by zero")

var binaryPorts = struct {
	in  []nodegraph.PortSpec
	out []nodegraph.PortSpec
}{
	in: []nodegraph.PortSpec{
		{Name: "a", Type: nodegraph.TypeFloat, Required: true},
		{Name: "b", Type: nodegraph.TypeFloat, Required: true},
	},
	out: []nodegraph.PortSpec{{Name: "result", Type: nodegraph.TypeFloat}},
}

type binaryOp func(a, b float64) (float64, error)

// arithmeticType builds a two-operand float node. Parameters "a" and "b"
// set operand defaults, used when the port is neither connected nor set.
func arithmeticType(name, desc string, op binaryOp) catalog.Type {
	return binaryType(name, desc, op, nil)
}

func divideType() catalog.Type {
	check := func(in nodegraph.Inputs) []string {
		if b, err := in.Float("b"); err == nil && b == 0 {
			return []string{"b must not be zero"}
		}
		return nil
	}
	return binaryType("math.divide", "a / b", func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	}, check)
}

func binaryType(name, desc string, op binaryOp, check nodegraph.CheckFunc) catalog.Type {
	return catalog.Type{
		Name:        name,
		Category:    CategoryMath,
		Description: desc,
		Inputs:      binaryPorts.in,
		Outputs:     binaryPorts.out,
		Factory: func(id string, params config.Params) (nodegraph.Node, error) {
			inputs := make([]nodegraph.PortSpec, len(binaryPorts.in))
			copy(inputs, binaryPorts.in)
			for i := range inputs {
				def, err := numberDefault(params, inputs[i].Name)
				if err != nil {
					return nil, err
				}
				inputs[i].Default = def
			}

			return build(nodegraph.NodeSpec{
				ID:          id,
				Category:    CategoryMath,
				Description: desc,
				Inputs:      inputs,
				Outputs:     binaryPorts.out,
				Check:       check,
			}, params, func(_ nodegraph.Context, in nodegraph.Inputs) (nodegraph.Outputs, error) {
				a, err := in.Float("a")
				if err != nil {
					return nil, err
				}
				b, err := in.Float("b")
				if err != nil {
					return nil, err
				}
				r, err := op(a, b)
				if err != nil {
					return nil, err
				}
				return nodegraph.Outputs{"result": nodegraph.Float(r)}, nil
			})
		},
	}
}

// scaleType multiplies an integer input by the integer "factor" parameter.
func scaleType() catalog.Type {
	return catalog.Type{
		Name:        "math.scale",
		Category:    CategoryMath,
		Description: "x * factor",
		Inputs:      []nodegraph.PortSpec{{Name: "x", Type: nodegraph.TypeInt, Required: true}},
		Outputs:     []nodegraph.PortSpec{{Name: "y", Type: nodegraph.TypeInt}},
		Factory: func(id string, params config.Params) (nodegraph.Node, error) {
			if params.Has("factor") && !isInt(params.Any("factor", nil)) {
				return nil, fmt.Errorf("parameter factor must be an integer")
			}
			factor := params.Int("factor", 1)
			offset := params.Int("offset", 0)

			return build(nodegraph.NodeSpec{
				ID:          id,
				Category:    CategoryMath,
				Description: fmt.Sprintf("x * %d + %d", factor, offset),
				Inputs:      []nodegraph.PortSpec{{Name: "x", Type: nodegraph.TypeInt, Required: true}},
				Outputs:     []nodegraph.PortSpec{{Name: "y", Type: nodegraph.TypeInt}},
			}, params, func(_ nodegraph.Context, in nodegraph.Inputs) (nodegraph.Outputs, error) {
				x, err := in.Int("x")
				if err != nil {
					return nil, err
				}
				return nodegraph.Outputs{"y": nodegraph.Int(x*factor + offset)}, nil
			})
		},
	}
}

// sumType adds "count" float inputs named in1..inN. It is the explicit
// aggregator for many-to-one data flow, since each input port accepts a
// single connection.
func sumType() catalog.Type {
	return catalog.Type{
		Name:        "sum",
		Category:    CategoryMath,
		Description: "Adds in1..inN (count parameter, default 2)",
		Inputs:      indexedPorts(2, nodegraph.TypeFloat, true),
		Outputs:     []nodegraph.PortSpec{{Name: "sum", Type: nodegraph.TypeFloat}},
		Factory: func(id string, params config.Params) (nodegraph.Node, error) {
			count := params.Int("count", 2)
			if count < 1 || count > 64 {
				return nil, fmt.Errorf("parameter count must be between 1 and 64, got %d", count)
			}
			inputs := indexedPorts(int(count), nodegraph.TypeFloat, true)

			return build(nodegraph.NodeSpec{
				ID:          id,
				Category:    CategoryMath,
				Description: fmt.Sprintf("Adds %d inputs", count),
				Inputs:      inputs,
				Outputs:     []nodegraph.PortSpec{{Name: "sum", Type: nodegraph.TypeFloat}},
			}, params, func(_ nodegraph.Context, in nodegraph.Inputs) (nodegraph.Outputs, error) {
				var total float64
				for _, p := range inputs {
					f, err := in.Float(p.Name)
					if err != nil {
						return nil, err
					}
					total += f
				}
				return nodegraph.Outputs{"sum": nodegraph.Float(total)}, nil
			})
		},
	}
}

func indexedPorts(count int, typ nodegraph.DataType, required bool) []nodegraph.PortSpec {
	ports := make([]nodegraph.PortSpec, count)
	for i := range ports {
		ports[i] = nodegraph.PortSpec{Name: fmt.Sprintf("in%d", i+1), Type: typ, Required: required}
	}
	return ports
}

func isInt(v any) bool {
	switch n := v.(type) {
	case int, int64, int32:
		return true
	case float64:
		return n == float64(int64(n))
	}
	return false
}
