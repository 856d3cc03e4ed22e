package nodes

import (
	"fmt"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/catalog"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/config"
)

// constantType emits the "value" parameter on its "value" output. The
// optional "type" parameter declares the output type, e.g. "float" for a
// whole number that should flow as a float.
func constantType() catalog.Type {
	return catalog.Type{
		Name:        "constant",
		Category:    CategorySource,
		Description: "Emits a fixed value",
		Outputs:     []nodegraph.PortSpec{{Name: "value", Type: nodegraph.TypeAny}},
		Factory: func(id string, params config.Params) (nodegraph.Node, error) {
			if err := params.Require("value"); err != nil {
				return nil, err
			}
			v, err := nodegraph.ValueOf(params.Any("value", nil))
			if err != nil {
				return nil, fmt.Errorf("parameter value: %w", err)
			}
			if name := params.String("type", ""); name != "" {
				typ, err := nodegraph.ParseDataType(name)
				if err != nil {
					return nil, fmt.Errorf("parameter type: %w", err)
				}
				if v, err = nodegraph.Coerce(v, typ); err != nil {
					return nil, fmt.Errorf("parameter value: %w", err)
				}
			}

			return build(nodegraph.NodeSpec{
				ID:          id,
				Category:    CategorySource,
				Description: "Emits " + v.String(),
				Outputs:     []nodegraph.PortSpec{{Name: "value", Type: v.Type()}},
			}, params, func(nodegraph.Context, nodegraph.Inputs) (nodegraph.Outputs, error) {
				return nodegraph.Outputs{"value": v}, nil
			})
		},
	}
}
