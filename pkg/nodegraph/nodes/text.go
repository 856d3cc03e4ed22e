package nodes

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/catalog"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/config"
)

// formatType joins the text form of in1..inN with "sep" (default " "),
// wrapped in optional "prefix" and "suffix". Inputs accept any type and
// are optional; missing ones are left out.
func formatType() catalog.Type {
	return catalog.Type{
		Name:        "text.format",
		Category:    CategoryText,
		Description: "Joins inputs as text",
		Inputs:      indexedPorts(2, nodegraph.TypeAny, false),
		Outputs:     []nodegraph.PortSpec{{Name: "text", Type: nodegraph.TypeString}},
		Factory: func(id string, params config.Params) (nodegraph.Node, error) {
			count := params.Int("count", 2)
			if count < 1 || count > 64 {
				return nil, fmt.Errorf("parameter count must be between 1 and 64, got %d", count)
			}
			sep := params.String("sep", " ")
			prefix := params.String("prefix", "")
			suffix := params.String("suffix", "")
			inputs := indexedPorts(int(count), nodegraph.TypeAny, false)

			return build(nodegraph.NodeSpec{
				ID:          id,
				Category:    CategoryText,
				Description: "Joins inputs as text",
				Inputs:      inputs,
				Outputs:     []nodegraph.PortSpec{{Name: "text", Type: nodegraph.TypeString}},
			}, params, func(_ nodegraph.Context, in nodegraph.Inputs) (nodegraph.Outputs, error) {
				parts := make([]string, 0, len(inputs))
				for _, p := range inputs {
					if v, err := in.Value(p.Name); err == nil {
						parts = append(parts, v.String())
					}
				}
				return nodegraph.Outputs{"text": nodegraph.String(prefix + strings.Join(parts, sep) + suffix)}, nil
			})
		},
	}
}

// placeholder matches ${name} references in text.template.
var placeholder = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// templateType expands ${in1}..${inN} references in the "template"
// parameter with the text form of the inputs. References to ports the node
// does not have are rejected when the node is built. A reference to an
// input without a value expands to "" unless "strict" is set, in which case
// the node fails.
func templateType() catalog.Type {
	return catalog.Type{
		Name:        "text.template",
		Category:    CategoryText,
		Description: "Expands ${inN} references",
		Inputs:      indexedPorts(2, nodegraph.TypeAny, false),
		Outputs:     []nodegraph.PortSpec{{Name: "text", Type: nodegraph.TypeString}},
		Factory: func(id string, params config.Params) (nodegraph.Node, error) {
			if err := params.Require("template"); err != nil {
				return nil, err
			}
			tmpl := params.String("template", "")
			count := params.Int("count", 2)
			if count < 1 || count > 64 {
				return nil, fmt.Errorf("parameter count must be between 1 and 64, got %d", count)
			}
			strict := params.Bool("strict", false)
			inputs := indexedPorts(int(count), nodegraph.TypeAny, false)

			known := make(map[string]bool, len(inputs))
			for _, p := range inputs {
				known[p.Name] = true
			}
			var unknown []string
			for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
				if !known[m[1]] {
					unknown = append(unknown, m[1])
				}
			}
			if len(unknown) > 0 {
				return nil, fmt.Errorf("parameter template references unknown inputs: %s", strings.Join(unknown, ", "))
			}

			return build(nodegraph.NodeSpec{
				ID:          id,
				Category:    CategoryText,
				Description: "Expands " + strconv.Quote(tmpl),
				Inputs:      inputs,
				Outputs:     []nodegraph.PortSpec{{Name: "text", Type: nodegraph.TypeString}},
			}, params, func(_ nodegraph.Context, in nodegraph.Inputs) (nodegraph.Outputs, error) {
				var missing []string
				text := placeholder.ReplaceAllStringFunc(tmpl, func(ref string) string {
					name := ref[2 : len(ref)-1]
					v, err := in.Value(name)
					if err != nil {
						missing = append(missing, name)
						return ""
					}
					return v.String()
				})
				if strict && len(missing) > 0 {
					return nil, fmt.Errorf("template inputs without a value: %s", strings.Join(missing, ", "))
				}
				return nodegraph.Outputs{"text": nodegraph.String(text)}, nil
			})
		},
	}
}
