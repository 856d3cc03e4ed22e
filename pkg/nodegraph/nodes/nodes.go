// Package nodes provides a small standard library of node types.
//
// Register adds every type to a catalog:
//
//	c := catalog.New()
//	nodes.Register(c)
//
// Every type accepts these common parameters besides its own:
//
//	name           display name (graph definitions fill it from the node's name)
//	timeout        bounds each execution ("500ms", or seconds as a number)
//	retries        extra attempts after a transient error (default 0)
//	retry_backoff  wait before the first retry (default 100ms)
package nodes

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/catalog"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/config"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/retry"
)

// Categories used by the standard types.
const (
	CategorySource  = "source"
	CategoryMath    = "math"
	CategoryText    = "text"
	CategoryControl = "control"
)

// Types returns the standard node types.
func Types() []catalog.Type {
	return []catalog.Type{
		constantType(),
		arithmeticType("math.add", "a + b", func(a, b float64) (float64, error) { return a + b, nil }),
		arithmeticType("math.subtract", "a - b", func(a, b float64) (float64, error) { return a - b, nil }),
		arithmeticType("math.multiply", "a * b", func(a, b float64) (float64, error) { return a * b, nil }),
		divideType(),
		scaleType(),
		sumType(),
		formatType(),
		templateType(),
		delayType(),
		failType(),
	}
}

// Register adds the standard types to c.
func Register(c *catalog.Catalog) error {
	var errs []error
	for _, t := range Types() {
		if err := c.Register(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// build fills the common parameters into spec and creates the node.
func build(spec nodegraph.NodeSpec, params config.Params, compute nodegraph.ComputeFunc) (nodegraph.Node, error) {
	spec.Name = params.String("name", spec.Name)
	spec.Timeout = params.Duration("timeout", 0)
	if spec.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative")
	}
	retries := params.Int("retries", 0)
	if retries < 0 {
		return nil, fmt.Errorf("retries must not be negative")
	}
	if retries > 0 {
		policy := retry.Default
		policy.MaxAttempts = int(retries) + 1
		policy.InitialBackoff = params.Duration("retry_backoff", policy.InitialBackoff)
		spec.Retry = &policy
	}
	return nodegraph.NewNode(spec, compute)
}

func ptr(v nodegraph.Value) *nodegraph.Value { return &v }

// numberDefault reads an optional numeric parameter as a port default.
func numberDefault(params config.Params, key string) (*nodegraph.Value, error) {
	if !params.Has(key) {
		return nil, nil
	}
	v, err := nodegraph.ValueOf(params.Any(key, nil))
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", key, err)
	}
	v, err = nodegraph.Coerce(v, nodegraph.TypeFloat)
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", key, err)
	}
	return &v, nil
}
