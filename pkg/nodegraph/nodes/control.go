package nodes

import (
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/catalog"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/config"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/retry"
)

// delayType waits for "duration" and passes its input through. The wait
// ends early, with an error, when the run is cancelled or the node times out.
func delayType() catalog.Type {
	return catalog.Type{
		Name:        "delay",
		Category:    CategoryControl,
		Description: "Waits, then passes the input through",
		Inputs:      []nodegraph.PortSpec{{Name: "in", Type: nodegraph.TypeAny, Required: true}},
		Outputs:     []nodegraph.PortSpec{{Name: "out", Type: nodegraph.TypeAny}},
		Factory: func(id string, params config.Params) (nodegraph.Node, error) {
			d := params.Duration("duration", 0)
			if d < 0 {
				return nil, fmt.Errorf("parameter duration must not be negative")
			}

			return build(nodegraph.NodeSpec{
				ID:          id,
				Category:    CategoryControl,
				Description: "Waits " + d.String(),
				Inputs:      []nodegraph.PortSpec{{Name: "in", Type: nodegraph.TypeAny, Required: true}},
				Outputs:     []nodegraph.PortSpec{{Name: "out", Type: nodegraph.TypeAny}},
			}, params, func(ctx nodegraph.Context, in nodegraph.Inputs) (nodegraph.Outputs, error) {
				v, err := in.Value("in")
				if err != nil {
					return nil, err
				}
				timer := time.NewTimer(d)
				defer timer.Stop()
				select {
				case <-timer.C:
					return nodegraph.Outputs{"out": v}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			})
		},
	}
}

// failType always fails with "message". With "succeed_after" set to N it
// instead fails transiently on the first N-1 attempts and then emits its
// input, which makes it useful for exercising retries.
func failType() catalog.Type {
	return catalog.Type{
		Name:        "fail",
		Category:    CategoryControl,
		Description: "Fails on purpose",
		Inputs:      []nodegraph.PortSpec{{Name: "in", Type: nodegraph.TypeAny}},
		Outputs:     []nodegraph.PortSpec{{Name: "out", Type: nodegraph.TypeAny}},
		Factory: func(id string, params config.Params) (nodegraph.Node, error) {
			msg := params.String("message", "node failed on purpose")
			succeedAfter := params.Int("succeed_after", 0)

			return build(nodegraph.NodeSpec{
				ID:          id,
				Category:    CategoryControl,
				Description: "Fails on purpose",
				Inputs:      []nodegraph.PortSpec{{Name: "in", Type: nodegraph.TypeAny, Default: ptr(nodegraph.Bool(true))}},
				Outputs:     []nodegraph.PortSpec{{Name: "out", Type: nodegraph.TypeAny}},
			}, params, func(ctx nodegraph.Context, in nodegraph.Inputs) (nodegraph.Outputs, error) {
				if succeedAfter > 0 {
					if int64(ctx.Attempt()) < succeedAfter {
						return nil, retry.Transient(fmt.Errorf("%s (attempt %d)", msg, ctx.Attempt()))
					}
					v, err := in.Value("in")
					if err != nil {
						return nil, err
					}
					return nodegraph.Outputs{"out": v}, nil
				}
				return nil, errors.New(msg)
			})
		},
	}
}
