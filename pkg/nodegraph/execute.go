package nodegraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph/history"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/observability"
)

// Reasons reported for skipped nodes.
const (
	SkipReasonUpstream  = "upstream node failed or was cancelled"
	SkipReasonCancelled = "run cancelled"
	SkipReasonFailFast  = "fail-fast after an earlier failure"
)

// Run executes the graph layer by layer and returns the execution report.
//
// Nodes within a layer run concurrently; the scheduler waits for the whole
// layer, then delivers every successful node's outputs through its
// connections before starting the next layer. A failed or cancelled node
// blocks its downstream closure, which is reported as skipped; independent
// branches keep running. Cancelling ctx stops new nodes from starting.
//
// Run returns an error, and no report, only when ctx is nil, the graph
// has not been validated since its last mutation, reset or run
// (ErrInvalidState), or the graph contains a cycle. Node failures are
// reported in the ExecutionReport, never as Run's error.
//
// After Run the graph is no longer validated. Call Reset and Validate
// before running it again.
//
// Example:
//
//	report, err := g.Run(ctx, nodegraph.WithMaxConcurrency(4))
//	if err != nil {
//	    return err
//	}
//	if !report.Success {
//	    log.Printf("failed: %v skipped: %v", report.Failed(), report.Skipped)
//	}
func (g *Graph) Run(ctx context.Context, opts ...RunOption) (*ExecutionReport, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r, err := g.begin(&cfg)
	if err != nil {
		return nil, err
	}
	defer g.end()

	return r.run(ctx), nil
}

// begin snapshots the topology and marks the graph running.
func (g *Graph) begin(cfg *runConfig) (*runner, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil, &StateError{Op: "run", State: "running"}
	}
	if !g.validated {
		return nil, &StateError{Op: "run", State: "unvalidated"}
	}
	layers, err := g.layers()
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]Node, len(g.nodes))
	for id, n := range g.nodes {
		nodes[id] = n
	}
	outgoing := make(map[string][]*Connection)
	for _, c := range g.conns {
		outgoing[c.SourceNodeID()] = append(outgoing[c.SourceNodeID()], c)
	}

	g.running = true
	g.validated = false

	return &runner{
		graphName: g.name,
		cfg:       cfg,
		nodes:     nodes,
		outgoing:  outgoing,
		adj:       g.adjacency(),
		layers:    layers,
		blocked:   make(map[string]bool),
	}, nil
}

func (g *Graph) end() {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
}

// runner holds the state of one in-flight run.
type runner struct {
	graphName string
	cfg       *runConfig
	nodes     map[string]Node
	outgoing  map[string][]*Connection
	adj       map[string][]string
	layers    [][]string

	runID  string
	logger *slog.Logger
	base   *executionContext

	mu      sync.Mutex // guards report.Results and report.Skipped during a layer
	report  *ExecutionReport
	blocked map[string]bool
	failed  bool
}

func (r *runner) run(ctx context.Context) *ExecutionReport {
	start := time.Now()

	r.runID = r.cfg.runID
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	r.logger = r.cfg.logger.With(slog.String("run_id", r.runID))
	r.report = &ExecutionReport{
		RunID:     r.runID,
		GraphName: r.graphName,
		Results:   make(map[string]NodeResult, len(r.nodes)),
		Layers:    r.layers,
		StartedAt: start,
	}

	runCtx, runSpan := r.cfg.spans.StartRunSpan(ctx, r.graphName, r.runID)
	r.base = &executionContext{
		Context: runCtx,
		logger:  r.cfg.logger,
		runID:   r.runID,
		attempt: 1,
	}

	observability.LogRunStart(r.cfg.logger, r.graphName, r.runID, len(r.nodes), len(r.layers))

	halt := ""
	for i, layer := range r.layers {
		if halt == "" {
			if ctx.Err() != nil {
				halt = SkipReasonCancelled
			} else if r.cfg.failFast && r.failed {
				halt = SkipReasonFailFast
			}
		}

		runnable := make([]string, 0, len(layer))
		for _, id := range layer {
			if _, done := r.report.Results[id]; done {
				continue
			}
			switch {
			case halt != "":
				r.skip(runCtx, id, halt)
			case r.blocked[id]:
				r.skip(runCtx, id, SkipReasonUpstream)
			default:
				runnable = append(runnable, id)
			}
		}
		if len(runnable) == 0 {
			continue
		}

		r.runLayer(runCtx, i, runnable)
		r.settle(runnable)
	}

	report := r.report
	report.Duration = time.Since(start)
	sort.Strings(report.Skipped)

	summary := observability.RunSummary{Skipped: len(report.Skipped)}
	for _, res := range report.Results {
		switch res.Status {
		case StatusSucceeded:
			summary.Succeeded++
		case StatusCancelled:
			summary.Cancelled++
		default:
			summary.Failed++
		}
	}
	report.Success = summary.Failed == 0 && summary.Cancelled == 0 && summary.Skipped == 0

	var runErr error
	if !report.Success {
		runErr = fmt.Errorf("run incomplete: %d failed, %d cancelled, %d skipped",
			summary.Failed, summary.Cancelled, summary.Skipped)
	}
	r.cfg.metrics.RecordGraphRun(runCtx, r.graphName, report.Success, report.Duration)
	r.cfg.spans.EndSpanWithError(runSpan, runErr)
	observability.LogRunComplete(r.cfg.logger, r.runID, durationMs(report.Duration), summary)

	r.saveHistory(runCtx, report)
	return report
}

// runLayer executes the given nodes concurrently and waits for all of them.
func (r *runner) runLayer(parent context.Context, index int, ids []string) {
	layerCtx, span := r.cfg.spans.StartLayerSpan(parent, index, ids)
	observability.LogLayerStart(r.logger, index, ids)

	var eg errgroup.Group
	if r.cfg.maxConcurrency > 0 {
		eg.SetLimit(r.cfg.maxConcurrency)
	}
	for _, id := range ids {
		eg.Go(func() error {
			// A node still waiting for a slot when the run is cancelled never starts.
			if layerCtx.Err() != nil {
				r.skip(layerCtx, id, SkipReasonCancelled)
				return nil
			}
			res := r.execute(layerCtx, id)
			r.mu.Lock()
			r.report.Results[id] = res
			r.mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait() // workers never return errors

	var errs []error
	for _, id := range ids {
		if res, ok := r.report.Results[id]; ok && res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	r.cfg.spans.EndSpanWithError(span, errors.Join(errs...))
}

// execute runs one node with its span, optional timeout and events.
func (r *runner) execute(parent context.Context, id string) NodeResult {
	node := r.nodes[id]

	nodeCtx, span := r.cfg.spans.StartNodeSpan(parent, id)
	if r.cfg.nodeTimeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeoutCause(nodeCtx, r.cfg.nodeTimeout,
			&TimeoutError{NodeID: id, Timeout: r.cfg.nodeTimeout})
		defer cancel()
	}
	ectx := r.base.withNodeID(nodeCtx, id)

	observability.LogNodeStart(r.logger, id)
	r.cfg.observer.OnNodeStart(r.runID, id)

	res := executeSafely(node, ectx)

	r.cfg.metrics.RecordNodeExecution(nodeCtx, id, string(res.Status), res.Duration, res.Attempts)
	r.cfg.spans.EndSpanWithError(span, res.Err)
	switch res.Status {
	case StatusSucceeded:
		observability.LogNodeComplete(r.logger, id, durationMs(res.Duration), res.Attempts)
	case StatusCancelled:
		observability.LogNodeCancelled(r.logger, id, res.Err)
	default:
		observability.LogNodeError(r.logger, id, res.Err)
	}
	r.cfg.observer.OnNodeFinish(r.runID, res)
	return res
}

// executeSafely calls Node.Execute, converting a panic in a custom Node
// implementation into a failed result and normalizing the result.
func executeSafely(node Node, ctx Context) (res NodeResult) {
	start := time.Now()
	id := node.ID()
	defer func() {
		if rec := recover(); rec != nil {
			res = failedResult(id, &PanicError{
				NodeID: id,
				Value:  rec,
				Stack:  string(debug.Stack()),
			}, 1, time.Since(start))
		}
	}()

	res = node.Execute(ctx)
	res.NodeID = id
	switch res.Status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
	default:
		err := res.Err
		if err == nil {
			err = fmt.Errorf("node %s returned status %q", id, res.Status)
		}
		res = failedResult(id, err, res.Attempts, res.Duration)
	}
	return res
}

// settle propagates the outputs of successful nodes and blocks the
// downstream closure of failed ones. Runs between layers only.
func (r *runner) settle(ids []string) {
	var succeeded []string
	for _, id := range ids {
		res, ok := r.report.Results[id]
		if !ok {
			continue // skipped while waiting to start
		}
		if res.Status != StatusSucceeded {
			r.fail(id)
			continue
		}
		succeeded = append(succeeded, id)
	}
	// Every failure of the layer is blocked before any value moves, so a
	// target in a failed node's closure is skipped, not failed.
	for _, id := range succeeded {
		for _, c := range r.outgoing[id] {
			if err := c.Propagate(); err != nil {
				r.propagationFailed(c, err)
			}
		}
	}
}

// propagationFailed fails the target of a connection whose value could
// not be delivered. This only happens with custom Node implementations
// that report success without writing their outputs.
func (r *runner) propagationFailed(c *Connection, err error) {
	observability.LogPropagationError(r.logger, c.String(), err)
	target := c.TargetNodeID()
	if r.blocked[target] {
		return
	}
	if _, done := r.report.Results[target]; done {
		return
	}
	res := failedResult(target, &NodeError{NodeID: target, Op: "propagate", Err: err}, 0, 0)
	r.report.Results[target] = res
	r.cfg.observer.OnNodeFinish(r.runID, res)
	r.fail(target)
}

func (r *runner) fail(id string) {
	r.failed = true
	for _, d := range downstreamClosure(r.adj, id) {
		r.blocked[d] = true
	}
}

func (r *runner) skip(ctx context.Context, id, reason string) {
	r.mu.Lock()
	r.report.Skipped = append(r.report.Skipped, id)
	r.mu.Unlock()

	r.cfg.metrics.RecordNodeSkipped(ctx, id)
	observability.LogNodeSkipped(r.logger, id, reason)
	r.cfg.observer.OnNodeSkipped(r.runID, id, reason)
}

// saveHistory persists the report. Failures are logged, never returned.
func (r *runner) saveHistory(ctx context.Context, report *ExecutionReport) {
	store := r.cfg.history
	if store == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		observability.LogHistoryError(r.cfg.logger, report.RunID, "marshal", err)
		return
	}
	rec := history.Record{
		RunID:     report.RunID,
		GraphName: report.GraphName,
		Success:   report.Success,
		StartedAt: report.StartedAt,
		Duration:  report.Duration,
		Data:      data,
	}
	if err := store.Save(rec); err != nil {
		observability.LogHistoryError(r.cfg.logger, report.RunID, "save", err)
		return
	}
	observability.LogHistorySaved(r.cfg.logger, report.RunID, len(data))
	r.cfg.metrics.RecordHistorySave(ctx, report.GraphName, int64(len(data)))
}
