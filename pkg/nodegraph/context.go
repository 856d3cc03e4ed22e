package nodegraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph/observability"
)

// Context is the cancellation handle and service bag passed to Node.Execute.
// It extends context.Context with the run's logger and metadata.
//
// Context is immutable after creation. The scheduler derives one per node
// with NodeID set and an enriched logger; retries derive one per attempt.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with run and node context.
	// Never returns nil - defaults to slog.Default() if not configured.
	Logger() *slog.Logger

	// RunID returns the unique identifier for this execution run.
	RunID() string

	// NodeID returns the node being executed.
	// Empty string outside of node execution.
	NodeID() string

	// Attempt returns the retry attempt number (1 = first attempt).
	Attempt() int
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger  *slog.Logger
	runID   string
	nodeID  string
	attempt int

	// root is the run logger before node enrichment; set for node contexts.
	root *slog.Logger
}

func (c *executionContext) Logger() *slog.Logger { return c.logger }
func (c *executionContext) RunID() string        { return c.runID }
func (c *executionContext) NodeID() string       { return c.nodeID }
func (c *executionContext) Attempt() int         { return c.attempt }

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithContextLogger sets the logger for the context.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextRunID sets the run identifier for the context.
// If not set, a UUID is generated.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		if id != "" {
			c.runID = id
		}
	}
}

// NewContext creates an execution context from a standard context.
// Hosts rarely need it: Graph.Run builds contexts itself. It is useful for
// executing a single node directly, e.g. in tests.
//
// Example:
//
//	ctx := nodegraph.NewContext(context.Background())
//	node.Validate()
//	result := node.Execute(ctx)
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.NewString(),
		attempt: 1,
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// withNodeID returns a context for executing the given node.
// parent supplies cancellation (and possibly a node timeout).
func (c *executionContext) withNodeID(parent context.Context, nodeID string) *executionContext {
	return &executionContext{
		Context: parent,
		logger:  observability.EnrichLogger(c.logger, c.runID, nodeID, 1),
		runID:   c.runID,
		nodeID:  nodeID,
		attempt: 1,
		root:    c.logger,
	}
}

// withAttempt returns a copy carrying the retry attempt number.
func withAttempt(ctx Context, attempt int) Context {
	ec, ok := ctx.(*executionContext)
	if !ok {
		return ctx
	}
	cp := *ec
	cp.attempt = attempt
	if ec.root != nil {
		cp.logger = observability.EnrichLogger(ec.root, ec.runID, ec.nodeID, attempt)
	}
	return &cp
}

// withParent replaces the embedded context, keeping services and metadata.
func withParent(ctx Context, parent context.Context) Context {
	if ec, ok := ctx.(*executionContext); ok {
		cp := *ec
		cp.Context = parent
		return &cp
	}
	return &executionContext{
		Context: parent,
		logger:  ctx.Logger(),
		runID:   ctx.RunID(),
		nodeID:  ctx.NodeID(),
		attempt: ctx.Attempt(),
	}
}
