package nodegraph

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph/config"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/history"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/observability"
)

// runConfig holds configuration for graph execution.
type runConfig struct {
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	maxConcurrency int
	nodeTimeout    time.Duration
	runID          string
	failFast       bool
	history        history.Store
	observer       Observer
}

func defaultRunConfig() runConfig {
	return runConfig{
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
		observer: ObserverFuncs{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithLogger sets the run's logger. Node contexts receive it enriched with
// run_id and node_id. Default: slog.Default().
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables or disables OpenTelemetry metrics using the global
// meter provider.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder sets a specific metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables or disables OpenTelemetry tracing using the global
// tracer provider. Spans are emitted per run, layer and node.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithSpanManager sets a specific span manager.
func WithSpanManager(s observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithMaxConcurrency bounds how many nodes of a layer execute at once.
// Zero (the default) means no limit.
//
// Panics if n is negative.
func WithMaxConcurrency(n int) RunOption {
	if n < 0 {
		panic("nodegraph: max concurrency must be >= 0")
	}
	return func(c *runConfig) {
		c.maxConcurrency = n
	}
}

// WithNodeTimeout bounds every node execution. A node exceeding it fails
// with a *TimeoutError; the rest of the run continues.
func WithNodeTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.nodeTimeout = d
		}
	}
}

// WithRunID sets the run identifier. Default: a random UUID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithFailFast stops starting new layers once any node fails or is
// cancelled. Nodes not yet started are reported as skipped.
func WithFailFast() RunOption {
	return func(c *runConfig) {
		c.failFast = true
	}
}

// WithHistory saves the execution report to store when the run ends.
// Save failures are logged and do not affect the report.
func WithHistory(store history.Store) RunOption {
	return func(c *runConfig) {
		c.history = store
	}
}

// WithObserver registers callbacks for node lifecycle events.
func WithObserver(o Observer) RunOption {
	return func(c *runConfig) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithSettings applies engine settings: concurrency, node timeout,
// fail-fast, tracing and metrics. The logger and history store are
// resources the host builds from the same settings and passes with
// WithLogger and WithHistory.
func WithSettings(s config.Settings) RunOption {
	return func(c *runConfig) {
		if s.MaxConcurrency > 0 {
			c.maxConcurrency = s.MaxConcurrency
		}
		WithNodeTimeout(s.NodeTimeout.Std())(c)
		if s.FailFast {
			c.failFast = true
		}
		WithTracing(s.Tracing)(c)
		WithMetrics(s.Metrics)(c)
	}
}
