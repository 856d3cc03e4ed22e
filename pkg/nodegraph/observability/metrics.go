package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records nodegraph metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records an executed node with its final status
	// ("succeeded", "failed" or "cancelled"), duration and attempt count.
	RecordNodeExecution(ctx context.Context, nodeID, status string, duration time.Duration, attempts int)

	// RecordNodeSkipped records a node that never ran.
	RecordNodeSkipped(ctx context.Context, nodeID string)

	// RecordGraphRun records a graph run completion.
	RecordGraphRun(ctx context.Context, graphName string, success bool, duration time.Duration)

	// RecordHistorySave records a persisted run record.
	RecordHistorySave(ctx context.Context, graphName string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	nodeRetries    metric.Int64Counter
	nodeSkipped    metric.Int64Counter
	graphRuns      metric.Int64Counter
	graphLatency   metric.Float64Histogram
	historySize    metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the OTel instruments on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter("nodegraph"))
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	nodeExecutions, err := meter.Int64Counter("nodegraph.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("nodegraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("nodegraph.node.errors",
		metric.WithDescription("Number of failed or cancelled node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeRetries, err := meter.Int64Counter("nodegraph.node.retries",
		metric.WithDescription("Number of extra compute attempts"),
	)
	if err != nil {
		return nil, err
	}

	nodeSkipped, err := meter.Int64Counter("nodegraph.node.skipped",
		metric.WithDescription("Number of nodes skipped after an upstream failure or cancellation"),
	)
	if err != nil {
		return nil, err
	}

	graphRuns, err := meter.Int64Counter("nodegraph.graph.runs",
		metric.WithDescription("Number of graph runs"),
	)
	if err != nil {
		return nil, err
	}

	graphLatency, err := meter.Float64Histogram("nodegraph.graph.latency_ms",
		metric.WithDescription("Graph run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	historySize, err := meter.Int64Histogram("nodegraph.history.size_bytes",
		metric.WithDescription("Persisted run record size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeLatency:    nodeLatency,
		nodeErrors:     nodeErrors,
		nodeRetries:    nodeRetries,
		nodeSkipped:    nodeSkipped,
		graphRuns:      graphRuns,
		graphLatency:   graphLatency,
		historySize:    historySize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithMeter returns a recorder bound to a specific meter
// instead of the global provider.
func NewMetricsRecorderWithMeter(meter metric.Meter) (MetricsRecorder, error) {
	m, err := newOtelMetrics(meter)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID, status string, duration time.Duration, attempts int) {
	attrs := metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("status", status),
	)

	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if status != "succeeded" {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
	if attempts > 1 {
		m.nodeRetries.Add(ctx, int64(attempts-1), metric.WithAttributes(attribute.String("node_id", nodeID)))
	}
}

// RecordNodeSkipped records a skipped node.
func (m *otelMetrics) RecordNodeSkipped(ctx context.Context, nodeID string) {
	m.nodeSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("node_id", nodeID)))
}

// RecordGraphRun records a graph run.
func (m *otelMetrics) RecordGraphRun(ctx context.Context, graphName string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("graph", graphName),
		attribute.Bool("success", success),
	)
	m.graphRuns.Add(ctx, 1, attrs)
	m.graphLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordHistorySave records a persisted run record.
func (m *otelMetrics) RecordHistorySave(ctx context.Context, graphName string, sizeBytes int64) {
	m.historySize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("graph", graphName)))
}
