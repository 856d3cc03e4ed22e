package nodegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph/observability"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/retry"
)

// lockedBuffer is a bytes.Buffer safe for the concurrent writes of a layer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range bytes.Split(b.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func messages(records []map[string]any) []string {
	var msgs []string
	for _, r := range records {
		msgs = append(msgs, r["msg"].(string))
	}
	return msgs
}

func TestRun_Logging(t *testing.T) {
	var buf lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	g := linearGraph(t)
	require.NoError(t, g.Validate())
	_, err := g.Run(testCtx(t), WithLogger(logger), WithRunID("logged"))
	require.NoError(t, err)

	records := buf.records(t)
	msgs := messages(records)
	assert.Contains(t, msgs, "graph run starting")
	assert.Contains(t, msgs, "layer starting")
	assert.Contains(t, msgs, "node completed")
	assert.Equal(t, "graph run completed", msgs[len(msgs)-1])
	for _, r := range records {
		assert.Equal(t, "logged", r["run_id"], "every record carries the run ID: %v", r)
	}
}

func TestRun_NodeLoggerCarriesAttempt(t *testing.T) {
	var buf lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	g := NewGraph("retrying")
	require.NoError(t, g.AddNode(MustNode(NodeSpec{
		ID:      "flaky",
		Outputs: []PortSpec{{Name: "y", Type: TypeInt}},
		Retry:   &retry.Policy{MaxAttempts: 2},
	}, func(ctx Context, _ Inputs) (Outputs, error) {
		ctx.Logger().Info("working")
		if ctx.Attempt() == 1 {
			return nil, retry.Transient(errors.New("warming up"))
		}
		return Outputs{"y": Int(1)}, nil
	})))
	require.NoError(t, g.Validate())
	report, err := g.Run(testCtx(t), WithLogger(logger), WithRunID("r"))
	require.NoError(t, err)
	require.True(t, report.Success)

	var attempts []float64
	for _, r := range buf.records(t) {
		if r["msg"] == "working" {
			assert.Equal(t, "flaky", r["node_id"])
			assert.Equal(t, "r", r["run_id"])
			attempts = append(attempts, r["attempt"].(float64))
		}
	}
	assert.Equal(t, []float64{1, 2}, attempts)
}

func TestRun_LoggingFailures(t *testing.T) {
	var buf lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	g := NewGraph("failing")
	require.NoError(t, g.AddNode(sourceNode("a", 1)))
	require.NoError(t, g.AddNode(computeNode("b", func(Context, Inputs) (Outputs, error) {
		return nil, errors.New("broken")
	})))
	require.NoError(t, g.AddNode(scaleNode("c", 1, 0)))
	connect(t, g, "a", "value", "b", "x")
	connect(t, g, "b", "y", "c", "x")
	require.NoError(t, g.Validate())
	_, err := g.Run(testCtx(t), WithLogger(logger))
	require.NoError(t, err)

	var sawError, sawSkip, sawSummary bool
	for _, r := range buf.records(t) {
		switch r["msg"] {
		case "node failed":
			sawError = true
			assert.Equal(t, "b", r["node_id"])
			assert.Equal(t, "ERROR", r["level"])
		case "node skipped":
			sawSkip = true
			assert.Equal(t, "c", r["node_id"])
		case "graph run completed with failures":
			sawSummary = true
			assert.Equal(t, "WARN", r["level"])
			assert.EqualValues(t, 1, r["failed"])
			assert.EqualValues(t, 1, r["skipped"])
		}
	}
	assert.True(t, sawError)
	assert.True(t, sawSkip)
	assert.True(t, sawSummary)
}

func TestRun_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	g := NewGraph("traced")
	require.NoError(t, g.AddNode(sourceNode("a", 1)))
	require.NoError(t, g.AddNode(computeNode("b", func(Context, Inputs) (Outputs, error) {
		return nil, errors.New("broken")
	})))
	connect(t, g, "a", "value", "b", "x")

	runValidated(t, testCtx(t), g, WithSpanManager(observability.NewSpanManagerWithProvider(tp)))

	spans := recorder.Ended()
	byName := make(map[string]sdktrace.ReadOnlySpan)
	layers := 0
	for _, s := range spans {
		byName[s.Name()] = s
		if s.Name() == "nodegraph.layer" {
			layers++
		}
	}
	require.Contains(t, byName, "nodegraph.run")
	require.Contains(t, byName, "nodegraph.node.a")
	require.Contains(t, byName, "nodegraph.node.b")
	assert.Equal(t, 2, layers)

	run := byName["nodegraph.run"]
	assert.Equal(t, codes.Error, run.Status().Code)
	assert.Equal(t, codes.Ok, byName["nodegraph.node.a"].Status().Code)
	assert.Equal(t, codes.Error, byName["nodegraph.node.b"].Status().Code)

	// Node spans are children of layer spans, which are children of the run.
	nodeA := byName["nodegraph.node.a"]
	assert.Equal(t, run.SpanContext().TraceID(), nodeA.SpanContext().TraceID())
	assert.NotEqual(t, run.SpanContext().SpanID(), nodeA.Parent().SpanID())
}

func TestRun_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	recorder, err := observability.NewMetricsRecorderWithMeter(provider.Meter("test"))
	require.NoError(t, err)

	g := NewGraph("measured")
	require.NoError(t, g.AddNode(sourceNode("a", 1)))
	require.NoError(t, g.AddNode(computeNode("b", func(Context, Inputs) (Outputs, error) {
		return nil, errors.New("broken")
	})))
	require.NoError(t, g.AddNode(scaleNode("c", 1, 0)))
	connect(t, g, "a", "value", "b", "x")
	connect(t, g, "b", "y", "c", "x")

	runValidated(t, testCtx(t), g, WithMetricsRecorder(recorder))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["nodegraph.node.executions"])
	assert.Equal(t, int64(1), sums["nodegraph.node.errors"])
	assert.Equal(t, int64(1), sums["nodegraph.node.skipped"])
	assert.Equal(t, int64(1), sums["nodegraph.graph.runs"])
}
