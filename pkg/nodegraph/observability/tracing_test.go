package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest creates a span manager backed by an in-memory exporter.
func setupTracingTest(t *testing.T) (SpanManager, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	})
	return NewSpanManagerWithProvider(tp), exporter
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestStartRunSpan(t *testing.T) {
	sm, exporter := setupTracingTest(t)

	_, span := sm.StartRunSpan(context.Background(), "pipeline", "run-123")
	require.NotNil(t, span)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "nodegraph.run", spans[0].Name)
	attrs := attrMap(spans[0].Attributes)
	assert.Equal(t, "pipeline", attrs["graph.name"].AsString())
	assert.Equal(t, "run-123", attrs["run.id"].AsString())
}

func TestSpanHierarchy(t *testing.T) {
	sm, exporter := setupTracingTest(t)

	runCtx, runSpan := sm.StartRunSpan(context.Background(), "g", "r")
	layerCtx, layerSpan := sm.StartLayerSpan(runCtx, 1, []string{"a", "b"})
	_, nodeSpan := sm.StartNodeSpan(layerCtx, "a")
	nodeSpan.End()
	layerSpan.End()
	runSpan.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	byName := make(map[string]tracetest.SpanStub)
	for _, s := range spans {
		byName[s.Name] = s
	}

	node := byName["nodegraph.node.a"]
	layer := byName["nodegraph.layer"]
	run := byName["nodegraph.run"]
	assert.Equal(t, layer.SpanContext.SpanID(), node.Parent.SpanID())
	assert.Equal(t, run.SpanContext.SpanID(), layer.Parent.SpanID())

	attrs := attrMap(layer.Attributes)
	assert.Equal(t, int64(1), attrs["layer.index"].AsInt64())
	assert.Equal(t, []string{"a", "b"}, attrs["layer.nodes"].AsStringSlice())
	assert.Equal(t, "a", attrMap(node.Attributes)["node.id"].AsString())
}

func TestEndSpanWithError(t *testing.T) {
	sm, exporter := setupTracingTest(t)

	_, ok := sm.StartNodeSpan(context.Background(), "ok")
	sm.EndSpanWithError(ok, nil)
	_, bad := sm.StartNodeSpan(context.Background(), "bad")
	sm.EndSpanWithError(bad, errors.New("broken"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "broken", spans[1].Status.Description)
	require.Len(t, spans[1].Events, 1, "error recorded as an event")

	assert.NotPanics(t, func() { EndSpanWithError(nil, errors.New("x")) })
}

func TestAddSpanEvent(t *testing.T) {
	sm, exporter := setupTracingTest(t)

	ctx, span := sm.StartRunSpan(context.Background(), "g", "r")
	sm.AddSpanEvent(ctx, "checkpoint", attribute.String("k", "v"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "checkpoint", spans[0].Events[0].Name)

	assert.NotPanics(t, func() { AddSpanEvent(context.Background(), "orphan") })
}
