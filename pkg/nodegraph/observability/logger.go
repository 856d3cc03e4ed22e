// Package observability provides structured logging, metrics and tracing
// for nodegraph runs.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry, one span per run, layer and node
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds a slog logger writing to w.
// level is one of debug, info, warn, error; format is text or json.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// EnrichLogger adds run and node context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "scale", 1)
//	enriched.Info("doing work") // includes run_id, node_id, attempt
func EnrichLogger(logger *slog.Logger, runID, nodeID string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
		slog.Int("attempt", attempt),
	)
}

// LogRunStart logs the start of a graph run.
func LogRunStart(logger *slog.Logger, graphName, runID string, nodeCount, layerCount int) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("graph", graphName),
		slog.String("run_id", runID),
		slog.Int("nodes", nodeCount),
		slog.Int("layers", layerCount),
	)
}

// RunSummary counts node outcomes for run completion logs.
type RunSummary struct {
	Succeeded int
	Failed    int
	Cancelled int
	Skipped   int
}

// LogRunComplete logs the end of a graph run. Runs with any failed,
// cancelled or skipped node are logged at warn level.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, s RunSummary) {
	if logger == nil {
		return
	}
	level := slog.LevelInfo
	msg := "graph run completed"
	if s.Failed > 0 || s.Cancelled > 0 || s.Skipped > 0 {
		level = slog.LevelWarn
		msg = "graph run completed with failures"
	}
	logger.Log(context.Background(), level, msg,
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("cancelled", s.Cancelled),
		slog.Int("skipped", s.Skipped),
	)
}

// LogLayerStart logs the start of a dependency layer.
func LogLayerStart(logger *slog.Logger, index int, nodeIDs []string) {
	if logger == nil {
		return
	}
	logger.Debug("layer starting",
		slog.Int("layer", index),
		slog.Any("nodes", nodeIDs),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64, attempts int) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("attempts", attempts),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil || err == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogNodeCancelled logs a node stopped by run cancellation.
func LogNodeCancelled(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	attrs := []any{slog.String("node_id", nodeID)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logger.Warn("node cancelled", attrs...)
}

// LogNodeSkipped logs a node that will not run.
func LogNodeSkipped(logger *slog.Logger, nodeID, reason string) {
	if logger == nil {
		return
	}
	logger.Info("node skipped",
		slog.String("node_id", nodeID),
		slog.String("reason", reason),
	)
}

// LogPropagationError logs a value that could not be delivered downstream.
func LogPropagationError(logger *slog.Logger, connection string, err error) {
	if logger == nil || err == nil {
		return
	}
	logger.Error("propagation failed",
		slog.String("connection", connection),
		slog.String("error", err.Error()),
	)
}

// LogHistorySaved logs a persisted run record.
func LogHistorySaved(logger *slog.Logger, runID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("run history saved",
		slog.String("run_id", runID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogHistoryError logs a history failure (non-fatal).
func LogHistoryError(logger *slog.Logger, runID, op string, err error) {
	if logger == nil || err == nil {
		return
	}
	logger.Warn("run history failed",
		slog.String("run_id", runID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}
