// Package history persists execution reports so past runs of a graph can
// be listed and inspected after the process that ran them has exited.
package history

import (
	"errors"
	"time"
)

// Store persists run records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a record. Overwrites an existing record with the same RunID.
	Save(rec Record) error

	// Load retrieves a record by run ID.
	// Returns ErrNotFound if the record doesn't exist.
	Load(runID string) (Record, error)

	// List returns metadata for every run of a graph, ordered by start time.
	// Returns an empty slice (not error) if the graph has no runs.
	List(graphName string) ([]Info, error)

	// Delete removes a record. Returns nil if it doesn't exist.
	Delete(runID string) error

	// DeleteGraph removes every record of a graph.
	DeleteGraph(graphName string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Record is one persisted run. Data holds the JSON-encoded execution report.
type Record struct {
	RunID     string
	GraphName string
	Success   bool
	StartedAt time.Time
	Duration  time.Duration
	Data      []byte
}

// Info provides record metadata without loading the report.
type Info struct {
	RunID     string
	GraphName string
	Success   bool
	StartedAt time.Time
	Duration  time.Duration
	Size      int64
}

// Sentinel errors for history operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("run record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("history store closed")

	// ErrInvalidRecord indicates a record without a run ID or graph name.
	ErrInvalidRecord = errors.New("invalid run record")
)

func validateRecord(rec Record) error {
	if rec.RunID == "" {
		return errors.Join(ErrInvalidRecord, errors.New("run ID is empty"))
	}
	if rec.GraphName == "" {
		return errors.Join(ErrInvalidRecord, errors.New("graph name is empty"))
	}
	return nil
}

func (r Record) info() Info {
	return Info{
		RunID:     r.RunID,
		GraphName: r.GraphName,
		Success:   r.Success,
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
		Size:      int64(len(r.Data)),
	}
}
