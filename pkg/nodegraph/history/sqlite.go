package history

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists run records to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) a SQLite history database.
// The path should be a file path (e.g., "./history.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			graph_name TEXT NOT NULL,
			success INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			duration_ns INTEGER NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_runs_graph_started
		ON runs(graph_name, started_at)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	data := rec.Data
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, graph_name, success, started_at, duration_ns, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			graph_name = excluded.graph_name,
			success = excluded.success,
			started_at = excluded.started_at,
			duration_ns = excluded.duration_ns,
			data = excluded.data
	`, rec.RunID, rec.GraphName, rec.Success, formatTime(rec.StartedAt), int64(rec.Duration), data)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(runID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	var (
		rec       Record
		startedAt string
		duration  int64
	)
	err := s.db.QueryRow(`
		SELECT run_id, graph_name, success, started_at, duration_ns, data
		FROM runs WHERE run_id = ?
	`, runID).Scan(&rec.RunID, &rec.GraphName, &rec.Success, &startedAt, &duration, &rec.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return Record{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	rec.Duration = time.Duration(duration)
	return rec, nil
}

// List implements Store.
func (s *SQLiteStore) List(graphName string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT run_id, success, started_at, duration_ns, LENGTH(data)
		FROM runs
		WHERE graph_name = ?
		ORDER BY started_at, run_id
	`, graphName)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var (
			info      Info
			startedAt string
			duration  int64
		)
		if err := rows.Scan(&info.RunID, &info.Success, &startedAt, &duration, &info.Size); err != nil {
			return nil, fmt.Errorf("scan run info: %w", err)
		}
		info.GraphName = graphName
		if info.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("run %s: %w", info.RunID, err)
		}
		info.Duration = time.Duration(duration)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec(`DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// DeleteGraph implements Store.
func (s *SQLiteStore) DeleteGraph(graphName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec(`DELETE FROM runs WHERE graph_name = ?`, graphName); err != nil {
		return fmt.Errorf("delete graph runs %s: %w", graphName, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Timestamps are stored as fixed-width UTC RFC3339 so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse started_at: %w", err)
	}
	return t, nil
}
