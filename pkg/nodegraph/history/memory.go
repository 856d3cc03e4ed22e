package history

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory history store for tests and short-lived
// processes. Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record // runID -> record
	closed  bool
}

// NewMemoryStore creates a new in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Copy data to avoid retaining caller's slice
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)
	rec.Data = data
	m.records[rec.RunID] = rec
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(runID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}

	rec, ok := m.records[runID]
	if !ok {
		return Record{}, ErrNotFound
	}
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)
	rec.Data = data
	return rec, nil
}

// List implements Store.
func (m *MemoryStore) List(graphName string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := []Info{}
	for _, rec := range m.records {
		if rec.GraphName == graphName {
			infos = append(infos, rec.info())
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].RunID < infos[j].RunID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.records, runID)
	return nil
}

// DeleteGraph implements Store.
func (m *MemoryStore) DeleteGraph(graphName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	for id, rec := range m.records {
		if rec.GraphName == graphName {
			delete(m.records, id)
		}
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}

// Len returns the number of stored records. Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
