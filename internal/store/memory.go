package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory Store. It backs tests and
// ephemeral runs; its CAS semantics match the SQLite adapter exactly.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Kind]map[string]*Record
	history map[Kind]map[string][]*TransitionRecord
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Kind]map[string]*Record),
		history: make(map[Kind]map[string][]*TransitionRecord),
	}
}

// Get returns the record for (kind, id) or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rec, ok := s.records[kind][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return copyRecord(rec), nil
}

// Put applies a compare-and-swap write and returns the new version.
func (s *MemoryStore) Put(ctx context.Context, kind Kind, id string, data []byte, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	byID, ok := s.records[kind]
	if !ok {
		byID = make(map[string]*Record)
		s.records[kind] = byID
	}

	current, exists := byID[id]
	switch {
	case expectedVersion == 0 && exists:
		return 0, fmt.Errorf("%s %s: %w", kind, id, ErrAlreadyExists)
	case expectedVersion != 0 && !exists:
		return 0, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	case expectedVersion != 0 && current.Version != expectedVersion:
		return 0, fmt.Errorf("%s %s: expected version %d, have %d: %w",
			kind, id, expectedVersion, current.Version, ErrVersionConflict)
	}

	next := expectedVersion + 1
	stored := make([]byte, len(data))
	copy(stored, data)
	byID[id] = &Record{
		Kind:      kind,
		ID:        id,
		Version:   next,
		Data:      stored,
		UpdatedAt: time.Now().UTC(),
	}
	return next, nil
}

// Delete removes the record for (kind, id); missing records are ignored.
func (s *MemoryStore) Delete(ctx context.Context, kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	delete(s.records[kind], id)
	return nil
}

// Query returns every record of kind matching the predicate.
func (s *MemoryStore) Query(ctx context.Context, kind Kind, predicate func(*Record) bool) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var out []*Record
	for _, rec := range s.records[kind] {
		if predicate == nil || predicate(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

// AppendHistory appends to the entity's audit trail.
func (s *MemoryStore) AppendHistory(ctx context.Context, rec *TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	byID, ok := s.history[rec.Kind]
	if !ok {
		byID = make(map[string][]*TransitionRecord)
		s.history[rec.Kind] = byID
	}
	entry := *rec
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	byID[rec.EntityID] = append(byID[rec.EntityID], &entry)
	return nil
}

// History returns the entity's audit trail in append order.
func (s *MemoryStore) History(ctx context.Context, kind Kind, id string) ([]*TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	entries := s.history[kind][id]
	out := make([]*TransitionRecord, len(entries))
	for i, e := range entries {
		copied := *e
		out[i] = &copied
	}
	return out, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func copyRecord(rec *Record) *Record {
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)
	copied := *rec
	copied.Data = data
	return &copied
}
