package store

import (
	"context"
	"errors"
	"time"
)

// Kind partitions the entity namespace.
type Kind string

const (
	KindWorkItem    Kind = "work_item"
	KindTask        Kind = "task"
	KindIdea        Kind = "idea"
	KindBlockReport Kind = "block_report"
)

var (
	// ErrNotFound is returned when no record exists for a (kind, id).
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned when a put's expected version does
	// not match the stored version. Callers retry with a fresh read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrAlreadyExists is returned when creating over an existing id.
	ErrAlreadyExists = errors.New("entity already exists")
)

// Record is a stored entity snapshot. Data is an opaque JSON payload.
type Record struct {
	Kind      Kind      `json:"kind"`
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Data      []byte    `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransitionRecord is one write-once audit trail entry. It is read by
// external reporting and the show surface, never by the core's decision
// logic.
type TransitionRecord struct {
	EntityID      string    `json:"entity_id"`
	Kind          Kind      `json:"kind"`
	FromState     string    `json:"from_state,omitempty"`
	ToState       string    `json:"to_state,omitempty"`
	FromPhase     string    `json:"from_phase,omitempty"`
	ToPhase       string    `json:"to_phase,omitempty"`
	Note          string    `json:"note,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	At            time.Time `json:"at"`
}

// Store is the entity store adapter contract.
type Store interface {
	// Get returns the record for (kind, id) or ErrNotFound.
	Get(ctx context.Context, kind Kind, id string) (*Record, error)

	// Put writes data under (kind, id) as a compare-and-swap on
	// expectedVersion and returns the new version. expectedVersion 0
	// creates the record (ErrAlreadyExists if present); any other value
	// must match the stored version or ErrVersionConflict is returned.
	Put(ctx context.Context, kind Kind, id string, data []byte, expectedVersion int64) (int64, error)

	// Delete removes the record for (kind, id). Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, kind Kind, id string) error

	// Query returns every record of kind matching the predicate. A nil
	// predicate matches everything.
	Query(ctx context.Context, kind Kind, predicate func(*Record) bool) ([]*Record, error)

	// AppendHistory appends a transition record to the entity's
	// write-once audit trail.
	AppendHistory(ctx context.Context, rec *TransitionRecord) error

	// History returns the entity's audit trail in append order.
	History(ctx context.Context, kind Kind, id string) ([]*TransitionRecord, error)

	// Close releases the adapter's resources.
	Close() error
}
