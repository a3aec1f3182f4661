package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a SQLite database file. The driver is
// pure Go, so the binary stays cgo-free.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at path and
// applies the schema.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent advancement attempts.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS entities (
	kind       TEXT NOT NULL,
	id         TEXT NOT NULL,
	version    INTEGER NOT NULL,
	data       BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS history (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	entity_id  TEXT NOT NULL,
	record     BLOB NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_entity ON history (kind, entity_id);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Get returns the record for (kind, id) or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version, data, updated_at FROM entities WHERE kind = ? AND id = ?`,
		string(kind), id,
	)

	var (
		rec       = Record{Kind: kind, ID: id}
		updatedAt string
	)
	if err := row.Scan(&rec.Version, &rec.Data, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read entity: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

// Put applies a compare-and-swap write and returns the new version.
func (s *SQLiteStore) Put(ctx context.Context, kind Kind, id string, data []byte, expectedVersion int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	next := expectedVersion + 1

	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO entities (kind, id, version, data, updated_at) VALUES (?, ?, ?, ?, ?)`,
			string(kind), id, next, data, now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return 0, fmt.Errorf("%s %s: %w", kind, id, ErrAlreadyExists)
			}
			return 0, fmt.Errorf("failed to create entity: %w", err)
		}
		return next, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET version = ?, data = ?, updated_at = ? WHERE kind = ? AND id = ? AND version = ?`,
		next, data, now, string(kind), id, expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check update: %w", err)
	}
	if affected == 0 {
		// Distinguish a stale version from a missing row.
		var current int64
		err := s.db.QueryRowContext(ctx,
			`SELECT version FROM entities WHERE kind = ? AND id = ?`, string(kind), id,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read entity version: %w", err)
		}
		return 0, fmt.Errorf("%s %s: expected version %d, have %d: %w",
			kind, id, expectedVersion, current, ErrVersionConflict)
	}
	return next, nil
}

// Delete removes the record for (kind, id); missing records are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, kind Kind, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE kind = ? AND id = ?`, string(kind), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

// Query returns every record of kind matching the predicate. Filtering
// happens client-side; the record set per kind is small enough that
// pushing predicates into SQL is not worth the coupling.
func (s *SQLiteStore) Query(ctx context.Context, kind Kind, predicate func(*Record) bool) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, data, updated_at FROM entities WHERE kind = ?`, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec := Record{Kind: kind}
		var updatedAt string
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.Data, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			rec.UpdatedAt = t
		}
		if predicate == nil || predicate(&rec) {
			out = append(out, &rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return out, nil
}

// AppendHistory appends to the entity's audit trail.
func (s *SQLiteStore) AppendHistory(ctx context.Context, rec *TransitionRecord) error {
	entry := *rec
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	payload, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to encode transition record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history (kind, entity_id, record, created_at) VALUES (?, ?, ?, ?)`,
		string(entry.Kind), entry.EntityID, payload, entry.At.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// History returns the entity's audit trail in append order.
func (s *SQLiteStore) History(ctx context.Context, kind Kind, id string) ([]*TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM history WHERE kind = ? AND entity_id = ? ORDER BY seq`,
		string(kind), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []*TransitionRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		var rec TransitionRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode transition record: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation detects a primary key conflict without depending on
// driver-specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint violation")
}
