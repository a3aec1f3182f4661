package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The two adapters share CAS semantics, so the suite runs against both.
func adapters(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trackd.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestPutCreateAndGet(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			version, err := s.Put(ctx, KindWorkItem, "wi-1", []byte(`{"title":"export"}`), 0)
			require.NoError(t, err)
			assert.Equal(t, int64(1), version)

			rec, err := s.Get(ctx, KindWorkItem, "wi-1")
			require.NoError(t, err)
			assert.Equal(t, KindWorkItem, rec.Kind)
			assert.Equal(t, "wi-1", rec.ID)
			assert.Equal(t, int64(1), rec.Version)
			assert.JSONEq(t, `{"title":"export"}`, string(rec.Data))
			assert.False(t, rec.UpdatedAt.IsZero())
		})
	}
}

func TestPutCreateOverExisting(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Put(ctx, KindWorkItem, "wi-1", []byte(`{}`), 0)
			require.NoError(t, err)

			_, err = s.Put(ctx, KindWorkItem, "wi-1", []byte(`{}`), 0)
			assert.ErrorIs(t, err, ErrAlreadyExists)
		})
	}
}

func TestPutVersionConflict(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Put(ctx, KindTask, "t-1", []byte(`{"v":1}`), 0)
			require.NoError(t, err)

			version, err := s.Put(ctx, KindTask, "t-1", []byte(`{"v":2}`), 1)
			require.NoError(t, err)
			assert.Equal(t, int64(2), version)

			// A writer holding the stale version loses.
			_, err = s.Put(ctx, KindTask, "t-1", []byte(`{"v":3}`), 1)
			assert.ErrorIs(t, err, ErrVersionConflict)

			rec, err := s.Get(ctx, KindTask, "t-1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":2}`, string(rec.Data))
		})
	}
}

func TestPutUpdateMissing(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Put(context.Background(), KindTask, "ghost", []byte(`{}`), 3)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Put(ctx, KindBlockReport, "wi-1", []byte(`{"missing":1}`), 0)
			require.NoError(t, err)

			require.NoError(t, s.Delete(ctx, KindBlockReport, "wi-1"))
			_, err = s.Get(ctx, KindBlockReport, "wi-1")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting a missing record is a no-op.
			assert.NoError(t, s.Delete(ctx, KindBlockReport, "ghost"))

			// The id is free for re-creation afterwards.
			_, err = s.Put(ctx, KindBlockReport, "wi-1", []byte(`{"missing":2}`), 0)
			assert.NoError(t, err)
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), KindIdea, "ghost")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestKindsArePartitioned(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Put(ctx, KindWorkItem, "shared-id", []byte(`{"kind":"item"}`), 0)
			require.NoError(t, err)
			_, err = s.Put(ctx, KindTask, "shared-id", []byte(`{"kind":"task"}`), 0)
			require.NoError(t, err)

			rec, err := s.Get(ctx, KindTask, "shared-id")
			require.NoError(t, err)
			assert.JSONEq(t, `{"kind":"task"}`, string(rec.Data))
		})
	}
}

func TestQuery(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, id := range []string{"a", "b", "c"} {
				_, err := s.Put(ctx, KindTask, id, []byte(`{"id":"`+id+`"}`), 0)
				require.NoError(t, err)
			}

			all, err := s.Query(ctx, KindTask, nil)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			some, err := s.Query(ctx, KindTask, func(r *Record) bool { return r.ID != "b" })
			require.NoError(t, err)
			assert.Len(t, some, 2)

			none, err := s.Query(ctx, KindIdea, nil)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestHistoryAppendOrder(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, to := range []string{"ready", "active", "review"} {
				require.NoError(t, s.AppendHistory(ctx, &TransitionRecord{
					EntityID: "wi-1",
					Kind:     KindWorkItem,
					ToState:  to,
				}))
			}

			entries, err := s.History(ctx, KindWorkItem, "wi-1")
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.Equal(t, "ready", entries[0].ToState)
			assert.Equal(t, "active", entries[1].ToState)
			assert.Equal(t, "review", entries[2].ToState)
			for _, e := range entries {
				assert.False(t, e.At.IsZero())
			}

			other, err := s.History(ctx, KindWorkItem, "wi-2")
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestMemoryStoreCopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte(`{"v":1}`)
	_, err := s.Put(ctx, KindWorkItem, "wi-1", data, 0)
	require.NoError(t, err)

	// Mutating the caller's slice must not reach stored state.
	data[2] = 'x'
	rec, err := s.Get(ctx, KindWorkItem, "wi-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(rec.Data))

	// Mutating a returned record must not either.
	rec.Data[2] = 'x'
	again, err := s.Get(ctx, KindWorkItem, "wi-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(again.Data))
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trackd.db")

	first, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	_, err = first.Put(ctx, KindWorkItem, "wi-1", []byte(`{"title":"export"}`), 0)
	require.NoError(t, err)
	require.NoError(t, first.AppendHistory(ctx, &TransitionRecord{EntityID: "wi-1", Kind: KindWorkItem, ToState: "ready"}))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer second.Close()

	rec, err := second.Get(ctx, KindWorkItem, "wi-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)

	entries, err := second.History(ctx, KindWorkItem, "wi-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ready", entries[0].ToState)
}

func TestSQLiteStoreRunsInWALMode(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trackd.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	var mode string
	require.NoError(t, s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), KindWorkItem, "wi-1")
	assert.Error(t, err)
	_, err = s.Put(context.Background(), KindWorkItem, "wi-1", nil, 0)
	assert.Error(t, err)
	assert.Error(t, s.Delete(context.Background(), KindWorkItem, "wi-1"))
}
