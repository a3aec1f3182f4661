package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/trackd/internal/coordinator"
	"github.com/fyrsmithlabs/trackd/internal/executor"
	"github.com/fyrsmithlabs/trackd/internal/item"
	"github.com/fyrsmithlabs/trackd/internal/routing"
	"github.com/fyrsmithlabs/trackd/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := store.NewMemoryStore()
	pool := executor.NewPool(executor.PoolConfig{Deadline: time.Second, MaxParallel: 2}, executor.NewDirectory(), nil)
	svc, err := coordinator.NewService(coordinator.DefaultConfig(), st, routing.NewRouter(nil), pool, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = svc.Close()
		_ = st.Close()
	})

	srv, err := NewServer(svc, nil, nil)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
}

func TestCreateAndShowItem(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/items", `{"type":"feature","title":"streaming export"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[item.WorkItem](t, rec)
	assert.Equal(t, item.PhaseDiscovery, created.Phase)
	assert.Equal(t, item.StateDraft, created.State)

	rec = do(t, srv, http.MethodGet, "/api/v1/items/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[coordinator.WorkItemView](t, rec)
	assert.Equal(t, created.ID, view.Item.ID)
	require.NotEmpty(t, view.History)

	rec = do(t, srv, http.MethodGet, "/api/v1/items/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateItemValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/items", `{"type":"epic","title":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/items", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdvanceReturnsBlockReport(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/items", `{"type":"feature","title":"streaming export"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[item.WorkItem](t, rec)

	rec = do(t, srv, http.MethodPost, "/api/v1/items/"+created.ID+"/advance", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	report := decode[coordinator.BlockReport](t, rec)
	assert.Equal(t, created.ID, report.EntityID)
	assert.Equal(t, item.PhasePlanning, report.Target)
	assert.Len(t, report.Missing, 4)
}

func TestAdvancePassesDiscovery(t *testing.T) {
	srv := newTestServer(t)

	body := `{
		"type": "feature",
		"title": "streaming export",
		"justification": "customers need resumable exports for regulatory audits",
		"confidence": 0.8,
		"acceptance_criteria": ["resumes", "chunked", "observable"],
		"risks": ["memory pressure"]
	}`
	rec := do(t, srv, http.MethodPost, "/api/v1/items", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[item.WorkItem](t, rec)

	rec = do(t, srv, http.MethodPost, "/api/v1/items/"+created.ID+"/advance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[coordinator.AdvanceResult](t, rec)
	assert.Equal(t, item.PhasePlanning, result.Item.Phase)
	assert.Equal(t, item.StateReady, result.Item.State)
}

func TestTransitionEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/items", `{"type":"feature","title":"streaming export"}`)
	created := decode[item.WorkItem](t, rec)

	rec = do(t, srv, http.MethodPost, "/api/v1/items/"+created.ID+"/transition", `{"target":"blocked"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	blocked := decode[item.WorkItem](t, rec)
	assert.Equal(t, item.StateBlocked, blocked.State)

	// Phase-bound targets are a conflict, not a validation error.
	rec = do(t, srv, http.MethodPost, "/api/v1/items/"+created.ID+"/transition", `{"target":"ready"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/items/"+created.ID+"/transition", `{"target":"draft"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resumed := decode[item.WorkItem](t, rec)
	assert.Equal(t, item.StateDraft, resumed.State)
}

func TestTaskEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/tasks", `{"type":"chore","title":"rotate tokens","effort":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode[item.Task](t, rec)
	assert.True(t, task.Pooled())

	// Effort past the ceiling is a bad request.
	rec = do(t, srv, http.MethodPost, "/api/v1/tasks", `{"type":"chore","title":"big chore","effort":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPatch, "/api/v1/tasks/"+task.ID, `{"add_blockers":["waiting on infra"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[item.Task](t, rec)
	assert.Equal(t, []string{"waiting on infra"}, updated.Blockers)

	rec = do(t, srv, http.MethodPost, "/api/v1/tasks/"+task.ID+"/transition", `{"target":"ready"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Blockers keep the task out of active.
	rec = do(t, srv, http.MethodPost, "/api/v1/tasks/"+task.ID+"/transition", `{"target":"active"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/backlog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	backlog := decode[[]item.Task](t, rec)
	require.Len(t, backlog, 1)
	assert.Equal(t, task.ID, backlog[0].ID)
}

func TestIdeaEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/ideas", `{"title":"offline mode","summary":"keep working without the server"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	idea := decode[item.Idea](t, rec)
	assert.Equal(t, item.IdeaRaw, idea.State)

	for _, target := range []string{"research", "design", "accepted"} {
		rec = do(t, srv, http.MethodPost, "/api/v1/ideas/"+idea.ID+"/advance", `{"target":"`+target+`"}`)
		require.Equal(t, http.StatusOK, rec.Code, target)
	}

	// Conversion is not reachable through advance.
	rec = do(t, srv, http.MethodPost, "/api/v1/ideas/"+idea.ID+"/advance", `{"target":"converted"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/ideas/"+idea.ID+"/convert", `{"type":"feature"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	wi := decode[item.WorkItem](t, rec)
	assert.Equal(t, "offline mode", wi.Title)
	assert.Equal(t, idea.ID, wi.IdeaID)
}

func TestUpdateItemEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/items", `{"type":"feature","title":"streaming export"}`)
	created := decode[item.WorkItem](t, rec)

	rec = do(t, srv, http.MethodPatch, "/api/v1/items/"+created.ID,
		`{"justification":"customers need resumable exports for audits","confidence":0.9,"add_risks":["memory pressure"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[item.WorkItem](t, rec)
	assert.Equal(t, "customers need resumable exports for audits", updated.Justification)
	assert.InDelta(t, 0.9, updated.Confidence, 1e-9)
	require.Len(t, updated.Risks, 1)
}
