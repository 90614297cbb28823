package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielmv/storysmith/internal/db"
	"github.com/danielmv/storysmith/internal/runner"
	"github.com/danielmv/storysmith/internal/types"
)

// mockStore is an in-memory RunStore for handler tests.
type mockStore struct {
	runs  map[uuid.UUID]*types.Run
	items map[uuid.UUID][]types.RunItem
}

func newMockStore() *mockStore {
	return &mockStore{
		runs:  map[uuid.UUID]*types.Run{},
		items: map[uuid.UUID][]types.RunItem{},
	}
}

func (m *mockStore) GetRun(_ context.Context, runID uuid.UUID) (*types.Run, error) {
	run, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	return run, nil
}

func (m *mockStore) ListRuns(_ context.Context, filters db.RunFilters) ([]types.Run, error) {
	var runs []types.Run
	for _, run := range m.runs {
		if filters.ProjectID != "" && run.ProjectID != filters.ProjectID {
			continue
		}
		if filters.Status != "" && string(run.Status) != filters.Status {
			continue
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func (m *mockStore) ListRunItems(_ context.Context, runID uuid.UUID) ([]types.RunItem, error) {
	return m.items[runID], nil
}

func (m *mockStore) Close() {}

// mockCoordinator records the last request and returns canned results.
type mockCoordinator struct {
	startResult *runner.StartResult
	startErr    error
	lastStart   *types.EnhanceRequest

	applyResults []types.ApplyResult
	applyErr     error
	lastApplyRun uuid.UUID
}

func (m *mockCoordinator) StartRun(_ context.Context, req *types.EnhanceRequest) (*runner.StartResult, error) {
	m.lastStart = req
	return m.startResult, m.startErr
}

func (m *mockCoordinator) Apply(_ context.Context, runID uuid.UUID, _ *types.ApplyRequest) ([]types.ApplyResult, types.ApplySummary, error) {
	m.lastApplyRun = runID
	return m.applyResults, types.Summarize(m.applyResults), m.applyErr
}

func newTestServer(store *mockStore, coordinator *mockCoordinator) *Server {
	return New(Config{Port: 0}, store, coordinator)
}

func serve(s *Server, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func TestCreateRunSynchronousBatch(t *testing.T) {
	coordinator := &mockCoordinator{
		startResult: &runner.StartResult{
			RunID: uuid.New(),
			Items: []types.RunItem{{SourceItemID: "101", Status: types.ItemGenerated}},
		},
	}
	s := newTestServer(newMockStore(), coordinator)

	w := serve(s, http.MethodPost, "/runs", strings.NewReader(
		`{"project_id": "proj", "item_ids": ["101"]}`,
	))
	assert.Equal(t, http.StatusOK, w.Code)

	var result runner.StartResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.False(t, result.Async)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "101", result.Items[0].SourceItemID)

	require.NotNil(t, coordinator.lastStart)
	assert.Equal(t, "proj", coordinator.lastStart.ProjectID)
}

func TestCreateRunLargeBatchAccepted(t *testing.T) {
	coordinator := &mockCoordinator{
		startResult: &runner.StartResult{RunID: uuid.New(), Async: true},
	}
	s := newTestServer(newMockStore(), coordinator)

	w := serve(s, http.MethodPost, "/runs", strings.NewReader(
		`{"project_id": "proj", "item_ids": ["1", "2", "3", "4", "5", "6"]}`,
	))
	assert.Equal(t, http.StatusAccepted, w.Code)

	var result runner.StartResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.True(t, result.Async)
	assert.Empty(t, result.Items)
}

func TestCreateRunRejectsInvalidJSON(t *testing.T) {
	s := newTestServer(newMockStore(), &mockCoordinator{})

	w := serve(s, http.MethodPost, "/runs", strings.NewReader(`{not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRunRejectsEmptyItemList(t *testing.T) {
	coordinator := &mockCoordinator{}
	s := newTestServer(newMockStore(), coordinator)

	w := serve(s, http.MethodPost, "/runs", strings.NewReader(
		`{"project_id": "proj", "item_ids": []}`,
	))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, coordinator.lastStart, "invalid requests never reach the coordinator")
}

func TestCreateRunReportsCoordinatorFailure(t *testing.T) {
	coordinator := &mockCoordinator{startErr: errors.New("database is down")}
	s := newTestServer(newMockStore(), coordinator)

	w := serve(s, http.MethodPost, "/runs", strings.NewReader(
		`{"project_id": "proj", "item_ids": ["101"]}`,
	))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "database is down")
}

func TestGetRunFound(t *testing.T) {
	store := newMockStore()
	runID := uuid.New()
	store.runs[runID] = &types.Run{ID: runID, ProjectID: "proj", Status: types.RunCompleted}
	s := newTestServer(store, &mockCoordinator{})

	w := serve(s, http.MethodGet, "/runs/"+runID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var run types.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&run))
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, types.RunCompleted, run.Status)
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestServer(newMockStore(), &mockCoordinator{})

	w := serve(s, http.MethodGet, "/runs/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRunRejectsMalformedID(t *testing.T) {
	s := newTestServer(newMockStore(), &mockCoordinator{})

	w := serve(s, http.MethodGet, "/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid run id")
}

func TestListRunsEmptyIsJSONArray(t *testing.T) {
	s := newTestServer(newMockStore(), &mockCoordinator{})

	w := serve(s, http.MethodGet, "/runs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runs": []}`, w.Body.String())
}

func TestListRunsFiltersByProject(t *testing.T) {
	store := newMockStore()
	matching := uuid.New()
	store.runs[matching] = &types.Run{ID: matching, ProjectID: "proj-a", Status: types.RunCompleted}
	other := uuid.New()
	store.runs[other] = &types.Run{ID: other, ProjectID: "proj-b", Status: types.RunCompleted}
	s := newTestServer(store, &mockCoordinator{})

	w := serve(s, http.MethodGet, "/runs?project_id=proj-a", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Runs []types.Run `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payload))
	require.Len(t, payload.Runs, 1)
	assert.Equal(t, matching, payload.Runs[0].ID)
}

func TestListRunItems(t *testing.T) {
	store := newMockStore()
	runID := uuid.New()
	store.items[runID] = []types.RunItem{
		{RunID: runID, SourceItemID: "101", Status: types.ItemGenerated},
		{RunID: runID, SourceItemID: "102", Status: types.ItemRejected, Error: "fetch failed"},
	}
	s := newTestServer(store, &mockCoordinator{})

	w := serve(s, http.MethodGet, "/runs/"+runID.String()+"/items", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Items []types.RunItem `json:"items"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payload))
	require.Len(t, payload.Items, 2)
	assert.Equal(t, "101", payload.Items[0].SourceItemID)
	assert.Equal(t, types.ItemRejected, payload.Items[1].Status)
}

func TestApplyRunReturnsResultsAndSummary(t *testing.T) {
	coordinator := &mockCoordinator{
		applyResults: []types.ApplyResult{
			{ItemID: "101", Success: true, SubtasksCreated: 2},
			{ItemID: "102", Error: "patch rejected"},
		},
	}
	s := newTestServer(newMockStore(), coordinator)

	runID := uuid.New()
	w := serve(s, http.MethodPost, "/runs/"+runID.String()+"/apply", strings.NewReader(
		`{"selected_item_ids": ["101", "102"], "selected_fields": ["title"], "create_tasks": true}`,
	))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, runID, coordinator.lastApplyRun)

	var payload struct {
		Results []types.ApplyResult `json:"results"`
		Summary types.ApplySummary  `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payload))
	require.Len(t, payload.Results, 2)
	assert.Equal(t, 2, payload.Summary.Total)
	assert.Equal(t, 1, payload.Summary.Succeeded)
	assert.Equal(t, 1, payload.Summary.Failed)
	assert.Equal(t, 2, payload.Summary.SubtasksCreated)
}

func TestApplyRunRejectsUnknownField(t *testing.T) {
	s := newTestServer(newMockStore(), &mockCoordinator{})

	w := serve(s, http.MethodPost, "/runs/"+uuid.New().String()+"/apply", strings.NewReader(
		`{"selected_item_ids": ["101"], "selected_fields": ["priority"]}`,
	))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(newMockStore(), &mockCoordinator{})

	w := serve(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}
