package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/danielmv/storysmith/internal/db"
	"github.com/danielmv/storysmith/internal/types"
)

// handleCreateRun starts an enhancement run. Batches of up to the sync
// threshold return their items inline; larger batches return the run id with
// status 202 and the caller polls.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req types.EnhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	result, err := s.coordinator.StartRun(r.Context(), &req)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if result.Async {
		status = http.StatusAccepted
	}
	s.jsonResponse(w, status, result)
}

// handleGetRun returns a run record by id
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.parseRunID(w, r)
	if !ok {
		return
	}

	run, err := s.db.GetRun(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "run not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleListRuns returns recent runs, optionally filtered by project and status
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filters := db.RunFilters{
		ProjectID: r.URL.Query().Get("project_id"),
		Status:    r.URL.Query().Get("status"),
	}

	runs, err := s.db.ListRuns(r.Context(), filters)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []types.Run{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleListRunItems returns a run's items with their before/after snapshots
func (s *Server) handleListRunItems(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.parseRunID(w, r)
	if !ok {
		return
	}

	items, err := s.db.ListRunItems(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []types.RunItem{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"items": items})
}

// handleApplyRun writes selected generated items back to the tracker
func (s *Server) handleApplyRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.parseRunID(w, r)
	if !ok {
		return
	}

	var req types.ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	results, summary, err := s.coordinator.Apply(r.Context(), runID, &req)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"results": results,
		"summary": summary,
	})
}

// parseRunID extracts and validates the {id} path parameter
func (s *Server) parseRunID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return runID, true
}
