package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flowlinehq/flowline/internal/store"
	"github.com/flowlinehq/flowline/pkg/schema"
)

// handleCreateGraph saves an automation graph for later runs and
// scheduling. Re-posting an existing id updates it in place.
func (s *Server) handleCreateGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		ID          string       `json:"id,omitempty"`
		Name        string       `json:"name"`
		Description string       `json:"description,omitempty"`
		Definition  schema.Graph `json:"definition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := schema.ValidateGraph(&body.Definition); err != nil {
		writeFlowError(w, err)
		return
	}

	if body.ID == "" {
		body.ID = uuid.New().String()
	}

	g := &store.StoredGraph{
		ID:          body.ID,
		Name:        body.Name,
		Description: body.Description,
		Definition:  body.Definition,
	}
	if err := s.deps.Store.CreateGraph(ctx, g); err != nil {
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": g.ID, "name": g.Name})
}

// handleGetGraph returns a stored graph.
func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Store.GetGraph(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleListGraphs lists stored graphs.
func (s *Server) handleListGraphs(w http.ResponseWriter, r *http.Request) {
	graphs, err := s.deps.Store.ListGraphs(r.Context(), store.GraphFilter{
		Name:  r.URL.Query().Get("name"),
		Limit: parseLimit(r, "limit", 50),
	})
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if graphs == nil {
		graphs = []*store.StoredGraph{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"graphs": graphs})
}

// handleDeleteGraph removes a stored graph.
func (s *Server) handleDeleteGraph(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteGraph(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}

// handleValidateGraph checks a graph definition without running or
// saving it. Always returns 200 with a valid flag so the dashboard can
// render violations inline.
func (s *Server) handleValidateGraph(w http.ResponseWriter, r *http.Request) {
	var g schema.Graph
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if err := schema.ValidateGraph(&g); err != nil {
		resp := map[string]any{"valid": false, "error": err.Error()}
		var flowErr *schema.FlowError
		if errors.As(err, &flowErr) && flowErr.Details != nil {
			resp["violations"] = flowErr.Details["violations"]
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}
