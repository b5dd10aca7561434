package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flowlinehq/flowline/internal/store"
	"github.com/flowlinehq/flowline/pkg/schema"
)

// executeRunRequest is the ad-hoc run payload: an inline graph plus the
// initial input.
type executeRunRequest struct {
	Nodes              []schema.Node              `json:"nodes"`
	Edges              []schema.Edge              `json:"edges"`
	Input              string                     `json:"input"`
	EnvironmentContext *schema.EnvironmentContext `json:"environmentContext,omitempty"`
}

// executeRunResponse mirrors what the dashboard renders: the run id,
// every node's terminal result, and the output node's value.
type executeRunResponse struct {
	RunID   string                        `json:"run_id"`
	Status  schema.RunStatus              `json:"status"`
	Results map[string]*schema.NodeResult `json:"results"`
	Output  any                           `json:"output,omitempty"`
	Error   string                        `json:"error,omitempty"`
}

// handleExecuteRun runs an inline graph synchronously.
func (s *Server) handleExecuteRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body executeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	g := &schema.Graph{Nodes: body.Nodes, Edges: body.Edges}
	if err := schema.ValidateGraph(g); err != nil {
		writeFlowError(w, err)
		return
	}

	run, err := s.deps.Runs.Run(ctx, "", g, body.Input, body.EnvironmentContext)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runToResponse(run))
}

// handleRunStoredGraph runs a saved graph by id.
func (s *Server) handleRunStoredGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	graphID := chi.URLParam(r, "id")

	var body struct {
		Input              string                     `json:"input"`
		EnvironmentContext *schema.EnvironmentContext `json:"environmentContext,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	g, err := s.deps.Store.GetGraph(ctx, graphID)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	run, err := s.deps.Runs.Run(ctx, graphID, &g.Definition, body.Input, body.EnvironmentContext)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runToResponse(run))
}

func runToResponse(run *store.Run) executeRunResponse {
	resp := executeRunResponse{
		RunID:   run.ID,
		Status:  run.Status,
		Results: run.NodeResults,
		Error:   run.ErrorMessage,
	}
	if len(run.Output) > 0 {
		var out any
		if err := json.Unmarshal(run.Output, &out); err == nil {
			resp.Output = out
		}
	}
	return resp
}

// handleGetRun returns a stored run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleListRuns lists runs, optionally filtered by status or graph.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		GraphID: r.URL.Query().Get("graph_id"),
		Limit:   parseLimit(r, "limit", 50),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := schema.RunStatus(raw)
		filter.Status = &status
	}

	runs, err := s.deps.Store.ListRuns(r.Context(), filter)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleRunEvents returns the persisted event log for a run.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, _ = strconv.ParseInt(raw, 10, 64)
	}

	events, err := s.deps.Store.GetRunEvents(r.Context(), runID, since)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if events == nil {
		events = []*store.RunEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
