package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flowlinehq/flowline/internal/store"
	"github.com/flowlinehq/flowline/pkg/schema"
)

// handleCreateSchedule registers a cron job for a stored graph.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		GraphID            string                     `json:"graph_id"`
		CronExpression     string                     `json:"cron_expression"`
		Input              string                     `json:"input,omitempty"`
		EnvironmentContext *schema.EnvironmentContext `json:"environmentContext,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.GraphID == "" {
		writeError(w, http.StatusBadRequest, "graph_id is required")
		return
	}
	if err := s.deps.Scheduler.ValidateCron(body.CronExpression); err != nil {
		writeFlowError(w, err)
		return
	}

	// The graph must exist before we schedule it.
	if _, err := s.deps.Store.GetGraph(ctx, body.GraphID); err != nil {
		writeFlowError(w, err)
		return
	}

	next, err := s.deps.Scheduler.CalculateNextRun(body.CronExpression, time.Now().UTC())
	if err != nil {
		writeFlowError(w, err)
		return
	}

	job := &store.ScheduledJob{
		ID:             uuid.New().String(),
		GraphID:        body.GraphID,
		CronExpression: body.CronExpression,
		Input:          body.Input,
		Environment:    body.EnvironmentContext,
		Enabled:        true,
		NextRunAt:      &next,
	}
	if err := s.deps.Store.CreateScheduledJob(ctx, job); err != nil {
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// handleGetSchedule returns a scheduled job.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Store.GetScheduledJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleListSchedules lists scheduled jobs.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	filter := store.ScheduledJobFilter{
		GraphID: r.URL.Query().Get("graph_id"),
		Limit:   parseLimit(r, "limit", 100),
	}
	if raw := r.URL.Query().Get("enabled"); raw == "true" || raw == "false" {
		enabled := raw == "true"
		filter.Enabled = &enabled
	}

	jobs, err := s.deps.Store.ListScheduledJobs(r.Context(), filter)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*store.ScheduledJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": jobs})
}

// handleUpdateSchedule enables or disables a job.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := s.deps.Store.UpdateScheduledJob(r.Context(), id, store.ScheduledJobUpdate{Enabled: body.Enabled}); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}

// handleDeleteSchedule removes a scheduled job.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteScheduledJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}
