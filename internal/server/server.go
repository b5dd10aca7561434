// Package server exposes the HTTP API: ad-hoc graph runs, saved graph
// management, scheduled jobs, and live run event streams.
package server

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/flowlinehq/flowline/internal/scheduler"
	"github.com/flowlinehq/flowline/internal/store"
	"github.com/flowlinehq/flowline/internal/streaming"
)

// Deps holds the collaborators the HTTP layer needs.
type Deps struct {
	Store     store.Store
	Runs      *RunService
	Hub       streaming.EventHub
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	deps Deps
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", s.handleExecuteRun)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/events", s.handleRunEvents)
		r.Get("/runs/{id}/stream", s.handleRunStream)

		r.Post("/graphs", s.handleCreateGraph)
		r.Get("/graphs", s.handleListGraphs)
		r.Get("/graphs/{id}", s.handleGetGraph)
		r.Delete("/graphs/{id}", s.handleDeleteGraph)
		r.Post("/graphs/validate", s.handleValidateGraph)
		r.Get("/graphs/{id}/diagram", s.handleGraphDiagram)
		r.Post("/graphs/{id}/runs", s.handleRunStoredGraph)

		r.Post("/schedules", s.handleCreateSchedule)
		r.Get("/schedules", s.handleListSchedules)
		r.Get("/schedules/{id}", s.handleGetSchedule)
		r.Patch("/schedules/{id}", s.handleUpdateSchedule)
		r.Delete("/schedules/{id}", s.handleDeleteSchedule)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
