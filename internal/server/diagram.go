package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowlinehq/flowline/internal/diagram"
	"github.com/flowlinehq/flowline/pkg/schema"
)

// handleGraphDiagram renders a stored graph as a Mermaid flowchart or a
// PNG. When run_id is given, that run's node results are overlaid so
// the dashboard can show what happened.
func (s *Server) handleGraphDiagram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	g, err := s.deps.Store.GetGraph(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}

	var results map[string]*schema.NodeResult
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		run, err := s.deps.Store.GetRun(ctx, runID)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		results = run.NodeResults
	}

	model := diagram.FromGraph(g.Name, &g.Definition, results)

	switch r.URL.Query().Get("format") {
	case "png":
		png, err := diagram.RenderImage(model)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	case "json":
		writeJSON(w, http.StatusOK, model)
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(diagram.RenderMermaid(model)))
	}
}
