package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/flowlinehq/flowline/pkg/schema"
)

// writeJSON serializes v to the response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFlowError maps a FlowError code to an HTTP status. Non-Flow
// errors become 500s.
func writeFlowError(w http.ResponseWriter, err error) {
	var flowErr *schema.FlowError
	if !errors.As(err, &flowErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch flowErr.Code {
	case schema.ErrCodeValidation, schema.ErrCodeCycleDetected:
		status = http.StatusBadRequest
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeConflict:
		status = http.StatusConflict
	case schema.ErrCodeProvider:
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]any{
		"error":   flowErr.Message,
		"code":    flowErr.Code,
		"node_id": flowErr.NodeID,
	})
}

// parseLimit reads a positive integer query parameter, defaulting to
// def when absent or malformed.
func parseLimit(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > 1000 {
		return 1000
	}
	return n
}
