package schema

import (
	"encoding/json"
	"time"
)

// NodeStatus is the terminal outcome recorded for a node within a run.
// A node is "pending" only by absence from the results map; once a
// result exists its status never changes.
type NodeStatus string

const (
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// RunStatus is the lifecycle state of a whole run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// NodeResult is the terminal outcome of a single node execution.
// Output is a string for text-producing nodes and a structured value
// (map/slice) for nodes like condition and webhook.
type NodeResult struct {
	Status      NodeStatus `json:"status"`
	Output      any        `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt time.Time  `json:"completedAt"`
	TokensUsed  int        `json:"tokensUsed,omitempty"`
}

// OutputString renders the result output as a string: string outputs
// verbatim, structured outputs JSON-serialized, nil as "".
func (r *NodeResult) OutputString() string {
	if r == nil || r.Output == nil {
		return ""
	}
	if s, ok := r.Output.(string); ok {
		return s
	}
	b, err := json.Marshal(r.Output)
	if err != nil {
		return ""
	}
	return string(b)
}
