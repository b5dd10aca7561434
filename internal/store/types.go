package store

import (
	"encoding/json"
	"time"

	"github.com/flowlinehq/flowline/pkg/schema"
)

// Run is the persisted record of one graph execution.
type Run struct {
	ID           string                        `json:"id"`
	GraphID      string                        `json:"graph_id,omitempty"`
	Status       schema.RunStatus              `json:"status"`
	Input        string                        `json:"input"`
	Environment  *schema.EnvironmentContext    `json:"environment,omitempty"`
	NodeResults  map[string]*schema.NodeResult `json:"node_results,omitempty"`
	Output       json.RawMessage               `json:"output,omitempty"`
	ErrorMessage string                        `json:"error_message,omitempty"`
	CreatedAt    time.Time                     `json:"created_at"`
	StartedAt    *time.Time                    `json:"started_at,omitempty"`
	CompletedAt  *time.Time                    `json:"completed_at,omitempty"`
	UpdatedAt    time.Time                     `json:"updated_at"`
}

// RunUpdate specifies mutable fields of a run. Nil fields are left
// untouched.
type RunUpdate struct {
	Status       *schema.RunStatus             `json:"status,omitempty"`
	NodeResults  map[string]*schema.NodeResult `json:"node_results,omitempty"`
	Output       json.RawMessage               `json:"output,omitempty"`
	ErrorMessage *string                       `json:"error_message,omitempty"`
	StartedAt    *time.Time                    `json:"started_at,omitempty"`
	CompletedAt  *time.Time                    `json:"completed_at,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  *schema.RunStatus `json:"status,omitempty"`
	GraphID string            `json:"graph_id,omitempty"`
	Since   *time.Time        `json:"since,omitempty"`
	Limit   int               `json:"limit,omitempty"`
	Offset  int               `json:"offset,omitempty"`
}

// RunEvent is an immutable entry in a run's append-only event log.
type RunEvent struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	NodeID    string          `json:"node_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// StoredGraph is a saved automation graph, referenced by scheduled jobs
// and runnable by id.
type StoredGraph struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Definition  schema.Graph `json:"definition"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// GraphFilter specifies criteria for listing graphs.
type GraphFilter struct {
	Name   string `json:"name,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ScheduledJob is a cron-triggered execution of a stored graph.
type ScheduledJob struct {
	ID             string                     `json:"id"`
	GraphID        string                     `json:"graph_id"`
	CronExpression string                     `json:"cron_expression"`
	Input          string                     `json:"input,omitempty"`
	Environment    *schema.EnvironmentContext `json:"environment,omitempty"`
	Enabled        bool                       `json:"enabled"`
	LastRunAt      *time.Time                 `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time                 `json:"next_run_at,omitempty"`
	LastRunStatus  string                     `json:"last_run_status,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled *bool  `json:"enabled,omitempty"`
	GraphID string `json:"graph_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}
