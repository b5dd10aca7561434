package store

import "context"

// RunRecorder is the narrow interface the execution path needs: it
// owns run storage while the engine only knows the run's identity.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	GetRun(ctx context.Context, id string) (*Run, error)
}

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	RunRecorder

	// Runs
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// Run event log (append-only)
	AppendRunEvent(ctx context.Context, event *RunEvent) error
	GetRunEvents(ctx context.Context, runID string, since int64) ([]*RunEvent, error)

	// Graphs
	CreateGraph(ctx context.Context, g *StoredGraph) error
	GetGraph(ctx context.Context, id string) (*StoredGraph, error)
	ListGraphs(ctx context.Context, filter GraphFilter) ([]*StoredGraph, error)
	DeleteGraph(ctx context.Context, id string) error

	// Scheduled jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
