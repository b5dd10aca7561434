package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlinehq/flowline/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedRun(t *testing.T, s *LibSQLStore) *Run {
	t.Helper()
	run := &Run{
		ID:     uuid.New().String(),
		Status: schema.RunStatusPending,
		Input:  "hello",
	}
	require.NoError(t, s.CreateRun(context.Background(), run))
	return run
}

// --- Run Tests ---

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &Run{
		ID:      uuid.New().String(),
		GraphID: "graph-1",
		Status:  schema.RunStatusPending,
		Input:   "new lead: Acme",
		Environment: &schema.EnvironmentContext{
			Name:     "Acme",
			Settings: map[string]any{"tone_of_voice": "friendly"},
		},
	}
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "graph-1", got.GraphID)
	assert.Equal(t, schema.RunStatusPending, got.Status)
	assert.Equal(t, "new lead: Acme", got.Input)
	require.NotNil(t, got.Environment)
	assert.Equal(t, "Acme", got.Environment.Name)
	assert.Equal(t, "friendly", got.Environment.ToneOfVoice())
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "nonexistent")
	require.Error(t, err)
	flowErr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, flowErr.Code)
}

func TestUpdateRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := seedRun(t, s)

	running := schema.RunStatusRunning
	now := time.Now().UTC()
	require.NoError(t, s.UpdateRun(ctx, run.ID, RunUpdate{
		Status:    &running,
		StartedAt: &now,
	}))

	completed := schema.RunStatusCompleted
	require.NoError(t, s.UpdateRun(ctx, run.ID, RunUpdate{
		Status: &completed,
		NodeResults: map[string]*schema.NodeResult{
			"T": {Status: schema.NodeStatusCompleted, Output: "hello"},
		},
		Output:      json.RawMessage(`"hello"`),
		CompletedAt: &now,
	}))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	require.Contains(t, got.NodeResults, "T")
	assert.Equal(t, "hello", got.NodeResults["T"].Output)
	assert.JSONEq(t, `"hello"`, string(got.Output))
}

func TestUpdateRun_InvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := seedRun(t, s)

	// pending -> completed skips running and must be rejected
	completed := schema.RunStatusCompleted
	err := s.UpdateRun(ctx, run.ID, RunUpdate{Status: &completed})
	require.Error(t, err)
	flowErr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeConflict, flowErr.Code)

	// Run is untouched
	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusPending, got.Status)
}

func TestUpdateRun_TerminalStatusFrozen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := seedRun(t, s)

	failed := schema.RunStatusFailed
	require.NoError(t, s.UpdateRun(ctx, run.ID, RunUpdate{Status: &failed}))

	running := schema.RunStatusRunning
	err := s.UpdateRun(ctx, run.ID, RunUpdate{Status: &running})
	require.Error(t, err)
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := &Run{
			ID:      uuid.New().String(),
			GraphID: "graph-1",
			Status:  schema.RunStatusPending,
			Input:   fmt.Sprintf("input %d", i),
		}
		require.NoError(t, s.CreateRun(ctx, run))
	}

	list, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	pending := schema.RunStatusPending
	list, err = s.ListRuns(ctx, RunFilter{Status: &pending, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.ListRuns(ctx, RunFilter{GraphID: "other"})
	require.NoError(t, err)
	assert.Len(t, list, 0)
}

// --- Run Event Tests ---

func TestAppendAndGetRunEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := seedRun(t, s)

	for i := 0; i < 3; i++ {
		e := &RunEvent{
			RunID:   run.ID,
			NodeID:  "T",
			Type:    schema.EventNodeCompleted,
			Payload: json.RawMessage(fmt.Sprintf(`{"attempt":%d}`, i)),
		}
		require.NoError(t, s.AppendRunEvent(ctx, e))
		assert.Equal(t, int64(i+1), e.Sequence)
	}

	events, err := s.GetRunEvents(ctx, run.ID, 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].Sequence)
	assert.Equal(t, int64(3), events[2].Sequence)

	events, err = s.GetRunEvents(ctx, run.ID, 2)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Sequence)
}

func TestRunEventSequencesAreScopedPerRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedRun(t, s)
	b := seedRun(t, s)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.AppendRunEvent(ctx, &RunEvent{RunID: a.ID, Type: schema.EventNodeStarted}))
	}
	e := &RunEvent{RunID: b.ID, Type: schema.EventNodeStarted}
	require.NoError(t, s.AppendRunEvent(ctx, e))
	assert.Equal(t, int64(1), e.Sequence)
}

// --- Graph Tests ---

func testGraphDefinition() schema.Graph {
	return schema.Graph{
		Nodes: []schema.Node{
			{ID: "T", Type: schema.NodeKindTrigger},
			{ID: "O", Type: schema.NodeKindOutput},
		},
		Edges: []schema.Edge{{Source: "T", Target: "O"}},
	}
}

func TestCreateAndGetGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &StoredGraph{
		ID:          uuid.New().String(),
		Name:        "lead-followup",
		Description: "welcome email flow",
		Definition:  testGraphDefinition(),
	}
	require.NoError(t, s.CreateGraph(ctx, g))

	got, err := s.GetGraph(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "lead-followup", got.Name)
	assert.Equal(t, "welcome email flow", got.Description)
	assert.Len(t, got.Definition.Nodes, 2)
	assert.Len(t, got.Definition.Edges, 1)
}

func TestCreateGraph_UpsertsOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &StoredGraph{
		ID:         uuid.New().String(),
		Name:       "v1",
		Definition: testGraphDefinition(),
	}
	require.NoError(t, s.CreateGraph(ctx, g))

	g.Name = "v2"
	require.NoError(t, s.CreateGraph(ctx, g))

	got, err := s.GetGraph(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Name)
}

func TestListAndDeleteGraphs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &StoredGraph{
		ID:         uuid.New().String(),
		Name:       "flow-a",
		Definition: testGraphDefinition(),
	}
	require.NoError(t, s.CreateGraph(ctx, g))

	list, err := s.ListGraphs(ctx, GraphFilter{Name: "flow-a"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteGraph(ctx, g.ID))
	_, err = s.GetGraph(ctx, g.ID)
	require.Error(t, err)

	err = s.DeleteGraph(ctx, g.ID)
	require.Error(t, err)
}

// --- Scheduled Job Tests ---

func TestScheduledJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &ScheduledJob{
		ID:             uuid.New().String(),
		GraphID:        "graph-1",
		CronExpression: "0 9 * * MON",
		Input:          "weekly digest",
		Enabled:        true,
	}
	require.NoError(t, s.CreateScheduledJob(ctx, job))

	got, err := s.GetScheduledJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * MON", got.CronExpression)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.LastRunAt)

	now := time.Now().UTC()
	next := now.Add(7 * 24 * time.Hour)
	require.NoError(t, s.UpdateScheduledJob(ctx, job.ID, ScheduledJobUpdate{
		LastRunAt:     &now,
		NextRunAt:     &next,
		LastRunStatus: string(schema.RunStatusCompleted),
	}))

	got, err = s.GetScheduledJob(ctx, job.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastRunAt)
	assert.NotNil(t, got.NextRunAt)
	assert.Equal(t, "completed", got.LastRunStatus)

	disabled := false
	require.NoError(t, s.UpdateScheduledJob(ctx, job.ID, ScheduledJobUpdate{Enabled: &disabled}))

	enabled := true
	list, err := s.ListScheduledJobs(ctx, ScheduledJobFilter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Len(t, list, 0)

	require.NoError(t, s.DeleteScheduledJob(ctx, job.ID))
	_, err = s.GetScheduledJob(ctx, job.ID)
	require.Error(t, err)
}

// --- Transition Tests ---

func TestValidateRunTransition(t *testing.T) {
	cases := []struct {
		from, to schema.RunStatus
		ok       bool
	}{
		{schema.RunStatusPending, schema.RunStatusRunning, true},
		{schema.RunStatusPending, schema.RunStatusFailed, true},
		{schema.RunStatusRunning, schema.RunStatusCompleted, true},
		{schema.RunStatusRunning, schema.RunStatusFailed, true},
		{schema.RunStatusPending, schema.RunStatusCompleted, false},
		{schema.RunStatusCompleted, schema.RunStatusRunning, false},
		{schema.RunStatusFailed, schema.RunStatusRunning, false},
		{schema.RunStatusCompleted, schema.RunStatusCompleted, true},
	}
	for _, tc := range cases {
		err := ValidateRunTransition(tc.from, tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
		} else {
			assert.Error(t, err, "%s -> %s", tc.from, tc.to)
		}
	}
}

// --- Migration Tests ---

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	// Migrate was already called in newTestStore; calling again should be a no-op.
	require.NoError(t, s.Migrate(context.Background()))
}

func TestMigrateTracksSchemaVersion(t *testing.T) {
	s := newTestStore(t)

	var version int
	require.NoError(t, s.DB().QueryRowContext(context.Background(), "PRAGMA user_version").Scan(&version))
	assert.Equal(t, 1, version)

	// Re-running must not re-apply or regress the version.
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.DB().QueryRowContext(context.Background(), "PRAGMA user_version").Scan(&version))
	assert.Equal(t, 1, version)
}

func TestMigrationNumberParsing(t *testing.T) {
	n, err := migrationNumber("001_initial_schema.sql")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = migrationNumber("no-prefix.sql")
	require.Error(t, err)

	_, err = migrationNumber("abc_schema.sql")
	require.Error(t, err)
}

func TestSQLStatementSplitting(t *testing.T) {
	script := "-- comment\nCREATE TABLE a (\n  id TEXT\n);\n\nCREATE INDEX i ON a(id);\n"
	stmts := sqlStatements(script)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "CREATE INDEX i")
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}
