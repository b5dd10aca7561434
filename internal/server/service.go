package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowlinehq/flowline/internal/engine"
	"github.com/flowlinehq/flowline/internal/store"
	"github.com/flowlinehq/flowline/internal/streaming"
	"github.com/flowlinehq/flowline/pkg/schema"
)

// RunService orchestrates one graph run: it records the run in the
// store, drives the engine, and persists the event trail. It also
// satisfies scheduler.GraphRunner for cron-triggered runs.
type RunService struct {
	store  store.Store
	engine *engine.Engine
	hub    streaming.EventHub
	logger *slog.Logger
}

// NewRunService creates a RunService. hub may be nil; the event trail
// is then limited to run lifecycle events.
func NewRunService(s store.Store, eng *engine.Engine, hub streaming.EventHub, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{store: s, engine: eng, hub: hub, logger: logger}
}

// Run executes a graph synchronously and returns the finished run
// record. Node failures do not produce an error; they mark the run
// failed. An error is returned for structural problems (invalid or
// cyclic graph) or store failures.
func (s *RunService) Run(ctx context.Context, graphID string, g *schema.Graph, input string, env *schema.EnvironmentContext) (*store.Run, error) {
	runID := uuid.New().String()

	run := &store.Run{
		ID:          runID,
		GraphID:     graphID,
		Status:      schema.RunStatusPending,
		Input:       input,
		Environment: env,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "create run: %s", err.Error()).WithCause(err)
	}

	now := time.Now().UTC()
	running := schema.RunStatusRunning
	if err := s.store.UpdateRun(ctx, runID, store.RunUpdate{Status: &running, StartedAt: &now}); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "start run: %s", err.Error()).WithCause(err)
	}
	s.appendEvent(ctx, runID, "", schema.EventRunStarted, nil)

	// Persist node events as the engine publishes them.
	stopTrail := s.startEventTrail(ctx, runID)

	result, execErr := s.engine.Execute(ctx, engine.Request{
		RunID: runID,
		Graph: g,
		Input: input,
		Env:   env,
	})
	stopTrail()

	if execErr != nil {
		failed := schema.RunStatusFailed
		msg := execErr.Error()
		completed := time.Now().UTC()
		_ = s.store.UpdateRun(ctx, runID, store.RunUpdate{
			Status:       &failed,
			ErrorMessage: &msg,
			CompletedAt:  &completed,
		})
		s.appendEvent(ctx, runID, "", schema.EventRunFailed, map[string]string{"error": msg})
		return nil, execErr
	}

	status := schema.RunStatusCompleted
	eventType := schema.EventRunCompleted
	if result.Failed() {
		status = schema.RunStatusFailed
		eventType = schema.EventRunFailed
	}

	var output json.RawMessage
	if result.Output != nil {
		if b, err := json.Marshal(result.Output); err == nil {
			output = b
		}
	}

	completed := time.Now().UTC()
	if err := s.store.UpdateRun(ctx, runID, store.RunUpdate{
		Status:      &status,
		NodeResults: result.Results,
		Output:      output,
		CompletedAt: &completed,
	}); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "finish run: %s", err.Error()).WithCause(err)
	}
	s.appendEvent(ctx, runID, "", eventType, nil)

	return s.store.GetRun(ctx, runID)
}

// RunStoredGraph loads a saved graph and runs it. Used by the scheduler.
func (s *RunService) RunStoredGraph(ctx context.Context, graphID, input string, env *schema.EnvironmentContext) (schema.RunStatus, error) {
	g, err := s.store.GetGraph(ctx, graphID)
	if err != nil {
		return schema.RunStatusFailed, err
	}
	run, err := s.Run(ctx, graphID, &g.Definition, input, env)
	if err != nil {
		return schema.RunStatusFailed, err
	}
	return run.Status, nil
}

// startEventTrail subscribes to the hub for this run and copies every
// event into the store's append-only log. The returned stop function
// drains remaining buffered events before returning.
func (s *RunService) startEventTrail(ctx context.Context, runID string) func() {
	if s.hub == nil {
		return func() {}
	}
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{RunID: runID})
	if err != nil {
		s.logger.Warn("event trail subscribe failed", slog.String("error", err.Error()))
		return func() {}
	}

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev := <-ch:
				s.appendEvent(ctx, ev.RunID, ev.NodeID, ev.EventType, ev.Payload)
			case <-quit:
				// cancel unregisters the subscriber but does not close
				// the channel; drain whatever was already buffered.
				for {
					select {
					case ev := <-ch:
						s.appendEvent(ctx, ev.RunID, ev.NodeID, ev.EventType, ev.Payload)
					default:
						return
					}
				}
			}
		}
	}()

	return func() {
		cancel()
		close(quit)
		<-done
	}
}

func (s *RunService) appendEvent(ctx context.Context, runID, nodeID, eventType string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	err := s.store.AppendRunEvent(ctx, &store.RunEvent{
		RunID:   runID,
		NodeID:  nodeID,
		Type:    eventType,
		Payload: raw,
	})
	if err != nil {
		s.logger.Warn("append run event failed",
			slog.String("run_id", runID),
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
	}
}
