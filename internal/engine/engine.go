// Package engine contains the run scheduler: a polling topological
// walk over the automation graph that executes each node at most once,
// propagates branch skips, and contains node failures.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/flowlinehq/flowline/internal/logging"
	"github.com/flowlinehq/flowline/internal/nodes"
	"github.com/flowlinehq/flowline/internal/streaming"
	"github.com/flowlinehq/flowline/pkg/schema"
)

// SkipMessage is recorded on every node skipped by branch propagation.
// Kept verbatim for dashboard compatibility.
const SkipMessage = "Overgeslagen door conditie"

// Request is one run of a graph against an input.
type Request struct {
	RunID string
	Graph *schema.Graph
	Input string
	Env   *schema.EnvironmentContext
}

// Result is the complete outcome of a run: every visited node's
// terminal result plus the designated output node's value.
type Result struct {
	Results map[string]*schema.NodeResult `json:"results"`
	Output  any                           `json:"output,omitempty"`
}

// Failed reports whether any node in the run failed.
func (r *Result) Failed() bool {
	for _, res := range r.Results {
		if res.Status == schema.NodeStatusFailed {
			return true
		}
	}
	return false
}

// Engine executes automation graphs. One Engine is shared across runs;
// all per-run state lives in Execute's locals.
type Engine struct {
	executor *nodes.Executor
	hub      streaming.EventHub
	logger   *slog.Logger
}

// New creates an engine. hub may be nil when no live event streaming
// is needed.
func New(executor *nodes.Executor, hub streaming.EventHub, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{executor: executor, hub: hub, logger: logger}
}

// Execute runs the graph to completion. Node failures never abort the
// run: they are recorded and execution continues downstream. An error
// is returned only for structural problems (empty or cyclic graph) or
// cancellation between nodes.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	p, err := buildPlan(req.Graph)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithRunID(ctx, req.RunID)
	e.logger.InfoContext(ctx, "run started",
		slog.Int("nodes", len(p.nodes)),
		slog.Int("entry_points", len(p.entryPoints)))

	results := make(map[string]*schema.NodeResult, len(p.nodes))
	visited := make(map[string]bool, len(p.nodes))
	skipped := make(map[string]bool, len(p.nodes))

	queue := make([]string, len(p.entryPoints))
	copy(queue, p.entryPoints)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "run cancelled: %s", err.Error()).WithCause(err)
		}

		id := queue[0]
		queue = queue[1:]

		if visited[id] {
			continue
		}

		// Polling readiness: a dependency is resolved once it is
		// visited or sits in the skip set. Unready nodes go to the
		// back of the queue.
		ready := true
		for _, dep := range p.dependencies[id] {
			if !visited[dep] && !skipped[dep] {
				ready = false
				break
			}
		}
		if !ready {
			queue = append(queue, id)
			continue
		}

		if skipped[id] || shouldSkip(p, id, results, skipped) {
			now := time.Now().UTC()
			results[id] = &schema.NodeResult{
				Status:      schema.NodeStatusSkipped,
				Error:       SkipMessage,
				StartedAt:   now,
				CompletedAt: now,
			}
			visited[id] = true
			skipped[id] = true
			e.publish(ctx, req.RunID, id, schema.EventNodeSkipped, results[id])
			for _, d := range p.dependents[id] {
				queue = append(queue, d.Target)
			}
			continue
		}

		prev := joinDependencyOutputs(p, id, results, skipped)

		e.publish(ctx, req.RunID, id, schema.EventNodeStarted, nil)
		res := e.executor.Execute(ctx, nodes.Request{
			Node:           p.nodes[id],
			Input:          req.Input,
			PreviousOutput: prev,
			Results:        results,
			Env:            req.Env,
		})
		results[id] = res
		visited[id] = true

		switch res.Status {
		case schema.NodeStatusFailed:
			e.logger.WarnContext(logging.WithNodeID(ctx, id), "node failed", slog.String("error", res.Error))
			e.publish(ctx, req.RunID, id, schema.EventNodeFailed, res)
		case schema.NodeStatusSkipped:
			// Unknown-kind executors return skipped; treat like any
			// other skip for downstream propagation.
			skipped[id] = true
			e.publish(ctx, req.RunID, id, schema.EventNodeSkipped, res)
		default:
			e.publish(ctx, req.RunID, id, schema.EventNodeCompleted, res)
		}

		// Branch pruning happens only on a successful boolean
		// evaluation. A failed condition enqueues everything, like any
		// other node. Pruned targets are enqueued too: they are
		// formally recorded as skipped when dequeued, which also
		// propagates the skip to their own descendants.
		if p.nodes[id].Type == schema.NodeKindCondition {
			if outcome, ok := nodes.ConditionResult(res); ok {
				for _, d := range p.dependents[id] {
					switch {
					case d.Branch == schema.BranchDefault,
						d.Branch == schema.BranchTrue && outcome,
						d.Branch == schema.BranchFalse && !outcome:
					default:
						skipped[d.Target] = true
					}
					queue = append(queue, d.Target)
				}
				continue
			}
		}

		for _, d := range p.dependents[id] {
			queue = append(queue, d.Target)
		}
	}

	// Safety net: any node left in the skip set without a recorded
	// result still gets a formal skipped one.
	for _, id := range p.order {
		if skipped[id] && results[id] == nil {
			now := time.Now().UTC()
			results[id] = &schema.NodeResult{
				Status:      schema.NodeStatusSkipped,
				Error:       SkipMessage,
				StartedAt:   now,
				CompletedAt: now,
			}
			e.publish(ctx, req.RunID, id, schema.EventNodeSkipped, results[id])
		}
	}

	out := &Result{
		Results: results,
		Output:  finalOutput(p, results),
	}

	e.logger.InfoContext(ctx, "run finished",
		slog.Int("results", len(results)),
		slog.Bool("has_failures", out.Failed()))

	return out, nil
}

// joinDependencyOutputs builds previousOutput for a node: the outputs
// of its non-skipped dependencies, rendered as strings and joined by
// newlines. Skipped dependencies and empty outputs contribute nothing.
func joinDependencyOutputs(p *plan, id string, results map[string]*schema.NodeResult, skipped map[string]bool) string {
	deps := p.dependencies[id]
	if len(deps) == 0 {
		return ""
	}
	parts := make([]string, 0, len(deps))
	for _, dep := range deps {
		if skipped[dep] {
			continue
		}
		if s := results[dep].OutputString(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// finalOutput returns the first output-kind node's result value, in
// graph order. Nil when the graph has no output node or it was never
// reached.
func finalOutput(p *plan, results map[string]*schema.NodeResult) any {
	for _, id := range p.order {
		if p.nodes[id].Type != schema.NodeKindOutput {
			continue
		}
		if res, ok := results[id]; ok {
			return res.Output
		}
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, runID, nodeID, eventType string, payload any) {
	if e.hub == nil {
		return
	}
	_ = e.hub.Publish(ctx, streaming.StreamEvent{
		RunID:     runID,
		NodeID:    nodeID,
		EventType: eventType,
		Payload:   payload,
	})
}
