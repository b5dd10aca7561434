// Package nodes implements one executor per node kind. Executors know
// nothing about the graph: they consume the interpolator and external
// collaborators and always return a terminal NodeResult.
package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowlinehq/flowline/internal/email"
	"github.com/flowlinehq/flowline/internal/expressions"
	"github.com/flowlinehq/flowline/internal/llm"
	"github.com/flowlinehq/flowline/internal/logging"
	"github.com/flowlinehq/flowline/pkg/schema"
)

// Request is the per-node execution input.
type Request struct {
	Node           schema.Node
	Input          string
	PreviousOutput string
	Results        map[string]*schema.NodeResult
	Env            *schema.EnvironmentContext
}

// SleepFunc pauses for d or until the context is cancelled. Injectable
// so delay nodes are testable without real waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config carries the external collaborators executors depend on.
// HTTPClient and Sleep default when nil.
type Config struct {
	Registry   *llm.Registry
	Email      email.Sender
	HTTPClient *http.Client
	CEL        *expressions.CELEngine
	JQ         *expressions.GoJQEngine
	Logger     *slog.Logger
	Sleep      SleepFunc
}

// Executor dispatches a node to its kind-specific implementation.
// A single Executor is shared across concurrent runs; it holds no
// per-run state.
type Executor struct {
	registry *llm.Registry
	email    email.Sender
	http     *http.Client
	cel      *expressions.CELEngine
	jq       *expressions.GoJQEngine
	logger   *slog.Logger
	sleep    SleepFunc
}

// NewExecutor creates an executor with the given collaborators.
func NewExecutor(cfg Config) *Executor {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepWithContext
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		registry: cfg.Registry,
		email:    cfg.Email,
		http:     cfg.HTTPClient,
		cel:      cfg.CEL,
		jq:       cfg.JQ,
		logger:   cfg.Logger,
		sleep:    cfg.Sleep,
	}
}

// Execute runs one node to a terminal result. It never panics past its
// own boundary: internal panics become a failed result. StartedAt and
// CompletedAt are stamped here for every kind.
func (e *Executor) Execute(ctx context.Context, req Request) (res *schema.NodeResult) {
	started := time.Now().UTC()

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "node executor panic", slog.Any("panic", r))
			res = &schema.NodeResult{
				Status: schema.NodeStatusFailed,
				Error:  fmt.Sprintf("internal executor error: %v", r),
			}
		}
		res.StartedAt = started
		if res.CompletedAt.IsZero() {
			res.CompletedAt = time.Now().UTC()
		}
	}()

	ctx = logging.WithNodeID(ctx, req.Node.ID)
	e.logger.DebugContext(ctx, "executing node", slog.String("kind", string(req.Node.Type)))

	switch req.Node.Type {
	case schema.NodeKindTrigger:
		res = e.executeTrigger(req)
	case schema.NodeKindAIAgent:
		res = e.executeAgent(ctx, req)
	case schema.NodeKindCondition:
		res = e.executeCondition(ctx, req)
	case schema.NodeKindWebhook:
		res = e.executeWebhook(ctx, req)
	case schema.NodeKindDelay:
		res = e.executeDelay(ctx, req)
	case schema.NodeKindEmail:
		res = e.executeEmail(ctx, req)
	case schema.NodeKindOutput:
		res = e.executeOutput(req)
	default:
		// Unknown kinds pass through as skipped so newer graph
		// editors stay compatible with older engines.
		res = &schema.NodeResult{
			Status: schema.NodeStatusSkipped,
			Output: req.PreviousOutput,
		}
	}
	return res
}

// failedResult builds a failed result with the given user-actionable message.
func failedResult(msg string) *schema.NodeResult {
	return &schema.NodeResult{
		Status: schema.NodeStatusFailed,
		Error:  msg,
	}
}

// sleepWithContext is the default SleepFunc.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
