package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowlinehq/flowline/internal/expressions"
	"github.com/flowlinehq/flowline/internal/llm"
	"github.com/flowlinehq/flowline/pkg/schema"
)

// executeAgent resolves the configured model against the registry and
// invokes the provider's text generation. Configuration problems
// (unknown model, unconfigured provider) fail before any network call.
func (e *Executor) executeAgent(ctx context.Context, req Request) *schema.NodeResult {
	var cfg schema.AgentConfig
	if len(req.Node.Data.Config) > 0 {
		if err := json.Unmarshal(req.Node.Data.Config, &cfg); err != nil {
			return failedResult(fmt.Sprintf("invalid aiAgent config: %s", err.Error()))
		}
	}
	if cfg.Model == "" {
		return failedResult("aiAgent node requires a model")
	}
	if e.registry == nil {
		return failedResult("no model registry configured")
	}

	info := e.registry.ResolveModel(cfg.Model)
	if info == nil {
		return failedResult(fmt.Sprintf("unknown model: %s", cfg.Model))
	}
	if !e.registry.IsProviderAvailable(info.Provider) {
		return failedResult(fmt.Sprintf("provider %s is not configured (missing credentials)", info.Provider))
	}

	prompt := expressions.Interpolate(cfg.Prompt, req.Input, req.PreviousOutput, req.Results)

	resp, err := e.registry.GenerateText(ctx, cfg.Model, llm.GenerateRequest{
		SystemPrompt: buildSystemPrompt(cfg.SystemPrompt, req.Env),
		UserPrompt:   prompt,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	})
	if err != nil {
		return failedResult(err.Error())
	}

	return &schema.NodeResult{
		Status:     schema.NodeStatusCompleted,
		Output:     resp.Content,
		TokensUsed: resp.InputTokens + resp.OutputTokens,
	}
}

// buildSystemPrompt prefixes the node's own system prompt with the
// brand profile from the environment context, when present.
func buildSystemPrompt(base string, env *schema.EnvironmentContext) string {
	var parts []string
	if env != nil {
		if env.Name != "" {
			parts = append(parts, fmt.Sprintf("You are writing on behalf of %s.", env.Name))
		}
		if tone := env.ToneOfVoice(); tone != "" {
			parts = append(parts, fmt.Sprintf("Tone of voice: %s.", tone))
		}
		if required := env.RequiredPhrases(); len(required) > 0 {
			parts = append(parts, fmt.Sprintf("Always include these phrases where natural: %s.", strings.Join(required, "; ")))
		}
		if forbidden := env.ForbiddenPhrases(); len(forbidden) > 0 {
			parts = append(parts, fmt.Sprintf("Never use these phrases: %s.", strings.Join(forbidden, "; ")))
		}
	}
	if base != "" {
		parts = append(parts, base)
	}
	return strings.Join(parts, "\n")
}
