package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlinehq/flowline/internal/expressions"
	"github.com/flowlinehq/flowline/internal/llm"
	"github.com/flowlinehq/flowline/pkg/schema"
)

func TestAgentUnknownModelFailsWithoutCall(t *testing.T) {
	exec, deps := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node: node("a", schema.NodeKindAIAgent, schema.AgentConfig{Model: "made-up-model", Prompt: "hi"}),
	})
	assert.Equal(t, schema.NodeStatusFailed, res.Status)
	assert.Contains(t, res.Error, "unknown model")
	assert.Equal(t, 0, deps.gen.calls)
}

func TestAgentUnconfiguredProviderFailsWithoutCall(t *testing.T) {
	registry := llm.NewRegistry() // no providers attached
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	exec := NewExecutor(Config{Registry: registry, CEL: cel})

	res := exec.Execute(context.Background(), Request{
		Node: node("a", schema.NodeKindAIAgent, schema.AgentConfig{Model: "gpt-4o", Prompt: "hi"}),
	})
	assert.Equal(t, schema.NodeStatusFailed, res.Status)
	assert.Contains(t, res.Error, "not configured")
}

func TestAgentMissingModelFails(t *testing.T) {
	exec, deps := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node: node("a", schema.NodeKindAIAgent, schema.AgentConfig{Prompt: "hi"}),
	})
	assert.Equal(t, schema.NodeStatusFailed, res.Status)
	assert.Contains(t, res.Error, "model")
	assert.Equal(t, 0, deps.gen.calls)
}

func TestAgentGeneratesWithInterpolatedPrompt(t *testing.T) {
	exec, deps := newTestExecutor(t)

	results := map[string]*schema.NodeResult{
		"fetch": {Status: schema.NodeStatusCompleted, Output: "fetched data"},
	}

	res := exec.Execute(context.Background(), Request{
		Node: node("a", schema.NodeKindAIAgent, schema.AgentConfig{
			Model:  "gpt-4o",
			Prompt: "Summarize {{node_fetch_output}} for {{input}}",
		}),
		Input:   "Acme",
		Results: results,
	})
	require.Equal(t, schema.NodeStatusCompleted, res.Status)
	assert.Equal(t, "generated text", res.Output)
	assert.Equal(t, 30, res.TokensUsed)
	assert.Equal(t, "Summarize fetched data for Acme", deps.gen.lastReq.UserPrompt)
}

func TestAgentInjectsBrandProfile(t *testing.T) {
	exec, deps := newTestExecutor(t)

	env := &schema.EnvironmentContext{
		Name: "Acme Corp",
		Settings: map[string]any{
			"tone_of_voice":     "friendly but professional",
			"required_phrases":  []any{"Acme quality"},
			"forbidden_phrases": []any{"cheap"},
		},
	}

	res := exec.Execute(context.Background(), Request{
		Node: node("a", schema.NodeKindAIAgent, schema.AgentConfig{
			Model:        "gpt-4o",
			Prompt:       "write a post",
			SystemPrompt: "Keep it short.",
		}),
		Env: env,
	})
	require.Equal(t, schema.NodeStatusCompleted, res.Status)

	sys := deps.gen.lastReq.SystemPrompt
	assert.Contains(t, sys, "Acme Corp")
	assert.Contains(t, sys, "friendly but professional")
	assert.Contains(t, sys, "Acme quality")
	assert.Contains(t, sys, "cheap")
	assert.Contains(t, sys, "Keep it short.")
}

func TestAgentProviderErrorFails(t *testing.T) {
	exec, deps := newTestExecutor(t)
	deps.gen.err = errors.New("model overloaded")

	res := exec.Execute(context.Background(), Request{
		Node: node("a", schema.NodeKindAIAgent, schema.AgentConfig{Model: "gpt-4o", Prompt: "hi"}),
	})
	assert.Equal(t, schema.NodeStatusFailed, res.Status)
	assert.Contains(t, res.Error, "model overloaded")
}

func TestAgentConfigOverridesRegistryDefaults(t *testing.T) {
	exec, deps := newTestExecutor(t)

	res := exec.Execute(context.Background(), Request{
		Node: node("a", schema.NodeKindAIAgent, schema.AgentConfig{
			Model:       "gpt-4o",
			Prompt:      "hi",
			MaxTokens:   256,
			Temperature: 0.1,
		}),
	})
	require.Equal(t, schema.NodeStatusCompleted, res.Status)
	assert.Equal(t, 256, deps.gen.lastReq.MaxTokens)
	assert.InDelta(t, 0.1, deps.gen.lastReq.Temperature, 1e-9)
}
