package schema

import "encoding/json"

// Graph is the JSON-serializable automation graph format. The dashboard
// submits it inline on run requests or stores it for scheduled execution.
type Graph struct {
	Nodes    []Node         `json:"nodes"`
	Edges    []Edge         `json:"edges"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Node is a single unit of work in an automation graph.
type Node struct {
	ID   string   `json:"id"`
	Type NodeKind `json:"type"`
	Data NodeData `json:"data"`
}

// NodeData carries the display label and the kind-specific configuration.
// Config is a tagged union keyed by the node's type; each executor
// unmarshals its own config struct.
type NodeData struct {
	Label  string          `json:"label,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

// NodeKind enumerates the kinds of nodes in an automation graph.
// Unrecognized kinds are executed as a skip (forward compatibility).
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindAIAgent   NodeKind = "aiAgent"
	NodeKindCondition NodeKind = "condition"
	NodeKindWebhook   NodeKind = "webhook"
	NodeKindDelay     NodeKind = "delay"
	NodeKindEmail     NodeKind = "email"
	NodeKindOutput    NodeKind = "output"
)

// Edge is a directed dependency: Target depends on Source.
type Edge struct {
	Source       string    `json:"source"`
	Target       string    `json:"target"`
	SourceHandle string    `json:"sourceHandle,omitempty"`
	Data         *EdgeData `json:"data,omitempty"`
}

// EdgeData carries the optional explicit branch tag.
type EdgeData struct {
	Branch Branch `json:"branch,omitempty"`
}

// Branch is the conditional-execution path tag on an edge.
type Branch string

const (
	BranchTrue    Branch = "true"
	BranchFalse   Branch = "false"
	BranchDefault Branch = "default"
)

// AgentConfig is the config block for aiAgent nodes.
type AgentConfig struct {
	Model        string  `json:"model"`
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
	MaxTokens    int     `json:"maxTokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// ConditionConfig is the config block for condition nodes.
// Mode "expression" evaluates a CEL expression; the other modes compare
// the previous output against Condition directly.
type ConditionConfig struct {
	Mode          string `json:"mode,omitempty"` // contains | equals | not_equals | regex | expression
	Condition     string `json:"condition"`
	CaseSensitive bool   `json:"caseSensitive,omitempty"`
}

// WebhookConfig is the config block for webhook nodes.
type WebhookConfig struct {
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"` // default POST
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`      // template, default {{previous_output}}
	Transform string            `json:"transform,omitempty"` // jq expression over the parsed response body
}

// DelayConfig is the config block for delay nodes. Duration is in
// seconds and is capped at 60 regardless of the configured value.
type DelayConfig struct {
	Duration float64 `json:"duration"`
}

// EmailConfig is the config block for email nodes.
type EmailConfig struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
}

// EnvironmentContext is the brand/compliance profile injected into
// AI-agent system prompts. Settings is treated as an opaque object and
// passed through unchanged; well-known keys (tone_of_voice,
// required_phrases, forbidden_phrases) are read when present.
type EnvironmentContext struct {
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings,omitempty"`
}

// ToneOfVoice returns the brand tone-of-voice setting, or "".
func (e *EnvironmentContext) ToneOfVoice() string {
	if e == nil {
		return ""
	}
	s, _ := e.Settings["tone_of_voice"].(string)
	return s
}

// RequiredPhrases returns the brand's required phrase list.
func (e *EnvironmentContext) RequiredPhrases() []string {
	return e.phraseList("required_phrases")
}

// ForbiddenPhrases returns the brand's forbidden phrase list.
func (e *EnvironmentContext) ForbiddenPhrases() []string {
	return e.phraseList("forbidden_phrases")
}

func (e *EnvironmentContext) phraseList(key string) []string {
	if e == nil {
		return nil
	}
	raw, ok := e.Settings[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
