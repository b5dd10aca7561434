// Package llm resolves model identifiers to providers and dispatches
// text-generation calls. Provider clients are stateless per call and
// safe to share across concurrent runs.
package llm

import "context"

// GenerateRequest carries everything a provider needs for one
// text-generation call. Model is the provider-native model name,
// already resolved from the public model id.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// GenerateResponse is the provider's answer plus token accounting.
type GenerateResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// TextGenerator is the narrow capability the engine needs from an LLM
// provider.
type TextGenerator interface {
	// GenerateText performs a single completion call. Errors are
	// returned verbatim to the caller; no retries happen here.
	GenerateText(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}
