package llm

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/schema"
)

// ModelInfo describes a model entry in the registry: which provider
// serves it, the provider-native model name, and generation defaults.
type ModelInfo struct {
	Provider    string
	ModelName   string
	MaxTokens   int
	Temperature float64
}

// ProviderOpenAI is the only provider shipped today; the registry is
// keyed by provider name so more can be registered without touching
// the agent executor.
const ProviderOpenAI = "openai"

// defaultModels maps public model ids to their registry entries.
var defaultModels = map[string]ModelInfo{
	"gpt-4o":       {Provider: ProviderOpenAI, ModelName: "gpt-4o", MaxTokens: 4096, Temperature: 0.7},
	"gpt-4o-mini":  {Provider: ProviderOpenAI, ModelName: "gpt-4o-mini", MaxTokens: 4096, Temperature: 0.7},
	"gpt-4.1":      {Provider: ProviderOpenAI, ModelName: "gpt-4.1", MaxTokens: 8192, Temperature: 0.7},
	"gpt-4.1-mini": {Provider: ProviderOpenAI, ModelName: "gpt-4.1-mini", MaxTokens: 8192, Temperature: 0.7},
	"o3-mini":      {Provider: ProviderOpenAI, ModelName: "o3-mini", MaxTokens: 16384, Temperature: 1.0},
}

// Registry resolves public model ids and dispatches generation calls
// to the owning provider. Construction is the only mutation point, so
// reads need no locking.
type Registry struct {
	models    map[string]ModelInfo
	providers map[string]TextGenerator
}

// NewRegistry builds a registry with the default model table and no
// providers attached. Providers are attached with RegisterProvider.
func NewRegistry() *Registry {
	models := make(map[string]ModelInfo, len(defaultModels))
	for id, info := range defaultModels {
		models[id] = info
	}
	return &Registry{
		models:    models,
		providers: make(map[string]TextGenerator),
	}
}

// RegisterProvider attaches a generator for the named provider.
func (r *Registry) RegisterProvider(name string, gen TextGenerator) {
	r.providers[name] = gen
}

// RegisterModel adds or replaces a model entry.
func (r *Registry) RegisterModel(id string, info ModelInfo) {
	r.models[id] = info
}

// ResolveModel returns the registry entry for a public model id, or
// nil if the id is unknown.
func (r *Registry) ResolveModel(id string) *ModelInfo {
	if info, ok := r.models[id]; ok {
		return &info
	}
	return nil
}

// IsProviderAvailable reports whether the named provider has a
// generator attached (i.e. credentials were configured).
func (r *Registry) IsProviderAvailable(provider string) bool {
	_, ok := r.providers[provider]
	return ok
}

// GenerateText resolves the public model id and forwards the call to
// the owning provider. MaxTokens and Temperature fall back to the
// registry defaults when the request leaves them zero.
func (r *Registry) GenerateText(ctx context.Context, modelID string, req GenerateRequest) (*GenerateResponse, error) {
	info := r.ResolveModel(modelID)
	if info == nil {
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "unknown model: %s", modelID).
			WithDetails(map[string]any{"model": modelID})
	}

	gen, ok := r.providers[info.Provider]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeProvider,
			"provider %s is not configured (missing credentials)", info.Provider).
			WithDetails(map[string]any{"model": modelID, "provider": info.Provider})
	}

	req.Model = info.ModelName
	if req.MaxTokens <= 0 {
		req.MaxTokens = info.MaxTokens
	}
	if req.Temperature <= 0 {
		req.Temperature = info.Temperature
	}

	return gen.GenerateText(ctx, req)
}
