package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlinehq/flowline/pkg/schema"
)

type fakeGenerator struct {
	lastReq GenerateRequest
	resp    *GenerateResponse
	err     error
}

func (f *fakeGenerator) GenerateText(_ context.Context, req GenerateRequest) (*GenerateResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestResolveModel(t *testing.T) {
	r := NewRegistry()

	info := r.ResolveModel("gpt-4o")
	require.NotNil(t, info)
	assert.Equal(t, ProviderOpenAI, info.Provider)
	assert.Equal(t, "gpt-4o", info.ModelName)
	assert.Greater(t, info.MaxTokens, 0)

	assert.Nil(t, r.ResolveModel("no-such-model"))
}

func TestIsProviderAvailable(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.IsProviderAvailable(ProviderOpenAI))

	r.RegisterProvider(ProviderOpenAI, &fakeGenerator{})
	assert.True(t, r.IsProviderAvailable(ProviderOpenAI))
}

func TestGenerateTextUnknownModel(t *testing.T) {
	r := NewRegistry()

	_, err := r.GenerateText(context.Background(), "bogus-model", GenerateRequest{UserPrompt: "hi"})
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeProvider, flowErr.Code)
	assert.Contains(t, err.Error(), "unknown model")
}

func TestGenerateTextProviderNotConfigured(t *testing.T) {
	r := NewRegistry()

	_, err := r.GenerateText(context.Background(), "gpt-4o", GenerateRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestGenerateTextAppliesDefaults(t *testing.T) {
	fake := &fakeGenerator{resp: &GenerateResponse{Content: "ok", InputTokens: 3, OutputTokens: 5}}
	r := NewRegistry()
	r.RegisterProvider(ProviderOpenAI, fake)

	resp, err := r.GenerateText(context.Background(), "gpt-4o", GenerateRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	// Registry defaults fill in missing request fields.
	assert.Equal(t, "gpt-4o", fake.lastReq.Model)
	assert.Equal(t, 4096, fake.lastReq.MaxTokens)
	assert.InDelta(t, 0.7, fake.lastReq.Temperature, 1e-9)
}

func TestGenerateTextKeepsExplicitOverrides(t *testing.T) {
	fake := &fakeGenerator{resp: &GenerateResponse{Content: "ok"}}
	r := NewRegistry()
	r.RegisterProvider(ProviderOpenAI, fake)

	_, err := r.GenerateText(context.Background(), "gpt-4o", GenerateRequest{
		UserPrompt:  "hi",
		MaxTokens:   128,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, 128, fake.lastReq.MaxTokens)
	assert.InDelta(t, 0.2, fake.lastReq.Temperature, 1e-9)
}

func TestGenerateTextPropagatesProviderError(t *testing.T) {
	fake := &fakeGenerator{err: errors.New("rate limited")}
	r := NewRegistry()
	r.RegisterProvider(ProviderOpenAI, fake)

	_, err := r.GenerateText(context.Background(), "gpt-4o", GenerateRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRegisterModel(t *testing.T) {
	r := NewRegistry()
	r.RegisterModel("custom-model", ModelInfo{Provider: "custom", ModelName: "custom-v1", MaxTokens: 100})

	info := r.ResolveModel("custom-model")
	require.NotNil(t, info)
	assert.Equal(t, "custom-v1", info.ModelName)
}
