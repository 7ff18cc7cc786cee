package providers

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/types"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicProvider implements llm.Provider for Anthropic's Claude models.
type AnthropicProvider struct {
	client *anthropic.LLM
	config llm.ProviderConfig
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg llm.ProviderConfig) (*AnthropicProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, types.NewError(types.MODEL_AUTH_FAILED, "anthropic API key not configured")
	}

	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultAnthropicModel
	}

	client, err := anthropic.New(
		anthropic.WithToken(apiKey),
		anthropic.WithModel(cfg.DefaultModel),
	)
	if err != nil {
		return nil, types.WrapError(types.MODEL_UNAVAILABLE, "anthropic client init failed", err)
	}

	return &AnthropicProvider{client: client, config: cfg}, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Generate sends a completion request.
func (p *AnthropicProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	resp, err := p.client.GenerateContent(ctx, toMessages(req), callOptions(req)...)
	if err != nil {
		return nil, types.WrapRetryableError(types.MODEL_CALL_FAILED, "anthropic completion failed", err)
	}
	return fromContentResponse(resp, p.config.DefaultModel), nil
}

// Health checks the provider with a minimal completion.
func (p *AnthropicProvider) Health(ctx context.Context) types.HealthStatus {
	_, err := p.Generate(ctx, llm.GenerateRequest{Prompt: "ok", MaxTokens: 1})
	if err != nil {
		return types.NewHealthStatus(types.HealthStateUnhealthy, err.Error())
	}
	return types.NewHealthStatus(types.HealthStateHealthy, "")
}

var _ llm.Provider = (*AnthropicProvider)(nil)
