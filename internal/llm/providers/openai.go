package providers

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms/openai"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/types"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider implements llm.Provider for OpenAI models.
type OpenAIProvider struct {
	client *openai.LLM
	config llm.ProviderConfig
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg llm.ProviderConfig) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, types.NewError(types.MODEL_AUTH_FAILED, "openai API key not configured")
	}

	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(cfg.DefaultModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.MODEL_UNAVAILABLE, "openai client init failed", err)
	}

	return &OpenAIProvider{client: client, config: cfg}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends a completion request.
func (p *OpenAIProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	resp, err := p.client.GenerateContent(ctx, toMessages(req), callOptions(req)...)
	if err != nil {
		return nil, types.WrapRetryableError(types.MODEL_CALL_FAILED, "openai completion failed", err)
	}
	return fromContentResponse(resp, p.config.DefaultModel), nil
}

// Health checks the provider with a minimal completion.
func (p *OpenAIProvider) Health(ctx context.Context) types.HealthStatus {
	_, err := p.Generate(ctx, llm.GenerateRequest{Prompt: "ok", MaxTokens: 1})
	if err != nil {
		return types.NewHealthStatus(types.HealthStateUnhealthy, err.Error())
	}
	return types.NewHealthStatus(types.HealthStateHealthy, "")
}

var _ llm.Provider = (*OpenAIProvider)(nil)
