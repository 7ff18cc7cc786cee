package providers

import (
	"context"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/types"
)

const defaultOllamaModel = "llama3.2"

// OllamaProvider implements llm.Provider for local models served by Ollama.
type OllamaProvider struct {
	client *ollama.LLM
	config llm.ProviderConfig
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(cfg llm.ProviderConfig) (*OllamaProvider, error) {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultOllamaModel
	}

	opts := []ollama.Option{
		ollama.WithModel(cfg.DefaultModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}

	client, err := ollama.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.MODEL_UNAVAILABLE, "ollama client init failed", err)
	}

	return &OllamaProvider{client: client, config: cfg}, nil
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Generate sends a completion request.
func (p *OllamaProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	resp, err := p.client.GenerateContent(ctx, toMessages(req), callOptions(req)...)
	if err != nil {
		return nil, types.WrapRetryableError(types.MODEL_CALL_FAILED, "ollama completion failed", err)
	}
	return fromContentResponse(resp, p.config.DefaultModel), nil
}

// Health checks connectivity to the local server.
func (p *OllamaProvider) Health(ctx context.Context) types.HealthStatus {
	_, err := p.Generate(ctx, llm.GenerateRequest{Prompt: "ok", MaxTokens: 1})
	if err != nil {
		return types.NewHealthStatus(types.HealthStateUnhealthy, err.Error())
	}
	return types.NewHealthStatus(types.HealthStateHealthy, "")
}

var _ llm.Provider = (*OllamaProvider)(nil)
