package llm

import (
	"context"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// Provider is the interface every AI model backend implements. Backends are
// interchangeable; the engine selects between a primary and fallback provider
// and always has the deterministic stub available for offline operation.
type Provider interface {
	// Name returns the provider name (e.g., "anthropic", "openai", "ollama", "stub").
	Name() string

	// Generate sends a completion request and returns the full response.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// Health checks the health status of the provider and its connectivity.
	Health(ctx context.Context) types.HealthStatus
}

// GenerateRequest carries a prompt plus per-request generation parameters.
type GenerateRequest struct {
	Prompt        string  `json:"prompt"`
	SystemMessage string  `json:"system_message,omitempty"`
	MaxTokens     int     `json:"max_tokens,omitempty"`
	Temperature   float64 `json:"temperature"`
}

// GenerateResponse is the normalized response across all backends.
type GenerateResponse struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	TokensUsed int     `json:"tokens_used"`
	ModelName  string  `json:"model_name"`
}

// ProviderConfig carries the static configuration for a single backend.
type ProviderConfig struct {
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"model"`
	BaseURL      string `mapstructure:"base_url"`
	TimeoutSecs  int    `mapstructure:"timeout_seconds"`
}
