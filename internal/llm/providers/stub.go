package providers

import (
	"context"
	"strings"
	"sync"

	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/types"
)

// StubProvider is a deterministic llm.Provider for offline operation and
// tests. Responses are selected by substring match on the prompt, in
// registration order, with an optional default response.
type StubProvider struct {
	mu       sync.Mutex
	rules    []stubRule
	fallback string
	err      error

	// Requests records every prompt seen, for assertions.
	Requests []llm.GenerateRequest
}

type stubRule struct {
	substring string
	response  string
}

// NewStubProvider creates a stub with the given default response.
func NewStubProvider(fallback string) *StubProvider {
	return &StubProvider{fallback: fallback}
}

// Respond registers a canned response for prompts containing substring.
func (p *StubProvider) Respond(substring, response string) *StubProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, stubRule{substring: substring, response: response})
	return p
}

// FailWith makes every Generate call return err until cleared with nil.
func (p *StubProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Name returns the provider name.
func (p *StubProvider) Name() string {
	return "stub"
}

// Generate returns the first matching canned response.
func (p *StubProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.err != nil {
		return nil, p.err
	}
	content := p.fallback
	for _, rule := range p.rules {
		if strings.Contains(req.Prompt, rule.substring) {
			content = rule.response
			break
		}
	}
	return &llm.GenerateResponse{
		Content:    content,
		Confidence: 1.0,
		TokensUsed: len(strings.Fields(content)),
		ModelName:  "stub",
	}, nil
}

// Health always reports healthy; the stub has no external dependency.
func (p *StubProvider) Health(ctx context.Context) types.HealthStatus {
	return types.NewHealthStatus(types.HealthStateHealthy, "deterministic stub")
}

var _ llm.Provider = (*StubProvider)(nil)
