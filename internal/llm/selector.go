package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// Selector routes Generate calls to a primary provider with an ordered
// fallback chain. Providers are registered by name; selection is guarded by
// a read-write lock so requests and reconfiguration can interleave safely.
type Selector struct {
	mu        sync.RWMutex
	providers map[string]Provider
	primary   string
	fallbacks []string
	logger    *slog.Logger
}

// NewSelector creates an empty provider selector.
func NewSelector(logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider. The first registered provider becomes primary.
func (s *Selector) Register(p Provider) error {
	if p == nil {
		return types.NewError(types.MODEL_UNAVAILABLE, "cannot register nil provider")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := p.Name()
	if _, exists := s.providers[name]; exists {
		return types.NewError(types.MODEL_UNAVAILABLE, fmt.Sprintf("provider %q already registered", name))
	}
	s.providers[name] = p
	if s.primary == "" {
		s.primary = name
	}
	return nil
}

// SetPrimary selects the primary provider by name.
func (s *Selector) SetPrimary(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[name]; !ok {
		return types.NewError(types.MODEL_UNAVAILABLE, fmt.Sprintf("unknown provider %q", name))
	}
	s.primary = name
	return nil
}

// SetFallbacks sets the ordered fallback chain by name.
func (s *Selector) SetFallbacks(names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		if _, ok := s.providers[name]; !ok {
			return types.NewError(types.MODEL_UNAVAILABLE, fmt.Sprintf("unknown provider %q", name))
		}
	}
	s.fallbacks = append([]string(nil), names...)
	return nil
}

// Get returns a registered provider by name.
func (s *Selector) Get(name string) (Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[name]
	return p, ok
}

// chain returns the primary followed by the fallbacks, deduplicated.
func (s *Selector) chain() []Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Provider, 0, 1+len(s.fallbacks))
	seen := make(map[string]bool)
	if p, ok := s.providers[s.primary]; ok {
		out = append(out, p)
		seen[s.primary] = true
	}
	for _, name := range s.fallbacks {
		if seen[name] {
			continue
		}
		if p, ok := s.providers[name]; ok {
			out = append(out, p)
			seen[name] = true
		}
	}
	return out
}

// Generate tries the primary provider, then each fallback in order. The last
// error is returned if every provider fails.
func (s *Selector) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	chain := s.chain()
	if len(chain) == 0 {
		return nil, types.NewError(types.MODEL_UNAVAILABLE, "no model providers registered")
	}

	var lastErr error
	for _, p := range chain {
		resp, err := p.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		s.logger.Warn("model provider failed, trying next",
			"provider", p.Name(), "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, types.WrapRetryableError(types.MODEL_CALL_FAILED, "all model providers failed", lastErr)
}

// Health aggregates provider health: healthy if the primary is healthy,
// degraded if only a fallback is, unhealthy otherwise.
func (s *Selector) Health(ctx context.Context) types.HealthStatus {
	chain := s.chain()
	if len(chain) == 0 {
		return types.NewHealthStatus(types.HealthStateUnhealthy, "no providers registered")
	}
	for i, p := range chain {
		h := p.Health(ctx)
		if h.IsHealthy() {
			if i == 0 {
				return types.NewHealthStatus(types.HealthStateHealthy, "")
			}
			return types.NewHealthStatus(types.HealthStateDegraded,
				fmt.Sprintf("primary unavailable, %s healthy", p.Name()))
		}
	}
	return types.NewHealthStatus(types.HealthStateUnhealthy, "no healthy providers")
}

var _ Provider = (*Selector)(nil)

// Name implements Provider so a Selector can stand anywhere a single
// provider is expected.
func (s *Selector) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primary
}
