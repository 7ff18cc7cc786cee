package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildSelectorDefaultsToStub(t *testing.T) {
	selector, err := buildSelector(config.LLMConfig{}, discardLogger())
	require.NoError(t, err)

	_, ok := selector.Get("stub")
	assert.True(t, ok)
}

func TestBuildSelectorRegistersFallbacks(t *testing.T) {
	selector, err := buildSelector(config.LLMConfig{
		Provider:  "anthropic",
		APIKey:    "test-key",
		Fallbacks: []string{"stub"},
	}, discardLogger())
	require.NoError(t, err)

	_, ok := selector.Get("anthropic")
	assert.True(t, ok)
	_, ok = selector.Get("stub")
	assert.True(t, ok)
}

func TestBuildProviderUnknownName(t *testing.T) {
	_, err := buildProvider("skynet", llm.ProviderConfig{})
	require.Error(t, err)

	var agentErr *types.AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, types.CONFIG_VALIDATION_FAILED, agentErr.Code)
}

func TestNewEngineWiresStack(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "webpilot.db")
	cfg.Core.DataDir = filepath.Join(dir, "tasks")

	eng, err := newEngine(context.Background(), cfg, discardLogger(), nil)
	require.NoError(t, err)
	defer eng.Close()

	assert.False(t, eng.sessionID.IsZero())
	assert.ElementsMatch(t, []string{"email", "ordering"}, eng.registry.IDs())

	tk := eng.tasks.Create("summarize the front page of example.com")
	require.NotNil(t, tk)
	assert.False(t, tk.ID.IsZero())
}
