package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/internal/security"
	"github.com/webpilot-ai/webpilot/internal/types"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func assertConfigError(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var agentErr *types.AgentError
	require.True(t, errors.As(err, &agentErr), "expected AgentError, got %v", err)
	assert.Equal(t, code, agentErr.Code)
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, NewValidator().Validate(cfg))

	assert.Equal(t, "stub", cfg.LLM.Provider)
	assert.Equal(t, security.ModeInteractive, cfg.Security.ConfirmationMode)
	assert.Contains(t, cfg.Database.Path, "webpilot.db")
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	loader := NewLoader(NewValidator())
	cfg, err := loader.LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Workflow, cfg.Workflow)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfigFile(t, `
workflow:
  max_actions: 10
logging:
  level: debug
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Workflow.MaxActions)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Everything unset stays at its default.
	assert.Equal(t, DefaultConfig().Workflow.MaxCycles, cfg.Workflow.MaxCycles)
	assert.Equal(t, DefaultConfig().Recovery, cfg.Recovery)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadParsesDurationsAndModes(t *testing.T) {
	path := writeConfigFile(t, `
security:
  confirmation_mode: batch
  default_timeout: 90s
  auto_deny_categories: [payment, deletion]
recovery:
  base_retry_delay: 250ms
  max_retry_delay: 10s
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, security.ModeBatch, cfg.Security.ConfirmationMode)
	assert.Equal(t, 90*time.Second, cfg.Security.DefaultTimeout)
	assert.Equal(t, []security.Category{security.CategoryPayment, security.CategoryDeletion},
		cfg.Security.AutoDenyCategories)
	assert.Equal(t, 250*time.Millisecond, cfg.Recovery.BaseRetryDelay)
}

func TestLoadInterpolatesEnvVars(t *testing.T) {
	t.Setenv("WEBPILOT_TEST_API_KEY", "sk-test-123")
	path := writeConfigFile(t, `
llm:
  provider: anthropic
  model: claude-sonnet
  api_key: ${WEBPILOT_TEST_API_KEY}
  base_url: ${WEBPILOT_TEST_UNSET_VAR}
`)

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
	// Unset variables are left untouched rather than blanked.
	assert.Equal(t, "${WEBPILOT_TEST_UNSET_VAR}", cfg.LLM.BaseURL)
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	path := writeConfigFile(t, `
workflow:
  max_actions: 0
`)
	_, err := NewLoader(NewValidator()).Load(path)
	assertConfigError(t, err, types.CONFIG_VALIDATION_FAILED)
	assert.Contains(t, err.Error(), "workflow.max_actions")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfigFile(t, `
llm:
  provider: skynet
`)
	_, err := NewLoader(NewValidator()).Load(path)
	assertConfigError(t, err, types.CONFIG_VALIDATION_FAILED)
}

func TestLoadRejectsUnknownConfirmationMode(t *testing.T) {
	path := writeConfigFile(t, `
security:
  confirmation_mode: always
`)
	_, err := NewLoader(NewValidator()).Load(path)
	assertConfigError(t, err, types.CONFIG_VALIDATION_FAILED)
	assert.Contains(t, err.Error(), "confirmation_mode")
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "workflow: [unclosed")
	_, err := NewLoader(NewValidator()).Load(path)
	assertConfigError(t, err, types.CONFIG_LOAD_FAILED)
}

func TestValidateRetryDelayOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Recovery.BaseRetryDelay = 10 * time.Second
	cfg.Recovery.MaxRetryDelay = time.Second

	err := NewValidator().Validate(cfg)
	assertConfigError(t, err, types.CONFIG_VALIDATION_FAILED)
	assert.Contains(t, err.Error(), "max_retry_delay")
}

func TestBuildConversions(t *testing.T) {
	cfg := DefaultConfig()

	rec := cfg.Recovery.Build()
	assert.Equal(t, cfg.Recovery.MaxRetries, rec.MaxRetries)
	assert.Equal(t, cfg.Recovery.BackoffMultiplier, rec.BackoffMultiplier)

	wf := cfg.Workflow.Build()
	assert.Equal(t, cfg.Workflow.MaxActions, wf.MaxActions)
	assert.Equal(t, cfg.Workflow.CycleDelay, wf.CycleDelay)

	deg := cfg.Degradation.Build()
	assert.Equal(t, cfg.Degradation.MaxErrorTolerance, deg.MaxErrorTolerance)

	provider := cfg.LLM.Build()
	assert.Equal(t, cfg.LLM.Model, provider.DefaultModel)
}
