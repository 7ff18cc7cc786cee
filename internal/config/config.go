// Package config loads, defaults and validates the engine configuration
// from YAML files with ${VAR} environment interpolation.
package config

import (
	"time"

	"github.com/webpilot-ai/webpilot/internal/degrade"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/recovery"
	"github.com/webpilot-ai/webpilot/internal/security"
	"github.com/webpilot-ai/webpilot/internal/workflow"
)

// Config is the root configuration for the agent.
type Config struct {
	Core        CoreConfig        `mapstructure:"core" yaml:"core" validate:"required"`
	Database    DBConfig          `mapstructure:"database" yaml:"database" validate:"required"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	Security    security.Settings `mapstructure:"security" yaml:"security"`
	Recovery    RecoveryConfig    `mapstructure:"recovery" yaml:"recovery"`
	Degradation DegradationConfig `mapstructure:"degradation" yaml:"degradation"`
	Escalation  EscalationConfig  `mapstructure:"escalation" yaml:"escalation"`
	Workflow    WorkflowConfig    `mapstructure:"workflow" yaml:"workflow"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// CoreConfig contains core application settings.
type CoreConfig struct {
	HomeDir string        `mapstructure:"home_dir" yaml:"home_dir"`
	DataDir string        `mapstructure:"data_dir" yaml:"data_dir"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=1s"`
	Debug   bool          `mapstructure:"debug" yaml:"debug"`
}

// DBConfig contains the audit database configuration.
type DBConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=100"`
	BusyTimeout    time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider    string   `mapstructure:"provider" yaml:"provider" validate:"omitempty,oneof=stub anthropic openai ollama"`
	Model       string   `mapstructure:"model" yaml:"model"`
	APIKey      string   `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string   `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSecs int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Fallbacks   []string `mapstructure:"fallbacks" yaml:"fallbacks"`
}

// Build converts to the provider construction config.
func (c LLMConfig) Build() llm.ProviderConfig {
	return llm.ProviderConfig{
		APIKey:       c.APIKey,
		DefaultModel: c.Model,
		BaseURL:      c.BaseURL,
		TimeoutSecs:  c.TimeoutSecs,
	}
}

// RecoveryConfig tunes the error handler.
type RecoveryConfig struct {
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries" validate:"min=0,max=10"`
	RetryPause        time.Duration `mapstructure:"retry_pause" yaml:"retry_pause"`
	BaseRetryDelay    time.Duration `mapstructure:"base_retry_delay" yaml:"base_retry_delay"`
	MaxRetryDelay     time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier" validate:"omitempty,min=1"`
	RestartThreshold  int           `mapstructure:"restart_threshold" yaml:"restart_threshold" validate:"min=1"`
}

// Build converts to the error handler's config.
func (c RecoveryConfig) Build() recovery.Config {
	return recovery.Config{
		MaxRetries:        c.MaxRetries,
		RetryPause:        c.RetryPause,
		BaseRetryDelay:    c.BaseRetryDelay,
		MaxRetryDelay:     c.MaxRetryDelay,
		BackoffMultiplier: c.BackoffMultiplier,
		RestartThreshold:  c.RestartThreshold,
	}
}

// DegradationConfig tunes the graceful degradation manager.
type DegradationConfig struct {
	MinCompletionThreshold float64 `mapstructure:"min_completion_threshold" yaml:"min_completion_threshold" validate:"min=0,max=1"`
	MaxErrorTolerance      int     `mapstructure:"max_error_tolerance" yaml:"max_error_tolerance" validate:"min=1"`
	TimeLimitFactor        float64 `mapstructure:"time_limit_factor" yaml:"time_limit_factor" validate:"omitempty,min=1"`
}

// Build converts to the degradation manager's config.
func (c DegradationConfig) Build() degrade.Config {
	return degrade.Config{
		MinCompletionThreshold: c.MinCompletionThreshold,
		MaxErrorTolerance:      c.MaxErrorTolerance,
		TimeLimitFactor:        c.TimeLimitFactor,
	}
}

// EscalationConfig tunes user escalation timing.
type EscalationConfig struct {
	BaseTimeout time.Duration `mapstructure:"base_timeout" yaml:"base_timeout" validate:"min=1s"`
}

// WorkflowConfig tunes the execution workflow.
type WorkflowConfig struct {
	MaxActions          int           `mapstructure:"max_actions" yaml:"max_actions" validate:"min=1,max=1000"`
	MaxCycles           int           `mapstructure:"max_cycles" yaml:"max_cycles" validate:"min=1"`
	MaxTaskRetries      int           `mapstructure:"max_task_retries" yaml:"max_task_retries" validate:"min=0,max=5"`
	MaxRecoveryRounds   int           `mapstructure:"max_recovery_rounds" yaml:"max_recovery_rounds" validate:"min=1,max=10"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" yaml:"confidence_threshold" validate:"min=0,max=1"`
	SuccessConfidence   float64       `mapstructure:"success_confidence" yaml:"success_confidence" validate:"min=0,max=1"`
	CycleDelay          time.Duration `mapstructure:"cycle_delay" yaml:"cycle_delay"`
	FindTimeout         time.Duration `mapstructure:"find_timeout" yaml:"find_timeout"`
	ProgressInterval    time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
}

// Build converts to the workflow's config.
func (c WorkflowConfig) Build() workflow.Config {
	return workflow.Config{
		MaxActions:          c.MaxActions,
		MaxCycles:           c.MaxCycles,
		MaxTaskRetries:      c.MaxTaskRetries,
		MaxRecoveryRounds:   c.MaxRecoveryRounds,
		ConfidenceThreshold: c.ConfidenceThreshold,
		SuccessConfidence:   c.SuccessConfidence,
		CycleDelay:          c.CycleDelay,
		FindTimeout:         c.FindTimeout,
		ProgressInterval:    c.ProgressInterval,
	}
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json text"`
}
