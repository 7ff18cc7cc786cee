package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/webpilot-ai/webpilot/internal/recovery"
	"github.com/webpilot-ai/webpilot/internal/security"
	"github.com/webpilot-ai/webpilot/internal/workflow"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	homeDir := getDefaultHomeDir()
	rec := recovery.DefaultConfig()
	wf := workflow.DefaultConfig()

	return &Config{
		Core: CoreConfig{
			HomeDir: homeDir,
			DataDir: filepath.Join(homeDir, "tasks"),
			Timeout: 5 * time.Minute,
			Debug:   false,
		},
		Database: DBConfig{
			Path:           filepath.Join(homeDir, "webpilot.db"),
			MaxConnections: 10,
			BusyTimeout:    5 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "stub",
			TimeoutSecs: 60,
		},
		Security: security.DefaultSettings(),
		Recovery: RecoveryConfig{
			MaxRetries:        rec.MaxRetries,
			RetryPause:        rec.RetryPause,
			BaseRetryDelay:    rec.BaseRetryDelay,
			MaxRetryDelay:     rec.MaxRetryDelay,
			BackoffMultiplier: rec.BackoffMultiplier,
			RestartThreshold:  rec.RestartThreshold,
		},
		Degradation: DegradationConfig{
			MinCompletionThreshold: 0.3,
			MaxErrorTolerance:      5,
			TimeLimitFactor:        2.0,
		},
		Escalation: EscalationConfig{
			BaseTimeout: 5 * time.Minute,
		},
		Workflow: WorkflowConfig{
			MaxActions:          wf.MaxActions,
			MaxCycles:           wf.MaxCycles,
			MaxTaskRetries:      wf.MaxTaskRetries,
			MaxRecoveryRounds:   wf.MaxRecoveryRounds,
			ConfidenceThreshold: wf.ConfidenceThreshold,
			SuccessConfidence:   wf.SuccessConfidence,
			CycleDelay:          wf.CycleDelay,
			FindTimeout:         wf.FindTimeout,
			ProgressInterval:    wf.ProgressInterval,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// getDefaultHomeDir returns the default home directory, falling back to a
// temporary directory when the user home cannot be determined.
func getDefaultHomeDir() string {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".webpilot")
	}
	return filepath.Join(userHome, ".webpilot")
}
