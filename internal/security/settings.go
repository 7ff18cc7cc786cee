package security

import "time"

// ConfirmationMode controls how confirmations are obtained.
type ConfirmationMode string

const (
	// ModeInteractive prompts the user for each action.
	ModeInteractive ConfirmationMode = "interactive"
	// ModeBatch collects actions and confirms them in one prompt.
	ModeBatch ConfirmationMode = "batch"
	// ModeAutoApprove approves without prompting.
	ModeAutoApprove ConfirmationMode = "auto_approve"
	// ModeAutoDeny denies all destructive actions without prompting.
	ModeAutoDeny ConfirmationMode = "auto_deny"
)

// IsValid checks whether the mode is known.
func (m ConfirmationMode) IsValid() bool {
	switch m {
	case ModeInteractive, ModeBatch, ModeAutoApprove, ModeAutoDeny:
		return true
	}
	return false
}

// Settings configures gate confirmation behavior.
type Settings struct {
	ConfirmationMode      ConfirmationMode `mapstructure:"confirmation_mode"`
	AutoApproveCategories []Category       `mapstructure:"auto_approve_categories"`
	AutoDenyCategories    []Category       `mapstructure:"auto_deny_categories"`
	ConfirmRiskLevels     []Risk           `mapstructure:"confirm_risk_levels"`
	DefaultTimeout        time.Duration    `mapstructure:"default_timeout"`
	MaxBatchSize          int              `mapstructure:"max_batch_size"`
	AuditEnabled          bool             `mapstructure:"audit_enabled"`
}

// DefaultSettings returns interactive confirmation with a 5 minute timeout.
func DefaultSettings() Settings {
	return Settings{
		ConfirmationMode:  ModeInteractive,
		ConfirmRiskLevels: []Risk{RiskHigh, RiskCritical},
		DefaultTimeout:    5 * time.Minute,
		MaxBatchSize:      10,
		AuditEnabled:      true,
	}
}

// ShouldAutoApprove reports whether the assessment is approved without a
// prompt under these settings.
func (s Settings) ShouldAutoApprove(a Assessment) bool {
	if s.ConfirmationMode == ModeAutoApprove {
		return true
	}
	for _, cat := range s.AutoApproveCategories {
		if a.HasCategory(cat) {
			return true
		}
	}
	return false
}

// ShouldAutoDeny reports whether the assessment is denied without a prompt.
func (s Settings) ShouldAutoDeny(a Assessment) bool {
	if s.ConfirmationMode == ModeAutoDeny {
		return true
	}
	for _, cat := range s.AutoDenyCategories {
		if a.HasCategory(cat) {
			return true
		}
	}
	return false
}

// NeedsPrompt reports whether the assessment requires an actual prompt.
func (s Settings) NeedsPrompt(a Assessment) bool {
	if s.ConfirmationMode == ModeAutoApprove || s.ConfirmationMode == ModeAutoDeny {
		return false
	}
	for _, risk := range s.ConfirmRiskLevels {
		if a.RiskLevel == risk {
			return true
		}
	}
	return a.RequiresConfirmation
}
