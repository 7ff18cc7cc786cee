package security

import "encoding/json"

// Risk grades how dangerous an action is. Levels are ordered; assessments
// take the maximum across all checks.
type Risk string

const (
	RiskSafe     Risk = "safe"
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

var riskRank = map[Risk]int{
	RiskSafe:     0,
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Rank returns the numeric ordering of the risk level.
func (r Risk) Rank() int {
	return riskRank[r]
}

// AtLeast reports whether r is at or above other.
func (r Risk) AtLeast(other Risk) bool {
	return r.Rank() >= other.Rank()
}

// MaxRisk returns the higher of two risk levels.
func MaxRisk(a, b Risk) Risk {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Category labels the kind of potentially destructive behavior detected.
type Category string

const (
	CategoryPayment        Category = "payment"
	CategoryDeletion       Category = "deletion"
	CategoryModification   Category = "modification"
	CategorySubmission     Category = "submission"
	CategoryNavigation     Category = "navigation"
	CategoryAuthentication Category = "authentication"
	CategoryDownload       Category = "download"
	CategoryUpload         Category = "upload"
)

// Assessment is the result of validating a single action.
type Assessment struct {
	RiskLevel            Risk       `json:"risk_level"`
	Categories           []Category `json:"categories"`
	Reasons              []string   `json:"reasons"`
	RequiresConfirmation bool       `json:"requires_confirmation"`
	Blocked              bool       `json:"blocked"`
}

// IsSafe reports whether the action can run without any gate interaction.
func (a Assessment) IsSafe() bool {
	return a.RiskLevel == RiskSafe && !a.Blocked
}

// IsDestructive reports whether the action is graded destructive.
func (a Assessment) IsDestructive() bool {
	return a.RiskLevel.AtLeast(RiskHigh) || a.Blocked
}

// HasCategory reports whether the assessment carries the given category.
func (a Assessment) HasCategory(c Category) bool {
	for _, cat := range a.Categories {
		if cat == c {
			return true
		}
	}
	return false
}

// CategoryStrings returns the categories as plain strings for audit records.
func (a Assessment) CategoryStrings() []string {
	out := make([]string, 0, len(a.Categories))
	for _, c := range a.Categories {
		out = append(out, string(c))
	}
	return out
}

// MarshalJSON keeps the string form on the wire.
func (r Risk) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(r))
}
