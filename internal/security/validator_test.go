package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webpilot-ai/webpilot/internal/task"
)

func TestCardNumberAlwaysCriticalAndBlocked(t *testing.T) {
	v := NewValidator()

	// Any action type carrying a card-shaped number in typed text is
	// blocked, regardless of how benign the action looks otherwise.
	variants := []string{
		"4111111111111111",
		"4111 1111 1111 1111",
		"4111-1111-1111-1111",
	}
	for _, number := range variants {
		for _, at := range []task.ActionType{task.ActionInput, task.ActionWait, task.ActionExtract} {
			a := task.NewAction(at, "#field")
			a.Parameters["text"] = number
			a.Parameters["duration"] = 1.0

			got := v.Assess(a)
			assert.Equal(t, RiskCritical, got.RiskLevel, "%s / %s", at, number)
			assert.True(t, got.Blocked)
			assert.True(t, got.RequiresConfirmation)
			assert.True(t, got.HasCategory(CategoryPayment))
		}
	}
}

func TestSSNInTypedTextIsCritical(t *testing.T) {
	v := NewValidator()
	a := task.NewAction(task.ActionInput, "#ssn")
	a.Parameters["text"] = "my number is 123-45-6789"

	got := v.Assess(a)
	assert.Equal(t, RiskCritical, got.RiskLevel)
	assert.True(t, got.Blocked)
}

func TestClickOnDeleteSelectorRequiresConfirmation(t *testing.T) {
	v := NewValidator()
	a := task.NewAction(task.ActionClick, "button.delete-item")

	got := v.Assess(a)
	assert.True(t, got.RequiresConfirmation)
	assert.True(t, got.HasCategory(CategoryDeletion))
	assert.Equal(t, RiskHigh, got.RiskLevel)
}

func TestSafeActionTypes(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name   string
		action *task.Action
	}{
		{"scroll", task.NewAction(task.ActionScroll, "")},
		{"wait", task.NewAction(task.ActionWait, "")},
		{"extract", task.NewAction(task.ActionExtract, "#content")},
		{"screenshot", task.NewAction(task.ActionScreenshot, "")},
		{"plain navigation", task.NewAction(task.ActionNavigate, "https://example.com")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Assess(tt.action)
			assert.True(t, got.IsSafe(), "risk=%s reasons=%v", got.RiskLevel, got.Reasons)
			assert.False(t, got.RequiresConfirmation)
		})
	}
}

func TestSubmitIsInherentlyHigh(t *testing.T) {
	v := NewValidator()
	got := v.Assess(task.NewAction(task.ActionSubmit, "#generic-form"))
	assert.True(t, got.RiskLevel.AtLeast(RiskHigh))
	assert.True(t, got.RequiresConfirmation)
}

func TestNavigationToHighRiskDomain(t *testing.T) {
	v := NewValidator()
	got := v.Assess(task.NewAction(task.ActionNavigate, "https://online.mybank.example/transfer"))
	assert.Equal(t, RiskHigh, got.RiskLevel)
	assert.True(t, got.HasCategory(CategoryNavigation))
}

func TestExplicitDestructiveFlagRaisesRisk(t *testing.T) {
	v := NewValidator()
	a := task.NewAction(task.ActionClick, "#innocuous")
	a.Destructive = true

	got := v.Assess(a)
	assert.Equal(t, RiskHigh, got.RiskLevel)
	assert.True(t, got.IsDestructive())
}

func TestPayNowClickIsHighRiskPayment(t *testing.T) {
	v := NewValidator()
	a := task.NewAction(task.ActionClick, "#pay-now")
	a.Confidence = 0.95

	got := v.Assess(a)
	assert.Equal(t, RiskHigh, got.RiskLevel)
	require.True(t, got.HasCategory(CategoryPayment))
	assert.True(t, got.RequiresConfirmation)
	assert.False(t, got.Blocked)
}
