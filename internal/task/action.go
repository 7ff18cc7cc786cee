package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// ActionType identifies a single atomic operation against the browsed page.
type ActionType string

const (
	ActionNavigate   ActionType = "navigate"
	ActionClick      ActionType = "click"
	ActionInput      ActionType = "type"
	ActionScroll     ActionType = "scroll"
	ActionWait       ActionType = "wait"
	ActionExtract    ActionType = "extract"
	ActionSubmit     ActionType = "submit"
	ActionSelect     ActionType = "select"
	ActionHover      ActionType = "hover"
	ActionScreenshot ActionType = "screenshot"
	ActionRefresh    ActionType = "refresh"
	ActionBack       ActionType = "back"
	ActionForward    ActionType = "forward"
)

// String returns the string representation of the action type.
func (t ActionType) String() string {
	return string(t)
}

// IsValid checks whether the action type is one of the known tags.
// Unknown tags are rejected, never coerced.
func (t ActionType) IsValid() bool {
	switch t {
	case ActionNavigate, ActionClick, ActionInput, ActionScroll, ActionWait,
		ActionExtract, ActionSubmit, ActionSelect, ActionHover,
		ActionScreenshot, ActionRefresh, ActionBack, ActionForward:
		return true
	}
	return false
}

// MarshalJSON implements json.Marshaler.
func (t ActionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

// UnmarshalJSON implements json.Unmarshaler, rejecting unknown tags.
func (t *ActionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	at := ActionType(s)
	if !at.IsValid() {
		return types.NewError(types.TASK_PLAN_INVALID, fmt.Sprintf("unknown action type %q", s))
	}
	*t = at
	return nil
}

// Action is a single atomic operation produced by the decision engine or a
// recovery strategy and consumed exactly once by the browser driver.
type Action struct {
	ID            types.ID       `json:"id"`
	Type          ActionType     `json:"type"`
	Target        string         `json:"target,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Description   string         `json:"description,omitempty"`
	Destructive   bool           `json:"destructive"`
	Confidence    float64        `json:"confidence"`
	Result        map[string]any `json:"result,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// NewAction creates an Action with a fresh ID and full confidence.
func NewAction(actionType ActionType, target string) *Action {
	return &Action{
		ID:         types.NewID(),
		Type:       actionType,
		Target:     target,
		Parameters: make(map[string]any),
		Confidence: 1.0,
	}
}

// Validate checks the action's structural requirements: a known type tag,
// a confidence in [0,1], and the type-specific mandatory parameters.
func (a *Action) Validate() error {
	if !a.Type.IsValid() {
		return types.NewError(types.TASK_PLAN_INVALID, fmt.Sprintf("unknown action type %q", a.Type))
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return types.NewError(types.TASK_PLAN_INVALID, fmt.Sprintf("confidence %v outside [0,1]", a.Confidence))
	}
	switch a.Type {
	case ActionInput:
		if _, ok := a.Parameters["text"]; !ok {
			return types.NewError(types.TASK_PLAN_INVALID, "type action requires a text parameter")
		}
	case ActionWait:
		if _, ok := a.Parameters["duration"]; !ok {
			return types.NewError(types.TASK_PLAN_INVALID, "wait action requires a duration parameter")
		}
	case ActionNavigate:
		if a.Target == "" {
			return types.NewError(types.TASK_PLAN_INVALID, "navigate action requires a target URL")
		}
	case ActionClick, ActionHover, ActionSelect:
		if a.Target == "" {
			return types.NewError(types.TASK_PLAN_INVALID, fmt.Sprintf("%s action requires a target selector", a.Type))
		}
	}
	return nil
}

// WithConfidence returns the action with confidence clamped into [0,1].
// Confidence only ever decreases across fallback generations of the same
// logical action; callers must not raise it.
func (a *Action) WithConfidence(c float64) *Action {
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	if c < a.Confidence {
		a.Confidence = c
	}
	return a
}

// MarkExecuted records the outcome of a driver execution.
func (a *Action) MarkExecuted(result map[string]any, elapsed time.Duration, err error) {
	a.Result = result
	a.ExecutionTime = elapsed
	if err != nil {
		a.Error = err.Error()
	}
}
