package task

import (
	"fmt"
	"time"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// TaskStep is one planned unit of an ExecutionPlan. A step is terminal once
// Completed is true; a failed step keeps Completed=false and records the
// error for diagnosis.
type TaskStep struct {
	ID          types.ID       `json:"id"`
	Description string         `json:"description"`
	ActionType  ActionType     `json:"action_type"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Completed   bool           `json:"completed"`
	Error       string         `json:"error,omitempty"`
}

// NewStep creates a TaskStep with a fresh ID.
func NewStep(description string, actionType ActionType, params map[string]any) TaskStep {
	if params == nil {
		params = make(map[string]any)
	}
	return TaskStep{
		ID:          types.NewID(),
		Description: description,
		ActionType:  actionType,
		Parameters:  params,
	}
}

// ExecutionPlan is an ordered sequence of TaskSteps plus bookkeeping for the
// task they implement. Steps may be inserted (never reordered or deleted)
// during recovery; the current-step index only advances forward.
type ExecutionPlan struct {
	TaskID             types.ID       `json:"task_id"`
	Steps              []TaskStep     `json:"steps"`
	CurrentStepIndex   int            `json:"current_step_index"`
	Context            map[string]any `json:"context,omitempty"`
	FallbackStrategies []string       `json:"fallback_strategies,omitempty"`
	EstimatedDuration  time.Duration  `json:"estimated_duration,omitempty"`
}

// NewPlan creates an empty plan for the given task.
func NewPlan(taskID types.ID) *ExecutionPlan {
	return &ExecutionPlan{
		TaskID:  taskID,
		Steps:   make([]TaskStep, 0),
		Context: make(map[string]any),
	}
}

// Validate checks the plan is non-empty and internally consistent.
func (p *ExecutionPlan) Validate() error {
	if p.TaskID.IsZero() {
		return types.NewError(types.TASK_PLAN_INVALID, "plan has no owning task")
	}
	if len(p.Steps) == 0 {
		return types.NewError(types.TASK_PLAN_INVALID, "plan has no steps")
	}
	if p.CurrentStepIndex < 0 || p.CurrentStepIndex >= len(p.Steps) {
		return types.NewError(types.TASK_PLAN_INVALID,
			fmt.Sprintf("current step index %d out of range [0,%d)", p.CurrentStepIndex, len(p.Steps)))
	}
	for i, step := range p.Steps {
		if !step.ActionType.IsValid() {
			return types.NewError(types.TASK_PLAN_INVALID,
				fmt.Sprintf("step %d has unknown action type %q", i, step.ActionType))
		}
	}
	return nil
}

// CurrentStep returns the step at the current index, or nil when the plan is
// empty or fully stepped.
func (p *ExecutionPlan) CurrentStep() *TaskStep {
	if len(p.Steps) == 0 || p.CurrentStepIndex >= len(p.Steps) {
		return nil
	}
	return &p.Steps[p.CurrentStepIndex]
}

// Advance moves the current-step index forward by one. The index never moves
// backwards and never skips past len(Steps).
func (p *ExecutionPlan) Advance() {
	if p.CurrentStepIndex < len(p.Steps) {
		p.CurrentStepIndex++
	}
}

// IsComplete reports whether every step has been stepped past or completed.
func (p *ExecutionPlan) IsComplete() bool {
	if len(p.Steps) == 0 {
		return false
	}
	if p.CurrentStepIndex >= len(p.Steps) {
		return true
	}
	for i := range p.Steps {
		if !p.Steps[i].Completed {
			return false
		}
	}
	return true
}

// Progress returns the completed fraction of the plan in [0,1].
func (p *ExecutionPlan) Progress() float64 {
	if len(p.Steps) == 0 {
		return 0
	}
	done := 0
	for i := range p.Steps {
		if p.Steps[i].Completed {
			done++
		}
	}
	return float64(done) / float64(len(p.Steps))
}

// InsertStepsAfter inserts the given steps immediately after position index,
// keeping the failed step in place. Inserting never moves the current-step
// index backwards.
func (p *ExecutionPlan) InsertStepsAfter(index int, steps []TaskStep) error {
	if index < 0 || index >= len(p.Steps) {
		return types.NewError(types.TASK_PLAN_INVALID,
			fmt.Sprintf("insert position %d out of range [0,%d)", index, len(p.Steps)))
	}
	if len(steps) == 0 {
		return nil
	}
	tail := make([]TaskStep, len(p.Steps[index+1:]))
	copy(tail, p.Steps[index+1:])
	p.Steps = append(p.Steps[:index+1], steps...)
	p.Steps = append(p.Steps, tail...)
	return nil
}

// ToMap serializes the plan to a map-of-primitives form.
func (p *ExecutionPlan) ToMap() map[string]any {
	steps := make([]any, 0, len(p.Steps))
	for _, s := range p.Steps {
		sm := map[string]any{
			"id":          s.ID.String(),
			"description": s.Description,
			"action_type": s.ActionType.String(),
			"completed":   s.Completed,
		}
		if len(s.Parameters) > 0 {
			sm["parameters"] = s.Parameters
		}
		if s.Error != "" {
			sm["error"] = s.Error
		}
		steps = append(steps, sm)
	}
	m := map[string]any{
		"task_id":            p.TaskID.String(),
		"steps":              steps,
		"current_step_index": p.CurrentStepIndex,
	}
	if len(p.Context) > 0 {
		m["context"] = p.Context
	}
	if len(p.FallbackStrategies) > 0 {
		m["fallback_strategies"] = p.FallbackStrategies
	}
	return m
}

// PlanFromMap rebuilds a plan from its serialized map form.
func PlanFromMap(m map[string]any) (*ExecutionPlan, error) {
	taskID, _ := m["task_id"].(string)
	if taskID == "" {
		return nil, types.NewError(types.STORE_CORRUPT, "plan record missing task_id")
	}
	p := NewPlan(types.ID(taskID))
	switch idx := m["current_step_index"].(type) {
	case float64:
		p.CurrentStepIndex = int(idx)
	case int:
		p.CurrentStepIndex = idx
	}
	rawSteps, _ := m["steps"].([]any)
	for i, raw := range rawSteps {
		sm, ok := raw.(map[string]any)
		if !ok {
			return nil, types.NewError(types.STORE_CORRUPT, fmt.Sprintf("plan step %d is not a map", i))
		}
		step := TaskStep{Parameters: make(map[string]any)}
		id, _ := sm["id"].(string)
		step.ID = types.ID(id)
		step.Description, _ = sm["description"].(string)
		at, _ := sm["action_type"].(string)
		step.ActionType = ActionType(at)
		if !step.ActionType.IsValid() {
			return nil, types.NewError(types.STORE_CORRUPT,
				fmt.Sprintf("plan step %d has unknown action type %q", i, at))
		}
		step.Completed, _ = sm["completed"].(bool)
		step.Error, _ = sm["error"].(string)
		if params, ok := sm["parameters"].(map[string]any); ok {
			step.Parameters = params
		}
		p.Steps = append(p.Steps, step)
	}
	if ctx, ok := m["context"].(map[string]any); ok {
		p.Context = ctx
	}
	if fallbacks, ok := m["fallback_strategies"].([]any); ok {
		for _, f := range fallbacks {
			if s, ok := f.(string); ok {
				p.FallbackStrategies = append(p.FallbackStrategies, s)
			}
		}
	}
	return p, nil
}
