package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending       Status = "pending"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusRequiresInput Status = "requires_input"
	StatusCancelled     Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is one of the known states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed,
		StatusRequiresInput, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the task lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	st := Status(str)
	if !st.IsValid() {
		return types.NewError(types.TASK_INVALID_TRANSITION, fmt.Sprintf("unknown task status %q", str))
	}
	*s = st
	return nil
}

// Task is the unit of work the engine drives from plan to completion.
//
// A Task is owned exclusively by the workflow and task manager; other
// components observe it but mutate it only through the transition methods
// below. CompletedAt is set exactly when the status becomes terminal and
// never changes afterwards.
type Task struct {
	ID          types.ID       `json:"id"`
	Description string         `json:"description"`
	Status      Status         `json:"status"`
	Plan        *ExecutionPlan `json:"plan,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// New creates a pending task from a free-text description.
func New(description string) *Task {
	now := time.Now()
	return &Task{
		ID:          types.NewID(),
		Description: description,
		Status:      StatusPending,
		Context:     make(map[string]any),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Start transitions the task to InProgress. Only pending or requires-input
// tasks can start.
func (t *Task) Start() error {
	if t.Status != StatusPending && t.Status != StatusRequiresInput {
		return types.NewError(types.TASK_INVALID_TRANSITION,
			fmt.Sprintf("cannot start task in status %s", t.Status))
	}
	t.Status = StatusInProgress
	t.UpdatedAt = time.Now()
	return nil
}

// Complete transitions the task to Completed with an optional result payload.
func (t *Task) Complete(result map[string]any) error {
	return t.finish(StatusCompleted, result, "")
}

// Fail transitions the task to Failed and records the error message.
func (t *Task) Fail(message string) error {
	return t.finish(StatusFailed, nil, message)
}

// Cancel transitions the task to Cancelled. Cancelling a terminal task is
// an error.
func (t *Task) Cancel() error {
	return t.finish(StatusCancelled, nil, "")
}

// RequireInput parks the task waiting for a human decision.
func (t *Task) RequireInput() error {
	if t.Status.IsTerminal() {
		return types.NewError(types.TASK_INVALID_TRANSITION,
			fmt.Sprintf("cannot request input for task in status %s", t.Status))
	}
	t.Status = StatusRequiresInput
	t.UpdatedAt = time.Now()
	return nil
}

// Reset returns a failed task to Pending for a human-gated retry. The
// completion timestamp is cleared because the task re-enters the lifecycle.
func (t *Task) Reset() error {
	if t.Status != StatusFailed {
		return types.NewError(types.TASK_INVALID_TRANSITION,
			fmt.Sprintf("cannot reset task in status %s", t.Status))
	}
	t.Status = StatusPending
	t.Error = ""
	t.CompletedAt = nil
	t.UpdatedAt = time.Now()
	return nil
}

func (t *Task) finish(status Status, result map[string]any, errMsg string) error {
	if t.Status.IsTerminal() {
		return types.NewError(types.TASK_INVALID_TRANSITION,
			fmt.Sprintf("task already terminal in status %s", t.Status))
	}
	now := time.Now()
	t.Status = status
	t.UpdatedAt = now
	t.CompletedAt = &now
	if result != nil {
		t.Result = result
	}
	if errMsg != "" {
		t.Error = errMsg
	}
	return nil
}

// ToMap serializes the task to a map-of-primitives form with RFC 3339
// timestamps, suitable for JSON file storage.
func (t *Task) ToMap() map[string]any {
	m := map[string]any{
		"id":          t.ID.String(),
		"description": t.Description,
		"status":      t.Status.String(),
		"created_at":  t.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  t.UpdatedAt.Format(time.RFC3339Nano),
	}
	if t.CompletedAt != nil {
		m["completed_at"] = t.CompletedAt.Format(time.RFC3339Nano)
	}
	if len(t.Context) > 0 {
		m["context"] = t.Context
	}
	if len(t.Result) > 0 {
		m["result"] = t.Result
	}
	if t.Error != "" {
		m["error"] = t.Error
	}
	if t.Plan != nil {
		m["plan"] = t.Plan.ToMap()
	}
	return m
}

// FromMap rebuilds a task from its serialized map form.
func FromMap(m map[string]any) (*Task, error) {
	t := &Task{Context: make(map[string]any)}
	id, _ := m["id"].(string)
	if id == "" {
		return nil, types.NewError(types.STORE_CORRUPT, "task record missing id")
	}
	t.ID = types.ID(id)
	t.Description, _ = m["description"].(string)
	status, _ := m["status"].(string)
	t.Status = Status(status)
	if !t.Status.IsValid() {
		return nil, types.NewError(types.STORE_CORRUPT, fmt.Sprintf("task record has unknown status %q", status))
	}
	var err error
	if t.CreatedAt, err = parseTime(m, "created_at"); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(m, "updated_at"); err != nil {
		return nil, err
	}
	if raw, ok := m["completed_at"].(string); ok {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, types.WrapError(types.STORE_CORRUPT, "bad completed_at timestamp", err)
		}
		t.CompletedAt = &ts
	}
	if ctx, ok := m["context"].(map[string]any); ok {
		t.Context = ctx
	}
	if res, ok := m["result"].(map[string]any); ok {
		t.Result = res
	}
	t.Error, _ = m["error"].(string)
	if planRaw, ok := m["plan"].(map[string]any); ok {
		plan, err := PlanFromMap(planRaw)
		if err != nil {
			return nil, err
		}
		t.Plan = plan
	}
	return t, nil
}

func parseTime(m map[string]any, key string) (time.Time, error) {
	raw, ok := m[key].(string)
	if !ok {
		return time.Time{}, types.NewError(types.STORE_CORRUPT, fmt.Sprintf("task record missing %s", key))
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, types.WrapError(types.STORE_CORRUPT, fmt.Sprintf("bad %s timestamp", key), err)
	}
	return ts, nil
}
