package events

import (
	"time"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// EventType identifies the kind of engine event on the bus.
type EventType string

const (
	// Task lifecycle
	EventTaskStarted   EventType = "task.started"
	EventTaskProgress  EventType = "task.progress"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskCancelled EventType = "task.cancelled"

	// Action execution
	EventActionExecuted EventType = "action.executed"
	EventActionFailed   EventType = "action.failed"
	EventActionBlocked  EventType = "action.blocked"

	// Recovery and degradation
	EventRecoveryAttempted  EventType = "recovery.attempted"
	EventDegradationApplied EventType = "degradation.applied"
	EventEscalationRaised   EventType = "escalation.raised"

	// Security audit mirror, for real-time alerting on High/Critical entries
	EventAuditRecorded EventType = "audit.recorded"
)

// Event is a single engine event. Severity carries the audit risk level for
// audit.recorded events and is empty otherwise.
type Event struct {
	Type      EventType      `json:"type"`
	TaskID    types.ID       `json:"task_id,omitempty"`
	SessionID types.ID       `json:"session_id,omitempty"`
	Severity  string         `json:"severity,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, taskID types.ID, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// Filter selects which events a subscriber receives. Zero value matches all.
type Filter struct {
	Types      []EventType
	TaskID     types.ID
	Severities []string
}

// Matches reports whether an event passes the filter.
func (f Filter) Matches(e Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.TaskID.IsZero() && e.TaskID != f.TaskID {
		return false
	}
	if len(f.Severities) > 0 {
		found := false
		for _, s := range f.Severities {
			if e.Severity == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
