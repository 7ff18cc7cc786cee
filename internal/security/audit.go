package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/webpilot-ai/webpilot/internal/events"
	"github.com/webpilot-ai/webpilot/internal/types"
)

// AuditEventType identifies the kind of audit entry.
type AuditEventType string

const (
	AuditActionValidated       AuditEventType = "action_validated"
	AuditConfirmationRequested AuditEventType = "confirmation_requested"
	AuditConfirmationReceived  AuditEventType = "confirmation_received"
	AuditActionExecuted        AuditEventType = "action_executed"
	AuditActionBlocked         AuditEventType = "action_blocked"
	AuditSecurityViolation     AuditEventType = "security_violation"
	AuditSettingsChanged       AuditEventType = "settings_changed"
	AuditSessionStarted        AuditEventType = "session_started"
	AuditSessionEnded          AuditEventType = "session_ended"
	AuditErrorOccurred         AuditEventType = "error_occurred"
)

// AuditLevel grades audit entries.
type AuditLevel string

const (
	AuditLevelDebug    AuditLevel = "debug"
	AuditLevelInfo     AuditLevel = "info"
	AuditLevelWarning  AuditLevel = "warning"
	AuditLevelError    AuditLevel = "error"
	AuditLevelCritical AuditLevel = "critical"
)

// AuditEvent is one append-only audit trail entry. Entries are sequentially
// numbered per session; the ID embeds the session and sequence number.
type AuditEvent struct {
	ID         string         `json:"id"`
	Sequence   int64          `json:"sequence"`
	Type       AuditEventType `json:"type"`
	Level      AuditLevel     `json:"level"`
	SessionID  types.ID       `json:"session_id"`
	Timestamp  time.Time      `json:"timestamp"`
	ActionID   types.ID       `json:"action_id,omitempty"`
	RiskLevel  Risk           `json:"risk_level,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// AuditSink persists audit events. Implementations must be append-only.
type AuditSink interface {
	Append(ctx context.Context, event AuditEvent) error
}

// Auditor writes the audit trail for one session and mirrors High/Critical
// entries onto the event bus for real-time alerting.
type Auditor struct {
	mu        sync.Mutex
	sessionID types.ID
	counter   int64
	sink      AuditSink
	bus       *events.Bus
	logger    *slog.Logger
	enabled   bool
}

// NewAuditor creates an auditor for a session. sink and bus may be nil; a
// disabled auditor records nothing.
func NewAuditor(sessionID types.ID, sink AuditSink, bus *events.Bus, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		sessionID: sessionID,
		sink:      sink,
		bus:       bus,
		logger:    logger,
		enabled:   true,
	}
}

// SetEnabled toggles audit recording.
func (a *Auditor) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// SessionID returns the session this auditor records for.
func (a *Auditor) SessionID() types.ID {
	return a.sessionID
}

// Record appends an audit event with the next sequence number.
func (a *Auditor) Record(ctx context.Context, eventType AuditEventType, level AuditLevel, opts ...AuditOption) error {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return nil
	}
	a.counter++
	seq := a.counter
	a.mu.Unlock()

	event := AuditEvent{
		ID:        fmt.Sprintf("audit_%s_%06d", a.sessionID, seq),
		Sequence:  seq,
		Type:      eventType,
		Level:     level,
		SessionID: a.sessionID,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&event)
	}

	if a.sink != nil {
		if err := a.sink.Append(ctx, event); err != nil {
			a.logger.Error("audit append failed", "event_id", event.ID, "error", err)
			return types.WrapError(types.SECURITY_AUDIT_FAILED, "audit append failed", err)
		}
	}

	a.alert(ctx, event)
	return nil
}

// alert mirrors the entry onto the bus so subscribers can tail High/Critical
// security activity.
func (a *Auditor) alert(ctx context.Context, event AuditEvent) {
	if a.bus == nil {
		return
	}
	busEvent := events.Event{
		Type:      events.EventAuditRecorded,
		SessionID: a.sessionID,
		Severity:  string(event.RiskLevel),
		Timestamp: event.Timestamp,
		Payload: map[string]any{
			"audit_id":   event.ID,
			"audit_type": string(event.Type),
			"level":      string(event.Level),
			"message":    event.Message,
		},
	}
	if err := a.bus.Publish(ctx, busEvent); err != nil {
		a.logger.Debug("audit alert publish failed", "error", err)
	}
}

// AuditOption decorates an audit event before it is recorded.
type AuditOption func(*AuditEvent)

// WithAction attaches the acting action's id.
func WithAction(actionID types.ID) AuditOption {
	return func(e *AuditEvent) { e.ActionID = actionID }
}

// WithRisk attaches the assessed risk level and categories.
func WithRisk(risk Risk, categories []string) AuditOption {
	return func(e *AuditEvent) {
		e.RiskLevel = risk
		e.Categories = categories
	}
}

// WithMessage attaches a human-readable message.
func WithMessage(message string) AuditOption {
	return func(e *AuditEvent) { e.Message = message }
}

// WithDetails attaches free-form details.
func WithDetails(details map[string]any) AuditOption {
	return func(e *AuditEvent) { e.Details = details }
}
