package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/webpilot-ai/webpilot/internal/security"
	"github.com/webpilot-ai/webpilot/internal/types"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          TEXT PRIMARY KEY,
	sequence    INTEGER NOT NULL,
	session_id  TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	level       TEXT NOT NULL,
	timestamp   DATETIME NOT NULL,
	action_id   TEXT,
	risk_level  TEXT,
	categories  TEXT,
	message     TEXT,
	details     TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_events(session_id, sequence);
CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(event_type);
`

// AuditStore persists the append-only audit trail in SQLite.
type AuditStore struct {
	db *DB
}

var _ security.AuditSink = (*AuditStore)(nil)

// NewAuditStore creates the audit table if needed and returns the store.
func NewAuditStore(ctx context.Context, db *DB) (*AuditStore, error) {
	if _, err := db.execContext(ctx, auditSchema); err != nil {
		return nil, types.WrapError(types.STORE_OPEN_FAILED, "create audit schema", err)
	}
	return &AuditStore{db: db}, nil
}

// Append writes one audit event. Events are never updated or deleted.
func (s *AuditStore) Append(ctx context.Context, event security.AuditEvent) error {
	var details []byte
	if len(event.Details) > 0 {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return types.WrapError(types.STORE_WRITE_FAILED, "encode audit details", err)
		}
	}

	_, err := s.db.execContext(ctx, `
		INSERT INTO audit_events
			(id, sequence, session_id, event_type, level, timestamp,
			 action_id, risk_level, categories, message, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Sequence,
		event.SessionID.String(),
		string(event.Type),
		string(event.Level),
		event.Timestamp.UTC(),
		event.ActionID.String(),
		string(event.RiskLevel),
		strings.Join(event.Categories, ","),
		event.Message,
		string(details),
	)
	if err != nil {
		return types.WrapError(types.STORE_WRITE_FAILED, "insert audit event", err)
	}
	return nil
}

// BySession returns a session's trail in sequence order, newest last. A limit
// of 0 returns everything.
func (s *AuditStore) BySession(ctx context.Context, sessionID types.ID, limit int) ([]security.AuditEvent, error) {
	query := `
		SELECT id, sequence, session_id, event_type, level, timestamp,
		       action_id, risk_level, categories, message, details
		FROM audit_events WHERE session_id = ? ORDER BY sequence`
	args := []any{sessionID.String()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.queryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(types.STORE_READ_FAILED, "query audit trail", err)
	}
	defer rows.Close()

	var events []security.AuditEvent
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.STORE_READ_FAILED, "iterate audit trail", err)
	}
	return events, nil
}

// CountByType returns per-type event counts for a session.
func (s *AuditStore) CountByType(ctx context.Context, sessionID types.ID) (map[security.AuditEventType]int, error) {
	rows, err := s.db.queryContext(ctx, `
		SELECT event_type, COUNT(*) FROM audit_events
		WHERE session_id = ? GROUP BY event_type`, sessionID.String())
	if err != nil {
		return nil, types.WrapError(types.STORE_READ_FAILED, "count audit events", err)
	}
	defer rows.Close()

	counts := make(map[security.AuditEventType]int)
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, types.WrapError(types.STORE_READ_FAILED, "scan audit count", err)
		}
		counts[security.AuditEventType(eventType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.STORE_READ_FAILED, "iterate audit counts", err)
	}
	return counts, nil
}

// Verify checks a session's trail for sequence gaps, the cheap tamper signal
// an append-only log can offer.
func (s *AuditStore) Verify(ctx context.Context, sessionID types.ID) error {
	rows, err := s.db.queryContext(ctx, `
		SELECT sequence FROM audit_events
		WHERE session_id = ? ORDER BY sequence`, sessionID.String())
	if err != nil {
		return types.WrapError(types.STORE_READ_FAILED, "query audit sequences", err)
	}
	defer rows.Close()

	expected := int64(1)
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return types.WrapError(types.STORE_READ_FAILED, "scan audit sequence", err)
		}
		if seq != expected {
			return types.NewError(types.STORE_CORRUPT,
				"audit trail has a sequence gap for session "+sessionID.String())
		}
		expected++
	}
	return rows.Err()
}

func scanAuditEvent(rows *sql.Rows) (security.AuditEvent, error) {
	var (
		event      security.AuditEvent
		sessionID  string
		eventType  string
		level      string
		timestamp  time.Time
		actionID   sql.NullString
		riskLevel  sql.NullString
		categories sql.NullString
		message    sql.NullString
		details    sql.NullString
	)
	if err := rows.Scan(&event.ID, &event.Sequence, &sessionID, &eventType, &level,
		&timestamp, &actionID, &riskLevel, &categories, &message, &details); err != nil {
		return security.AuditEvent{}, types.WrapError(types.STORE_READ_FAILED, "scan audit event", err)
	}

	event.SessionID = types.ID(sessionID)
	event.Type = security.AuditEventType(eventType)
	event.Level = security.AuditLevel(level)
	event.Timestamp = timestamp
	event.ActionID = types.ID(actionID.String)
	event.RiskLevel = security.Risk(riskLevel.String)
	if categories.String != "" {
		event.Categories = strings.Split(categories.String, ",")
	}
	event.Message = message.String
	if details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &event.Details); err != nil {
			return security.AuditEvent{}, types.WrapError(types.STORE_CORRUPT, "decode audit details", err)
		}
	}
	return event, nil
}
