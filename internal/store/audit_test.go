package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/internal/security"
	"github.com/webpilot-ai/webpilot/internal/types"
)

func newTestAuditStore(t *testing.T) *AuditStore {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewAuditStore(context.Background(), db)
	require.NoError(t, err)
	return store
}

func auditEvent(sessionID types.ID, seq int64, eventType security.AuditEventType) security.AuditEvent {
	return security.AuditEvent{
		ID:        fmt.Sprintf("audit_%s_%06d", sessionID, seq),
		Sequence:  seq,
		Type:      eventType,
		Level:     security.AuditLevelInfo,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

func TestAuditStoreAppendAndQuery(t *testing.T) {
	store := newTestAuditStore(t)
	ctx := context.Background()
	session := types.NewID()

	event := auditEvent(session, 1, security.AuditActionValidated)
	event.ActionID = types.NewID()
	event.RiskLevel = security.RiskHigh
	event.Categories = []string{"payment", "destructive"}
	event.Message = "click on #pay-now blocked pending confirmation"
	event.Details = map[string]any{"selector": "#pay-now"}
	require.NoError(t, store.Append(ctx, event))
	require.NoError(t, store.Append(ctx, auditEvent(session, 2, security.AuditActionExecuted)))

	trail, err := store.BySession(ctx, session, 0)
	require.NoError(t, err)
	require.Len(t, trail, 2)

	got := trail[0]
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, int64(1), got.Sequence)
	assert.Equal(t, security.AuditActionValidated, got.Type)
	assert.Equal(t, security.RiskHigh, got.RiskLevel)
	assert.Equal(t, []string{"payment", "destructive"}, got.Categories)
	assert.Equal(t, "#pay-now", got.Details["selector"])
	assert.Equal(t, security.AuditActionExecuted, trail[1].Type)
}

func TestAuditStoreBySessionIsolatesSessions(t *testing.T) {
	store := newTestAuditStore(t)
	ctx := context.Background()
	mine := types.NewID()
	other := types.NewID()

	require.NoError(t, store.Append(ctx, auditEvent(mine, 1, security.AuditSessionStarted)))
	require.NoError(t, store.Append(ctx, auditEvent(other, 1, security.AuditSessionStarted)))

	trail, err := store.BySession(ctx, mine, 0)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, mine, trail[0].SessionID)
}

func TestAuditStoreLimit(t *testing.T) {
	store := newTestAuditStore(t)
	ctx := context.Background()
	session := types.NewID()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, store.Append(ctx, auditEvent(session, i, security.AuditActionExecuted)))
	}

	trail, err := store.BySession(ctx, session, 3)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, int64(1), trail[0].Sequence)
	assert.Equal(t, int64(3), trail[2].Sequence)
}

func TestAuditStoreCountByType(t *testing.T) {
	store := newTestAuditStore(t)
	ctx := context.Background()
	session := types.NewID()

	require.NoError(t, store.Append(ctx, auditEvent(session, 1, security.AuditActionExecuted)))
	require.NoError(t, store.Append(ctx, auditEvent(session, 2, security.AuditActionExecuted)))
	require.NoError(t, store.Append(ctx, auditEvent(session, 3, security.AuditActionBlocked)))

	counts, err := store.CountByType(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[security.AuditActionExecuted])
	assert.Equal(t, 1, counts[security.AuditActionBlocked])
}

func TestAuditStoreVerifyDetectsSequenceGap(t *testing.T) {
	store := newTestAuditStore(t)
	ctx := context.Background()
	session := types.NewID()

	require.NoError(t, store.Append(ctx, auditEvent(session, 1, security.AuditActionExecuted)))
	require.NoError(t, store.Append(ctx, auditEvent(session, 2, security.AuditActionExecuted)))
	require.NoError(t, store.Verify(ctx, session))

	require.NoError(t, store.Append(ctx, auditEvent(session, 4, security.AuditActionExecuted)))
	err := store.Verify(ctx, session)
	require.Error(t, err)
	var agentErr *types.AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, types.STORE_CORRUPT, agentErr.Code)
}
