package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversFilteredEvents(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx := context.Background()
	ch, cleanup := bus.Subscribe(ctx, Filter{Types: []EventType{EventTaskCompleted}})
	defer cleanup()

	require.NoError(t, bus.Publish(ctx, NewEvent(EventTaskStarted, "t-1", nil)))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventTaskCompleted, "t-1", nil)))

	select {
	case e := <-ch:
		assert.Equal(t, EventTaskCompleted, e.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event not delivered")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected extra event %v", e.Type)
	default:
	}
}

func TestBusSeverityFilterForAuditAlerts(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx := context.Background()
	ch, cleanup := bus.Subscribe(ctx, Filter{
		Types:      []EventType{EventAuditRecorded},
		Severities: []string{"high", "critical"},
	})
	defer cleanup()

	low := NewEvent(EventAuditRecorded, "t-1", nil)
	low.Severity = "low"
	critical := NewEvent(EventAuditRecorded, "t-1", nil)
	critical.Severity = "critical"

	require.NoError(t, bus.Publish(ctx, low))
	require.NoError(t, bus.Publish(ctx, critical))

	select {
	case e := <-ch:
		assert.Equal(t, "critical", e.Severity)
	case <-time.After(time.Second):
		t.Fatal("expected critical audit event")
	}
}

func TestBusDropsForSlowSubscriberOnly(t *testing.T) {
	bus := NewBus(WithBufferSize(1))
	defer bus.Close()

	ctx := context.Background()
	slow, cleanupSlow := bus.Subscribe(ctx, Filter{})
	defer cleanupSlow()
	_ = slow // never drained

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(ctx, NewEvent(EventTaskProgress, "t-1", nil)))
	}
	// Publish returned without blocking; the slow subscriber kept only its
	// buffered event.
	assert.Len(t, slow, 1)
}

func TestBusClosedPublishFails(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Close())
	assert.Error(t, bus.Publish(context.Background(), NewEvent(EventTaskStarted, "t-1", nil)))
	assert.NoError(t, bus.Close())
}

func TestBusCleanupRemovesSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, cleanup := bus.Subscribe(context.Background(), Filter{})
	require.Equal(t, 1, bus.SubscriberCount())
	cleanup()
	assert.Equal(t, 0, bus.SubscriberCount())
}
