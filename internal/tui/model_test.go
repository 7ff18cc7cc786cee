package tui

import (
	"context"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/internal/events"
	"github.com/webpilot-ai/webpilot/internal/task"
)

func newTestModel(t *testing.T) (Model, *task.Task) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(func() { bus.Close() })
	tk := task.New("book a table for two")
	return New(context.Background(), bus, tk), tk
}

func applyEvent(m Model, e events.Event) Model {
	next, _ := m.Update(eventMsg(e))
	return next.(Model)
}

func TestModelTracksProgressEvents(t *testing.T) {
	m, tk := newTestModel(t)

	m = applyEvent(m, events.NewEvent(events.EventTaskStarted, tk.ID, nil))
	assert.Equal(t, "running", m.status)

	m = applyEvent(m, events.NewEvent(events.EventTaskProgress, tk.ID, map[string]any{
		"progress":     0.5,
		"current_step": "Fill the reservation form",
	}))
	assert.Equal(t, 0.5, m.progress)
	assert.Equal(t, "Fill the reservation form", m.currentStep)

	m = applyEvent(m, events.NewEvent(events.EventActionExecuted, tk.ID, map[string]any{
		"type": "click", "target": "#submit",
	}))
	m = applyEvent(m, events.NewEvent(events.EventActionFailed, tk.ID, map[string]any{
		"type": "click", "error": "element not found",
	}))
	m = applyEvent(m, events.NewEvent(events.EventActionBlocked, tk.ID, map[string]any{
		"type": "click", "reason": "denied",
	}))
	assert.Equal(t, 1, m.executed)
	assert.Equal(t, 1, m.failed)
	assert.Equal(t, 1, m.blocked)
	assert.Len(t, m.activity, 3)
}

func TestModelActivityTailIsBounded(t *testing.T) {
	m, tk := newTestModel(t)
	for i := 0; i < activityTail+5; i++ {
		m = applyEvent(m, events.NewEvent(events.EventActionExecuted, tk.ID, map[string]any{
			"type": "click", "target": fmt.Sprintf("#el-%d", i),
		}))
	}
	assert.Len(t, m.activity, activityTail)
	assert.Contains(t, m.activity[activityTail-1], fmt.Sprintf("#el-%d", activityTail+4))
}

func TestModelTerminalEvents(t *testing.T) {
	m, tk := newTestModel(t)
	m = applyEvent(m, events.NewEvent(events.EventTaskCompleted, tk.ID, nil))
	assert.True(t, m.done)
	assert.True(t, m.succeeded)
	assert.Equal(t, 1.0, m.progress)

	m2, tk2 := newTestModel(t)
	m2 = applyEvent(m2, events.NewEvent(events.EventTaskFailed, tk2.ID, map[string]any{
		"error": "action budget exhausted after 50 executions",
	}))
	assert.True(t, m2.done)
	assert.False(t, m2.succeeded)
	assert.Contains(t, m2.finalMessage, "budget exhausted")
}

func TestModelViewShowsState(t *testing.T) {
	m, tk := newTestModel(t)
	m = applyEvent(m, events.NewEvent(events.EventTaskProgress, tk.ID, map[string]any{
		"progress":     0.25,
		"current_step": "Open the booking page",
	}))

	view := m.View()
	assert.Contains(t, view, "book a table for two")
	assert.Contains(t, view, "Open the booking page")
	assert.Contains(t, view, "0 failed")

	m = applyEvent(m, events.NewEvent(events.EventTaskCompleted, tk.ID, nil))
	assert.Contains(t, m.View(), "task completed")
}

func TestModelQuitKey(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
