// Package tui renders a live terminal view of one task's execution, fed by
// the engine's event bus.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/webpilot-ai/webpilot/internal/events"
	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
)

const activityTail = 8

// eventMsg wraps a bus event for the update loop.
type eventMsg events.Event

// eventsClosedMsg signals that the subscription channel closed.
type eventsClosedMsg struct{}

// tickMsg drives the elapsed-time display.
type tickMsg time.Time

// Model is the bubbletea model monitoring a single task.
type Model struct {
	taskID      types.ID
	description string

	ch      <-chan events.Event
	cleanup func()

	spinner spinner.Model
	bar     progress.Model

	status      string
	currentStep string
	progress    float64
	executed    int
	failed      int
	blocked     int
	activity    []string
	startTime   time.Time

	done         bool
	succeeded    bool
	finalMessage string

	width int
}

// New creates a monitor for the given task, subscribed to its events.
// The subscription is released when the program quits.
func New(ctx context.Context, bus *events.Bus, t *task.Task) Model {
	ch, cleanup := bus.Subscribe(ctx, events.Filter{TaskID: t.ID})

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = stepStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	return Model{
		taskID:      t.ID,
		description: t.Description,
		ch:          ch,
		cleanup:     cleanup,
		spinner:     s,
		bar:         bar,
		status:      "starting",
		startTime:   time.Now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent(), m.tickCmd())
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(event)
	}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		barWidth := msg.Width - 10
		if barWidth > 50 {
			barWidth = 50
		}
		if barWidth > 0 {
			m.bar.Width = barWidth
		}
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, m.tickCmd()

	case eventMsg:
		m.apply(events.Event(msg))
		return m, m.waitForEvent()

	case eventsClosedMsg:
		if !m.done {
			m.done = true
			m.finalMessage = "event stream closed"
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cleanup != nil {
				m.cleanup()
			}
			return m, tea.Quit
		}
	}
	return m, nil
}

// apply folds one engine event into the display state.
func (m *Model) apply(e events.Event) {
	switch e.Type {
	case events.EventTaskStarted:
		m.status = "running"

	case events.EventTaskProgress:
		if p, ok := payloadFloat(e.Payload, "progress"); ok {
			m.progress = p
		}
		if step, ok := e.Payload["current_step"].(string); ok {
			m.currentStep = step
		}

	case events.EventActionExecuted:
		m.executed++
		m.addActivity(successStyle.Render("✓") + " " + describeAction(e.Payload))

	case events.EventActionFailed:
		m.failed++
		m.addActivity(errorStyle.Render("✗") + " " + describeAction(e.Payload))

	case events.EventActionBlocked:
		m.blocked++
		m.addActivity(warnStyle.Render("⊘") + " blocked: " + describeAction(e.Payload))

	case events.EventRecoveryAttempted:
		if strategy, ok := e.Payload["strategy"].(string); ok {
			m.addActivity(subtleStyle.Render("↻ recovery: " + strategy))
		}

	case events.EventDegradationApplied:
		if level, ok := e.Payload["level"].(string); ok {
			m.addActivity(warnStyle.Render("~ degraded to " + level))
		}

	case events.EventEscalationRaised:
		m.addActivity(warnStyle.Render("? waiting on user input"))

	case events.EventTaskCompleted:
		m.done = true
		m.succeeded = true
		m.progress = 1
		m.status = "completed"
		m.finalMessage = "task completed"

	case events.EventTaskFailed:
		m.done = true
		m.status = "failed"
		m.finalMessage = "task failed"
		if msg, ok := e.Payload["error"].(string); ok && msg != "" {
			m.finalMessage = msg
		}

	case events.EventTaskCancelled:
		m.done = true
		m.status = "cancelled"
		m.finalMessage = "task cancelled"
	}
}

func (m *Model) addActivity(line string) {
	m.activity = append(m.activity, line)
	if len(m.activity) > activityTail {
		m.activity = m.activity[len(m.activity)-activityTail:]
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("webpilot") + " " + m.description + "\n\n")

	if m.done {
		mark := errorStyle.Render("✗")
		if m.succeeded {
			mark = successStyle.Render("✓")
		}
		b.WriteString(fmt.Sprintf("%s %s\n\n", mark, m.finalMessage))
	} else {
		step := m.currentStep
		if step == "" {
			step = m.status
		}
		b.WriteString(m.spinner.View() + stepStyle.Render(step) + "\n\n")
	}

	b.WriteString(m.bar.ViewAs(m.progress) + "\n\n")

	elapsed := time.Since(m.startTime).Round(time.Second)
	b.WriteString(fmt.Sprintf("%d ok · %d failed · %d blocked · %s\n",
		m.executed, m.failed, m.blocked, elapsed))

	if len(m.activity) > 0 {
		b.WriteString("\n")
		for _, line := range m.activity {
			b.WriteString("  " + line + "\n")
		}
	}

	b.WriteString("\n" + subtleStyle.Render("q quit") + "\n")
	return b.String()
}

// describeAction renders an action payload as "type target".
func describeAction(payload map[string]any) string {
	actionType, _ := payload["type"].(string)
	target, _ := payload["target"].(string)
	if target == "" {
		return actionType
	}
	return actionType + " " + target
}

func payloadFloat(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Run starts the monitor program and blocks until it exits.
func Run(ctx context.Context, bus *events.Bus, t *task.Task) error {
	p := tea.NewProgram(New(ctx, bus, t))
	_, err := p.Run()
	return err
}
