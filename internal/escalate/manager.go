package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/webpilot-ai/webpilot/internal/events"
	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
	"github.com/webpilot-ai/webpilot/internal/ui"
)

const (
	defaultBaseTimeout = 5 * time.Minute
	immediateCap       = time.Minute
	guidanceMinLen     = 20
)

// Context describes one escalation to raise.
type Context struct {
	Reason            Reason
	Priority          Priority
	Task              *task.Task
	Action            *task.Action
	ErrorMessage      string
	CurrentState      map[string]any
	AvailableOptions  []string
	RecommendedAction string
	RequiresImmediate bool
	Timestamp         time.Time
}

// Result is the outcome of one escalation.
type Result struct {
	Response           Response
	UserInput          string
	SelectedOption     string
	AdditionalGuidance string
	ShouldContinue     bool
	Resolved           bool
	ResponseTime       time.Duration
	FallbackUsed       bool
}

// Manager raises escalations to the user channel and classifies the answers.
// With no channel configured it resolves from a static fallback table without
// blocking.
type Manager struct {
	baseTimeout time.Duration
	channel     ui.Channel
	bus         *events.Bus
	logger      *slog.Logger

	mu               sync.Mutex
	history          []Context
	responsePatterns map[Reason]map[Response]int
}

// Option configures a Manager.
type Option func(*Manager)

// WithBaseTimeout overrides the base escalation timeout. Default: 5 minutes.
func WithBaseTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.baseTimeout = d
		}
	}
}

// WithBus attaches an event bus for escalation.raised events.
func WithBus(bus *events.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// NewManager creates a Manager. channel may be nil for no-channel mode.
func NewManager(channel ui.Channel, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		baseTimeout:      defaultBaseTimeout,
		channel:          channel,
		logger:           logger,
		responsePatterns: make(map[Reason]map[Response]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Timeout computes the response window for a priority, applying the
// immediate-response cap when asked.
func (m *Manager) Timeout(priority Priority, requiresImmediate bool) time.Duration {
	mult, ok := timeoutMultipliers[priority]
	if !ok {
		mult = 1.0
	}
	timeout := time.Duration(float64(m.baseTimeout) * mult)
	if requiresImmediate && timeout > immediateCap {
		timeout = immediateCap
	}
	return timeout
}

// Escalate raises the escalation and returns the user's decision. A missing
// channel resolves immediately from the fallback table; a prompt timeout
// resolves by priority (critical aborts, high skips, the rest continue).
func (m *Manager) Escalate(ctx context.Context, ec Context) Result {
	if ec.Timestamp.IsZero() {
		ec.Timestamp = time.Now()
	}
	m.logger.Info("escalating to user", "reason", ec.Reason, "priority", ec.Priority)
	m.publishRaised(ctx, ec)

	if m.channel == nil {
		result := m.noChannelFallback(ec)
		m.finish(ec, result.Response)
		return result
	}

	start := time.Now()
	message := m.buildMessage(ec)
	tmpl := templateFor(ec.Reason)

	level := displayLevel(ec.Priority)
	if err := m.channel.Display(ctx, message, level); err != nil {
		m.logger.Warn("escalation display failed", "error", err)
	}
	if ec.RecommendedAction != "" {
		_ = m.channel.Display(ctx, "Recommended: "+ec.RecommendedAction, ui.LevelInfo)
	}

	options := ec.AvailableOptions
	if len(options) == 0 {
		options = tmpl.defaultOptions
	}
	timeout := m.Timeout(ec.Priority, tmpl.requiresImmediate || ec.RequiresImmediate)

	answer, err := m.channel.Prompt(ctx, "How would you like me to proceed?", options, timeout)
	if err != nil {
		m.logger.Warn("escalation prompt failed, applying timeout fallback",
			"priority", ec.Priority, "error", err)
		answer = timeoutFallback(ec.Priority)
	}
	if answer == "" && len(options) > 0 {
		answer = options[0]
	}
	if answer == "" {
		answer = "continue"
	}

	result := m.classify(ec, answer, time.Since(start))
	m.finish(ec, result.Response)
	m.logger.Info("escalation resolved", "response", result.Response)
	return result
}

func templateFor(reason Reason) template {
	if tmpl, ok := templates[reason]; ok {
		return tmpl
	}
	return template{
		title:          "User Input Required: " + reason.String(),
		body:           "I need your input to proceed:\n\n%s",
		defaultOptions: []string{"Continue", "Skip", "Abort"},
	}
}

func (m *Manager) buildMessage(ec Context) string {
	tmpl := templateFor(ec.Reason)

	detail := ec.ErrorMessage
	if detail == "" && ec.Action != nil {
		detail = ec.Action.Description
	}
	if detail == "" {
		detail = "No additional details available"
	}

	var b strings.Builder
	b.WriteString(tmpl.title)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, tmpl.body, detail)
	if len(ec.AvailableOptions) > 0 {
		b.WriteString("\n\nOptions:\n")
		for _, opt := range ec.AvailableOptions {
			b.WriteString("- " + opt + "\n")
		}
	}
	return b.String()
}

func displayLevel(priority Priority) ui.Level {
	switch priority {
	case PriorityCritical:
		return ui.LevelError
	case PriorityHigh:
		return ui.LevelWarning
	}
	return ui.LevelInfo
}

// timeoutFallback picks the answer substituted when the user never responds.
func timeoutFallback(priority Priority) string {
	switch priority {
	case PriorityCritical:
		return "abort"
	case PriorityHigh:
		return "skip"
	}
	return "continue"
}

var responseKeywords = []struct {
	response Response
	keywords []string
}{
	{ResponseAbort, []string{"abort", "cancel", "stop"}},
	{ResponseRetry, []string{"retry", "try again"}},
	{ResponseSkip, []string{"skip", "ignore", "bypass"}},
	{ResponseModify, []string{"modify", "change", "edit"}},
	{ResponseManualTakeover, []string{"manual", "takeover", "control"}},
	{ResponseProvideGuidance, []string{"guidance", "help", "explain"}},
}

func (m *Manager) classify(ec Context, answer string, elapsed time.Duration) Result {
	lower := strings.ToLower(strings.TrimSpace(answer))

	response := ResponseContinue
	for _, rk := range responseKeywords {
		matched := false
		for _, kw := range rk.keywords {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
		if matched {
			response = rk.response
			break
		}
	}

	var selected string
	for _, option := range ec.AvailableOptions {
		if strings.Contains(lower, strings.ToLower(option)) {
			selected = option
			break
		}
	}

	var guidance string
	if len(answer) > guidanceMinLen {
		guidance = answer
	}

	return Result{
		Response:           response,
		UserInput:          answer,
		SelectedOption:     selected,
		AdditionalGuidance: guidance,
		ShouldContinue:     response.ShouldContinue(),
		Resolved:           response.IsResolved(),
		ResponseTime:       elapsed,
	}
}

// noChannelFallback resolves an escalation from the static table without
// blocking. Unlisted reasons continue.
func (m *Manager) noChannelFallback(ec Context) Result {
	response, ok := noChannelFallbacks[ec.Reason]
	if !ok {
		response = ResponseContinue
	}
	m.logger.Warn("no user channel configured, using fallback",
		"reason", ec.Reason, "response", response)
	return Result{
		Response:       response,
		UserInput:      "automatic fallback (no user channel)",
		ShouldContinue: response != ResponseAbort,
		Resolved:       true,
		FallbackUsed:   true,
	}
}

func (m *Manager) finish(ec Context, response Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, ec)
	if m.responsePatterns[ec.Reason] == nil {
		m.responsePatterns[ec.Reason] = make(map[Response]int)
	}
	m.responsePatterns[ec.Reason][response]++
}

func (m *Manager) publishRaised(ctx context.Context, ec Context) {
	if m.bus == nil {
		return
	}
	var id types.ID
	if ec.Task != nil {
		id = ec.Task.ID
	}
	event := events.NewEvent(events.EventEscalationRaised, id, map[string]any{
		"reason":   ec.Reason.String(),
		"priority": ec.Priority.String(),
	})
	_ = m.bus.Publish(ctx, event)
}

// PreferredResponse returns the user's historically most common response for
// a reason, or false when there is no history.
func (m *Manager) PreferredResponse(reason Reason) (Response, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	patterns := m.responsePatterns[reason]
	if len(patterns) == 0 {
		return "", false
	}
	var best Response
	bestCount := -1
	for response, count := range patterns {
		if count > bestCount {
			best = response
			bestCount = count
		}
	}
	return best, true
}

// Stats summarizes escalation activity.
type Stats struct {
	TotalEscalations int
	ReasonCounts     map[Reason]int
	PriorityCounts   map[Priority]int
}

// Statistics returns a snapshot of escalation counters.
func (m *Manager) Statistics() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		TotalEscalations: len(m.history),
		ReasonCounts:     make(map[Reason]int),
		PriorityCounts:   make(map[Priority]int),
	}
	for _, ec := range m.history {
		stats.ReasonCounts[ec.Reason]++
		stats.PriorityCounts[ec.Priority]++
	}
	return stats
}
