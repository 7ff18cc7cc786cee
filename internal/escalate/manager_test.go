package escalate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/ui"
)

type scriptedChannel struct {
	mu        sync.Mutex
	replies   []string
	promptErr error
	Prompts   []string
	Timeouts  []time.Duration
	Messages  []string
}

func (c *scriptedChannel) Display(ctx context.Context, message string, level ui.Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = append(c.Messages, message)
	return nil
}

func (c *scriptedChannel) Prompt(ctx context.Context, question string, options []string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prompts = append(c.Prompts, question)
	c.Timeouts = append(c.Timeouts, timeout)
	if c.promptErr != nil {
		return "", c.promptErr
	}
	if len(c.replies) == 0 {
		return "", context.DeadlineExceeded
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func TestTimeoutScalesByPriority(t *testing.T) {
	m := NewManager(nil, nil)

	tests := []struct {
		priority  Priority
		immediate bool
		want      time.Duration
	}{
		{PriorityCritical, false, 150 * time.Second},
		{PriorityHigh, false, 210 * time.Second},
		{PriorityMedium, false, 300 * time.Second},
		{PriorityLow, false, 600 * time.Second},
		{PriorityCritical, true, 60 * time.Second},
		{PriorityMedium, true, 60 * time.Second},
	}
	for _, tt := range tests {
		got := m.Timeout(tt.priority, tt.immediate)
		assert.Equal(t, tt.want, got, "%s immediate=%v", tt.priority, tt.immediate)
	}
}

func TestEscalateClassifiesResponses(t *testing.T) {
	tests := []struct {
		answer         string
		want           Response
		wantContinue   bool
		wantResolved   bool
	}{
		{"please retry that step", ResponseRetry, true, true},
		{"skip it", ResponseSkip, true, true},
		{"abort the whole thing", ResponseAbort, false, true},
		{"modify the target first", ResponseModify, true, false},
		{"I'll take manual control", ResponseManualTakeover, false, false},
		{"explain what happened", ResponseProvideGuidance, true, false},
		{"sounds fine", ResponseContinue, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			channel := &scriptedChannel{replies: []string{tt.answer}}
			m := NewManager(channel, nil)

			result := m.Escalate(context.Background(), Context{
				Reason:       ReasonUnresolvableError,
				Priority:     PriorityMedium,
				ErrorMessage: "element vanished",
			})
			assert.Equal(t, tt.want, result.Response)
			assert.Equal(t, tt.wantContinue, result.ShouldContinue)
			assert.Equal(t, tt.wantResolved, result.Resolved)
		})
	}
}

func TestEscalateDisplaysTemplateAndOptions(t *testing.T) {
	channel := &scriptedChannel{replies: []string{"retry"}}
	m := NewManager(channel, nil)

	m.Escalate(context.Background(), Context{
		Reason:           ReasonUnresolvableError,
		Priority:         PriorityMedium,
		ErrorMessage:     "click failed repeatedly",
		AvailableOptions: []string{"Retry", "Give up"},
		RecommendedAction: "Retry",
	})

	require.NotEmpty(t, channel.Messages)
	assert.Contains(t, channel.Messages[0], "Unresolvable Error Encountered")
	assert.Contains(t, channel.Messages[0], "click failed repeatedly")
	assert.Contains(t, channel.Messages[0], "- Give up")
	assert.Contains(t, channel.Messages[1], "Recommended: Retry")
}

func TestEscalateTimeoutFallbackByPriority(t *testing.T) {
	tests := []struct {
		priority     Priority
		want         Response
		wantContinue bool
	}{
		{PriorityCritical, ResponseAbort, false},
		{PriorityHigh, ResponseSkip, true},
		{PriorityMedium, ResponseContinue, true},
		{PriorityLow, ResponseContinue, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			channel := &scriptedChannel{promptErr: context.DeadlineExceeded}
			m := NewManager(channel, nil)

			result := m.Escalate(context.Background(), Context{
				Reason:   ReasonUnexpectedScenario,
				Priority: tt.priority,
			})
			assert.Equal(t, tt.want, result.Response)
			assert.Equal(t, tt.wantContinue, result.ShouldContinue)
		})
	}
}

func TestEscalateImmediateReasonsCapTimeout(t *testing.T) {
	channel := &scriptedChannel{replies: []string{"proceed"}}
	m := NewManager(channel, nil)

	m.Escalate(context.Background(), Context{
		Reason:   ReasonDestructiveAction,
		Priority: PriorityHigh,
		Action:   task.NewAction(task.ActionClick, "#delete"),
	})

	require.Len(t, channel.Timeouts, 1)
	assert.Equal(t, time.Minute, channel.Timeouts[0])
}

func TestEscalateNoChannelFallbackTable(t *testing.T) {
	tests := []struct {
		reason       Reason
		want         Response
		wantContinue bool
	}{
		{ReasonSecurityConcern, ResponseAbort, false},
		{ReasonDestructiveAction, ResponseAbort, false},
		{ReasonAuthenticationRequired, ResponseSkip, true},
		{ReasonUnresolvableError, ResponseSkip, true},
		{ReasonTechnicalLimitation, ResponseSkip, true},
		{ReasonMultipleOptions, ResponseContinue, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			m := NewManager(nil, nil)

			done := make(chan Result, 1)
			go func() {
				done <- m.Escalate(context.Background(), Context{Reason: tt.reason, Priority: PriorityHigh})
			}()

			select {
			case result := <-done:
				assert.Equal(t, tt.want, result.Response)
				assert.Equal(t, tt.wantContinue, result.ShouldContinue)
				assert.True(t, result.Resolved)
				assert.True(t, result.FallbackUsed)
			case <-time.After(time.Second):
				t.Fatal("no-channel escalation must not block")
			}
		})
	}
}

func TestEscalateSelectsMatchingOption(t *testing.T) {
	channel := &scriptedChannel{replies: []string{"let's try the workaround"}}
	m := NewManager(channel, nil)

	result := m.Escalate(context.Background(), Context{
		Reason:           ReasonTechnicalLimitation,
		Priority:         PriorityMedium,
		AvailableOptions: []string{"Try workaround", "Skip this step"},
	})
	assert.Equal(t, "let's try the workaround", result.UserInput)
	assert.Equal(t, "let's try the workaround", result.AdditionalGuidance)
	assert.Empty(t, result.SelectedOption) // phrase does not contain a full option
}

func TestPreferredResponseTracksHistory(t *testing.T) {
	channel := &scriptedChannel{replies: []string{"skip", "skip", "retry"}}
	m := NewManager(channel, nil)

	for i := 0; i < 3; i++ {
		m.Escalate(context.Background(), Context{Reason: ReasonUnresolvableError, Priority: PriorityMedium})
	}

	preferred, ok := m.PreferredResponse(ReasonUnresolvableError)
	require.True(t, ok)
	assert.Equal(t, ResponseSkip, preferred)

	_, ok = m.PreferredResponse(ReasonSecurityConcern)
	assert.False(t, ok)
}

func TestStatistics(t *testing.T) {
	channel := &scriptedChannel{replies: []string{"continue", "continue"}}
	m := NewManager(channel, nil)

	m.Escalate(context.Background(), Context{Reason: ReasonMultipleOptions, Priority: PriorityLow})
	m.Escalate(context.Background(), Context{Reason: ReasonMultipleOptions, Priority: PriorityHigh})

	stats := m.Statistics()
	assert.Equal(t, 2, stats.TotalEscalations)
	assert.Equal(t, 2, stats.ReasonCounts[ReasonMultipleOptions])
	assert.Equal(t, 1, stats.PriorityCounts[PriorityHigh])
}
