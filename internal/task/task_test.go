package task

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskLifecycle(t *testing.T) {
	tests := []struct {
		name       string
		transition func(*Task) error
		wantStatus Status
		wantStamp  bool
	}{
		{
			name:       "complete sets terminal status and timestamp",
			transition: func(tk *Task) error { return tk.Complete(map[string]any{"ok": true}) },
			wantStatus: StatusCompleted,
			wantStamp:  true,
		},
		{
			name:       "fail sets terminal status and timestamp",
			transition: func(tk *Task) error { return tk.Fail("boom") },
			wantStatus: StatusFailed,
			wantStamp:  true,
		},
		{
			name:       "cancel sets terminal status and timestamp",
			transition: func(tk *Task) error { return tk.Cancel() },
			wantStatus: StatusCancelled,
			wantStamp:  true,
		},
		{
			name:       "require input is not terminal",
			transition: func(tk *Task) error { return tk.RequireInput() },
			wantStatus: StatusRequiresInput,
			wantStamp:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := New("check order status")
			require.Equal(t, StatusPending, tk.Status)
			require.Nil(t, tk.CompletedAt)

			require.NoError(t, tk.Start())
			require.NoError(t, tt.transition(tk))
			assert.Equal(t, tt.wantStatus, tk.Status)
			if tt.wantStamp {
				assert.NotNil(t, tk.CompletedAt)
			} else {
				assert.Nil(t, tk.CompletedAt)
			}
		})
	}
}

func TestTaskCompletedAtNeverChanges(t *testing.T) {
	tk := New("one shot")
	require.NoError(t, tk.Start())
	require.NoError(t, tk.Complete(nil))
	stamp := *tk.CompletedAt

	assert.Error(t, tk.Fail("late failure"))
	assert.Error(t, tk.Cancel())
	assert.Equal(t, stamp, *tk.CompletedAt)
	assert.Equal(t, StatusCompleted, tk.Status)
}

func TestTaskResetClearsCompletion(t *testing.T) {
	tk := New("retryable")
	require.NoError(t, tk.Start())
	require.NoError(t, tk.Fail("driver fault"))
	require.NotNil(t, tk.CompletedAt)

	require.NoError(t, tk.Reset())
	assert.Equal(t, StatusPending, tk.Status)
	assert.Nil(t, tk.CompletedAt)
	assert.Empty(t, tk.Error)
}

func TestTaskStartRequiresPending(t *testing.T) {
	tk := New("already running")
	require.NoError(t, tk.Start())
	assert.Error(t, tk.Start())
}

func TestTaskRoundTrip(t *testing.T) {
	tk := New("serialize me")
	tk.Plan = NewPlan(tk.ID)
	tk.Plan.Steps = append(tk.Plan.Steps,
		NewStep("open mail", ActionNavigate, map[string]any{"url": "https://mail.example.com"}),
		NewStep("read inbox", ActionExtract, nil),
	)
	require.NoError(t, tk.Start())
	require.NoError(t, tk.Complete(map[string]any{"messages": float64(3)}))

	restored, err := FromMap(tk.ToMap())
	require.NoError(t, err)
	assert.Equal(t, tk.ID, restored.ID)
	assert.Equal(t, StatusCompleted, restored.Status)
	require.NotNil(t, restored.CompletedAt)
	assert.True(t, tk.CompletedAt.Equal(*restored.CompletedAt))
	require.NotNil(t, restored.Plan)
	assert.Len(t, restored.Plan.Steps, 2)
	assert.Equal(t, ActionExtract, restored.Plan.Steps[1].ActionType)
}

func TestFromMapRejectsCorruptRecords(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
	}{
		{"missing id", map[string]any{"status": "pending"}},
		{"unknown status", map[string]any{"id": "x", "status": "paused"}},
		{"missing created_at", map[string]any{"id": "x", "status": "pending"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.record)
			assert.Error(t, err)
		})
	}
}

func TestPlanIndexInvariants(t *testing.T) {
	p := NewPlan("task-1")
	p.Steps = append(p.Steps,
		NewStep("a", ActionWait, map[string]any{"duration": 1.0}),
		NewStep("b", ActionExtract, nil),
	)
	require.NoError(t, p.Validate())

	seen := p.CurrentStepIndex
	for range p.Steps {
		p.Advance()
		assert.GreaterOrEqual(t, p.CurrentStepIndex, seen)
		seen = p.CurrentStepIndex
	}
	// Advancing past the end is a no-op.
	p.Advance()
	assert.Equal(t, len(p.Steps), p.CurrentStepIndex)
	assert.True(t, p.IsComplete())
	assert.Nil(t, p.CurrentStep())
}

func TestPlanInsertKeepsFailedStep(t *testing.T) {
	p := NewPlan("task-2")
	p.Steps = append(p.Steps,
		NewStep("navigate", ActionNavigate, map[string]any{"url": "https://example.com"}),
		NewStep("click", ActionClick, nil),
		NewStep("extract", ActionExtract, nil),
	)
	p.Steps[1].Error = "element not found"

	alts := []TaskStep{
		NewStep("scroll into view", ActionScroll, nil),
		NewStep("retry click", ActionClick, nil),
	}
	require.NoError(t, p.InsertStepsAfter(1, alts))

	require.Len(t, p.Steps, 5)
	assert.Equal(t, "click", p.Steps[1].Description)
	assert.Equal(t, "scroll into view", p.Steps[2].Description)
	assert.Equal(t, "retry click", p.Steps[3].Description)
	assert.Equal(t, "extract", p.Steps[4].Description)
}

func TestPlanValidateRejectsBadIndex(t *testing.T) {
	p := NewPlan("task-3")
	p.Steps = append(p.Steps, NewStep("a", ActionExtract, nil))
	p.CurrentStepIndex = 5
	assert.Error(t, p.Validate())
}

func TestActionValidate(t *testing.T) {
	tests := []struct {
		name    string
		action  *Action
		wantErr bool
	}{
		{"valid click", NewAction(ActionClick, "#submit"), false},
		{"click without target", NewAction(ActionClick, ""), true},
		{"type without text", NewAction(ActionInput, "#field"), true},
		{"wait without duration", NewAction(ActionWait, ""), true},
		{"unknown type", &Action{Type: "teleport", Confidence: 0.5}, true},
		{"confidence above one", &Action{Type: ActionExtract, Confidence: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActionConfidenceNeverAmplifies(t *testing.T) {
	a := NewAction(ActionClick, "#a")
	a.Confidence = 0.4
	a.WithConfidence(0.9)
	assert.Equal(t, 0.4, a.Confidence)
	a.WithConfidence(0.2)
	assert.Equal(t, 0.2, a.Confidence)
}

func TestTaskContextMerge(t *testing.T) {
	ctx := NewTaskContext()
	ctx.SetShared(map[string]any{"session": "s-1", "lang": "en"})
	ctx.Set("t-1", map[string]any{"lang": "de", "page": "inbox"})

	combined := ctx.Get("t-1")
	assert.Equal(t, "s-1", combined["session"])
	assert.Equal(t, "de", combined["lang"]) // task bucket wins
	assert.Equal(t, "inbox", combined["page"])

	other := ctx.Get("t-2")
	assert.Equal(t, "en", other["lang"])
	_, hasPage := other["page"]
	assert.False(t, hasPage)
}

func TestTaskContextConcurrentWrites(t *testing.T) {
	ctx := NewTaskContext()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ctx.Set("t-1", map[string]any{"writer": n, "steady": "value"})
			_ = ctx.Get("t-1")
		}(i)
	}
	wg.Wait()
	got := ctx.Get("t-1")
	assert.Equal(t, "value", got["steady"])
	assert.Contains(t, got, "writer")
}

func TestManagerQueue(t *testing.T) {
	m := NewManager(nil)
	a := m.Create("first")
	b := m.Create("second")
	require.Equal(t, 2, m.Pending())

	require.NoError(t, m.Cancel(a.ID))

	next, ok := m.Next()
	require.True(t, ok)
	assert.Equal(t, b.ID, next.ID)

	_, ok = m.Next()
	assert.False(t, ok)
}

func TestManagerRejectsDuplicateSubmit(t *testing.T) {
	m := NewManager(nil)
	tk := New("dup")
	require.NoError(t, m.Submit(tk))
	assert.Error(t, m.Submit(tk))
}
