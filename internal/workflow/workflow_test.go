package workflow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webpilot-ai/webpilot/internal/browser"
	"github.com/webpilot-ai/webpilot/internal/decision"
	"github.com/webpilot-ai/webpilot/internal/degrade"
	"github.com/webpilot-ai/webpilot/internal/escalate"
	"github.com/webpilot-ai/webpilot/internal/llm/providers"
	"github.com/webpilot-ai/webpilot/internal/planner"
	"github.com/webpilot-ai/webpilot/internal/recovery"
	"github.com/webpilot-ai/webpilot/internal/security"
	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
	"github.com/webpilot-ai/webpilot/internal/ui"
)

// scriptedChannel is a minimal ui.Channel double for escalation paths.
type scriptedChannel struct {
	mu      sync.Mutex
	replies []string
}

func (c *scriptedChannel) Display(ctx context.Context, message string, level ui.Level) error {
	return nil
}

func (c *scriptedChannel) Prompt(ctx context.Context, question string, options []string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return "", context.DeadlineExceeded
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

type harness struct {
	driver *browser.ScriptedDriver
	stub   *providers.StubProvider
	wf     *Workflow
}

type harnessOptions struct {
	cfg             Config
	settings        security.Settings
	escalateChannel ui.Channel
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.CycleDelay = time.Millisecond
	cfg.FindTimeout = time.Millisecond
	cfg.ProgressInterval = time.Hour
	return cfg
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	driver := browser.NewScriptedDriver()
	stub := providers.NewStubProvider("no decision available")

	settings := opts.settings
	if !settings.ConfirmationMode.IsValid() {
		settings = security.DefaultSettings()
		settings.ConfirmationMode = security.ModeAutoApprove
	}
	gate := security.NewGate(
		security.NewValidator(),
		security.NewConfirmer(settings, nil),
		security.NewAuditor(types.NewID(), nil, nil, nil),
		nil,
	)

	recoveryCfg := recovery.Config{
		MaxRetries:        2,
		RetryPause:        time.Millisecond,
		BaseRetryDelay:    time.Millisecond,
		MaxRetryDelay:     8 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RestartThreshold:  5,
	}
	// A generous tolerance keeps degradation out of the way unless a test
	// drives enough failures to warrant it.
	degradeCfg := degrade.Config{
		MinCompletionThreshold: 0.3,
		MaxErrorTolerance:      20,
		TimeLimitFactor:        2.0,
	}

	cfg := opts.cfg
	if cfg.MaxActions == 0 {
		cfg = fastConfig()
	}

	wf, err := New(cfg, Deps{
		Driver:      driver,
		Planner:     planner.New(nil, nil),
		Decider:     decision.NewEngine(stub, nil, nil),
		Gate:        gate,
		Recovery:    recovery.NewHandler(recoveryCfg, nil, nil),
		Degradation: degrade.NewManager(degradeCfg, nil, nil),
		Escalation:  escalate.NewManager(opts.escalateChannel, nil),
	}, nil)
	require.NoError(t, err)

	return &harness{driver: driver, stub: stub, wf: wf}
}

func examplePage() *browser.PageContent {
	return &browser.PageContent{
		Title: "Example Domain",
		Text:  "Example Domain. This domain is for use in illustrative examples.",
		Elements: []browser.Element{
			{Selector: "#extract-data", Tag: "div", Text: "payload", Visible: true},
			{Selector: "a.more", Tag: "a", Text: "More information", Clickable: true, Visible: true},
		},
	}
}

func navigateExtractTask() *task.Task {
	tk := task.New("navigate to example.com then extract the page content")
	plan := task.NewPlan(tk.ID)
	plan.Steps = append(plan.Steps,
		task.NewStep("Navigate to https://example.com", task.ActionNavigate, nil),
		task.NewStep("Extract page content", task.ActionExtract, nil),
	)
	tk.Plan = plan
	return tk
}

func stubNavigateExtract(stub *providers.StubProvider, extractTarget string) {
	stub.Respond("Current step: Navigate to https://example.com",
		`[{"action_type":"navigate","target":"https://example.com","description":"Open the site","confidence":0.95}]`)
	stub.Respond("Current step: Extract page content",
		`[{"action_type":"extract","target":"`+extractTarget+`","description":"Extract the page content","confidence":0.9}]`)
	stub.Respond("Was the action successful?",
		`{"success": false, "confidence": 0.2, "reasoning": "task not finished yet"}`)
}

func TestRunCompletesCleanTask(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.driver.AddPage("https://example.com", examplePage())
	stubNavigateExtract(h.stub, "")

	tk := navigateExtractTask()
	rep, err := h.wf.Run(context.Background(), tk)
	require.NoError(t, err)

	assert.Equal(t, task.StatusCompleted, rep.Status)
	assert.Equal(t, task.StatusCompleted, tk.Status)
	assert.Equal(t, 2, rep.ActionsExecuted)
	assert.Equal(t, 2, rep.ActionsSucceeded)
	assert.Equal(t, 0, rep.ActionsFailed)
	assert.Empty(t, rep.Errors)
	require.NotNil(t, tk.CompletedAt)
	assert.True(t, tk.Plan.IsComplete())
	assert.Contains(t, h.driver.Calls, "navigate:https://example.com")
}

func TestRunRecoversThenSkipsUnfindableElement(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.driver.AddPage("https://example.com", examplePage())
	stubNavigateExtract(h.stub, "#extract-data")
	// The extract target vanishes three times in a row with max_retries=2:
	// retry and backoff are exhausted, alternative selectors are tried, and
	// the failure finally escalates. With no channel the escalation resolves
	// to Skip and the task still completes.
	h.driver.FailSelector("#extract-data", 3)
	h.driver.FailSelector(`[id="extract-data"]`, -1)
	h.driver.FailSelector(`[id*="extract-data"]`, -1)

	tk := navigateExtractTask()
	rep, err := h.wf.Run(context.Background(), tk)
	require.NoError(t, err)

	assert.Equal(t, task.StatusCompleted, tk.Status)
	assert.GreaterOrEqual(t, rep.ActionsFailed, 3)
	assert.Contains(t, rep.StrategyTrail, "retry")
	assert.Contains(t, rep.StrategyTrail, "retry_with_backoff")
	assert.Contains(t, rep.StrategyTrail, "alternative_selector")

	// The extract step was stepped past, not completed, and kept the error.
	extractStep := tk.Plan.Steps[1]
	assert.False(t, extractStep.Completed)
	assert.NotEmpty(t, extractStep.Error)
	assert.True(t, tk.Plan.IsComplete())

	// The alternative selector really reached the driver.
	foundAlternative := false
	for _, call := range h.driver.Calls {
		if strings.HasPrefix(call, "find:[id") {
			foundAlternative = true
			break
		}
	}
	assert.True(t, foundAlternative, "expected an alternative selector lookup, calls: %v", h.driver.Calls)
}

func TestRunBlocksDeniedPaymentAction(t *testing.T) {
	settings := security.DefaultSettings()
	settings.AutoDenyCategories = []security.Category{security.CategoryPayment}

	cfg := fastConfig()
	cfg.MaxCycles = 3

	h := newHarness(t, harnessOptions{cfg: cfg, settings: settings})
	h.driver.AddPage("https://shop.example.com/checkout", &browser.PageContent{
		Title: "Checkout",
		Elements: []browser.Element{
			{Selector: "#pay-now", Tag: "button", Text: "Pay now", Clickable: true, Visible: true},
		},
	})
	h.stub.Respond("Current step: Click the pay-now button",
		`[{"action_type":"click","target":"#pay-now","description":"Click pay now","confidence":0.95}]`)

	tk := task.New("click the pay now button to finish checkout")
	plan := task.NewPlan(tk.ID)
	plan.Steps = append(plan.Steps, task.NewStep("Click the pay-now button", task.ActionClick, nil))
	tk.Plan = plan

	rep, err := h.wf.Run(context.Background(), tk)
	require.NoError(t, err)

	// The denied action never reaches the driver.
	for _, call := range h.driver.Calls {
		assert.False(t, strings.HasPrefix(call, "click:"), "unexpected driver call %q", call)
		assert.False(t, strings.HasPrefix(call, "find:#pay-now"), "unexpected driver call %q", call)
	}
	assert.GreaterOrEqual(t, rep.ActionsBlocked, 1)
	assert.Zero(t, rep.ActionsExecuted)
	assert.Equal(t, task.StatusFailed, tk.Status)
	assert.Contains(t, tk.Error, "budget")
}

func TestRunFailsWhenUserAbortsEscalation(t *testing.T) {
	channel := &scriptedChannel{replies: []string{"abort the task", "abort"}}
	h := newHarness(t, harnessOptions{escalateChannel: channel})
	h.driver.AddPage("https://example.com", examplePage())
	stubNavigateExtract(h.stub, "#extract-data")
	h.driver.FailSelector("#extract-data", -1)
	h.driver.FailSelector(`[id="extract-data"]`, -1)
	h.driver.FailSelector(`[id*="extract-data"]`, -1)

	tk := navigateExtractTask()
	rep, err := h.wf.Run(context.Background(), tk)
	require.NoError(t, err)

	assert.Equal(t, task.StatusFailed, tk.Status)
	assert.Contains(t, tk.Error, "aborted")
	assert.NotEmpty(t, rep.StrategyTrail)
}

func TestRunPlanningFailureIsTerminal(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	tk := task.New("do something")
	tk.Plan = task.NewPlan(tk.ID) // empty plan fails validation

	rep, err := h.wf.Run(context.Background(), tk)
	require.NoError(t, err)

	assert.Equal(t, task.StatusFailed, tk.Status)
	assert.Contains(t, rep.Message, "planning failed")
	// Planning failures abort before any browser side effect.
	assert.Empty(t, h.driver.Calls)
}

func TestRunBudgetExhaustionFailsTask(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxActions = 1

	h := newHarness(t, harnessOptions{cfg: cfg})
	h.driver.AddPage("https://example.com", examplePage())
	stubNavigateExtract(h.stub, "")

	tk := navigateExtractTask()
	rep, err := h.wf.Run(context.Background(), tk)
	require.NoError(t, err)

	assert.Equal(t, task.StatusFailed, tk.Status)
	assert.Contains(t, tk.Error, "budget")
	assert.Equal(t, 1, rep.ActionsExecuted)
}

func TestRunRejectsUnstartableTask(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	tk := task.New("already cancelled work")
	require.NoError(t, tk.Cancel())

	rep, err := h.wf.Run(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, rep.Status)
	assert.NotEmpty(t, rep.Message)
}

func TestRunHumanGatedRetrySucceedsSecondTime(t *testing.T) {
	channel := &scriptedChannel{replies: []string{"abort the task", "retry"}}
	h := newHarness(t, harnessOptions{escalateChannel: channel})
	h.driver.AddPage("https://example.com", examplePage())
	stubNavigateExtract(h.stub, "#extract-data")
	// Fails long enough to abort the first run, then recovers.
	h.driver.FailSelector("#extract-data", 5)
	h.driver.FailSelector(`[id="extract-data"]`, 5)
	h.driver.FailSelector(`[id*="extract-data"]`, 5)

	tk := navigateExtractTask()
	rep, err := h.wf.Run(context.Background(), tk)
	require.NoError(t, err)

	// First run aborted on the user's say-so, the user approved a retry,
	// and the second run completed.
	assert.Equal(t, task.StatusCompleted, tk.Status)
	assert.Equal(t, task.StatusCompleted, rep.Status)
}

func TestNewValidatesRequiredDeps(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{}, nil)
	require.Error(t, err)

	deps := Deps{Driver: browser.NewScriptedDriver()}
	_, err = New(DefaultConfig(), deps, nil)
	require.Error(t, err)
}
