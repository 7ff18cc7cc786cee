package decision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webpilot-ai/webpilot/internal/browser"
	"github.com/webpilot-ai/webpilot/internal/llm/providers"
	"github.com/webpilot-ai/webpilot/internal/task"
)

func samplePage() *browser.PageContent {
	return &browser.PageContent{
		URL:   "https://example.com/dashboard",
		Title: "Dashboard",
		Text:  "Welcome back. Your reports are ready for download.",
		Elements: []browser.Element{
			{Tag: "button", Selector: "#download", Text: "Download report", Clickable: true, Visible: true},
			{Tag: "a", Selector: "a.settings", Text: "Settings", Clickable: true, Visible: true,
				Attributes: map[string]string{"href": "/settings"}},
			{Tag: "input", Selector: "#search", Visible: true,
				Attributes: map[string]string{"type": "text", "name": "q"}},
			{Tag: "div", Selector: "div.panel"},
			{Tag: "div", Selector: "div.footer"},
		},
	}
}

func TestDecideParsesActionArray(t *testing.T) {
	model := providers.NewStubProvider(`[
  {"action_type": "click", "target": "#download", "description": "Download the report", "confidence": 0.9},
  {"action_type": "extract", "target": "body", "description": "Extract results", "confidence": 0.8}
]`)
	e := NewEngine(model, nil, nil)

	actions := e.Decide(context.Background(), samplePage(), task.New("download the weekly report"), nil)
	require.Len(t, actions, 2)
	assert.Equal(t, task.ActionClick, actions[0].Type)
	assert.Equal(t, "#download", actions[0].Target)
	assert.InDelta(t, 0.9, actions[0].Confidence, 1e-9)
	assert.Equal(t, task.ActionExtract, actions[1].Type)

	require.Len(t, model.Requests, 1)
	assert.InDelta(t, 0.3, model.Requests[0].Temperature, 1e-9)
	assert.Equal(t, 2000, model.Requests[0].MaxTokens)
}

func TestDecideAcceptsSingleObject(t *testing.T) {
	model := providers.NewStubProvider(
		`{"action_type": "navigate", "target": "https://example.com/reports", "confidence": 0.7}`)
	e := NewEngine(model, nil, nil)

	actions := e.Decide(context.Background(), samplePage(), task.New("open reports"), nil)
	require.Len(t, actions, 1)
	assert.Equal(t, task.ActionNavigate, actions[0].Type)
}

func TestDecideConfidenceNeverExceedsModel(t *testing.T) {
	// The stub transport reports confidence 1.0; a descriptor claiming more
	// than that is clamped, and a lower self-report wins.
	model := providers.NewStubProvider(
		`[{"action_type": "click", "target": "#x", "confidence": 0.4}]`)
	e := NewEngine(model, nil, nil)

	actions := e.Decide(context.Background(), samplePage(), task.New("t"), nil)
	require.Len(t, actions, 1)
	assert.InDelta(t, 0.4, actions[0].Confidence, 1e-9)
}

func TestDecideMarksDestructiveTargets(t *testing.T) {
	model := providers.NewStubProvider(
		`[{"action_type": "click", "target": "#delete-account", "description": "open account menu"}]`)
	e := NewEngine(model, nil, nil)

	actions := e.Decide(context.Background(), samplePage(), task.New("t"), nil)
	require.Len(t, actions, 1)
	assert.True(t, actions[0].Destructive)
}

func TestDecideDiscountsConfidenceOnSensitiveDomain(t *testing.T) {
	model := providers.NewStubProvider(
		`[{"action_type": "click", "target": "#statement", "confidence": 1.0}]`)
	e := NewEngine(model, nil, nil)

	page := samplePage()
	page.URL = "https://online.banking.example/accounts"

	actions := e.Decide(context.Background(), page, task.New("t"), nil)
	require.Len(t, actions, 1)
	assert.InDelta(t, 0.8, actions[0].Confidence, 1e-9)
}

func TestDecideDiscardsUnknownActionTypes(t *testing.T) {
	model := providers.NewStubProvider(`[
  {"action_type": "teleport", "target": "#x"},
  {"action_type": "scroll", "target": "#feed"}
]`)
	e := NewEngine(model, nil, nil)

	actions := e.Decide(context.Background(), samplePage(), task.New("t"), nil)
	require.Len(t, actions, 1)
	assert.Equal(t, task.ActionScroll, actions[0].Type)
}

func TestDecideFallsBackOnModelFailure(t *testing.T) {
	model := providers.NewStubProvider("")
	model.FailWith(errors.New("provider down"))
	e := NewEngine(model, nil, nil)

	actions := e.Decide(context.Background(), samplePage(), task.New("t"), nil)
	require.Len(t, actions, 1)
	assert.Equal(t, task.ActionWait, actions[0].Type)
	assert.InDelta(t, 0.1, actions[0].Confidence, 1e-9)
	assert.Contains(t, actions[0].Description, "Fallback action")
}

func TestDecideFallsBackWithoutModel(t *testing.T) {
	e := NewEngine(nil, nil, nil)

	actions := e.Decide(context.Background(), samplePage(), task.New("t"), nil)
	require.Len(t, actions, 1)
	assert.Equal(t, task.ActionWait, actions[0].Type)
	assert.InDelta(t, 0.1, actions[0].Confidence, 1e-9)
}

func TestDecideTextFallbackHalvesConfidence(t *testing.T) {
	model := providers.NewStubProvider("I would click the download button next.")
	e := NewEngine(model, nil, nil)

	actions := e.Decide(context.Background(), samplePage(), task.New("t"), nil)
	require.Len(t, actions, 1)
	assert.Equal(t, task.ActionClick, actions[0].Type)
	assert.InDelta(t, 0.5, actions[0].Confidence, 1e-9)
}

func TestPageSummaryIsBounded(t *testing.T) {
	page := samplePage()
	// Pad the page well past every limit.
	for i := 0; i < 50; i++ {
		page.Elements = append(page.Elements,
			browser.Element{Tag: "li", Selector: "li.row", Text: "row", Clickable: true})
	}
	page.Text = strings.Repeat("lorem ipsum ", 200)

	summary := pageSummary(page)
	assert.Contains(t, summary, "URL: https://example.com/dashboard")
	assert.Contains(t, summary, "Title: Dashboard")
	assert.Contains(t, summary, "Clickable elements: 52")
	// Only 5 clickable samples, so at most 5 indented li lines.
	assert.LessOrEqual(t, strings.Count(summary, "  li"), 5)
	assert.Less(t, len(summary), 2000)
}

func TestContextSummaryShowsRecentActions(t *testing.T) {
	tk := task.New("t")
	ctx := map[string]any{
		"previous_actions": []map[string]any{
			{"type": "navigate", "description": "went to site"},
			{"type": "click", "description": "opened menu"},
			{"type": "wait", "description": "waited"},
			{"type": "extract", "description": "read page"},
		},
	}

	summary := contextSummary(tk, ctx)
	assert.NotContains(t, summary, "went to site", "only the last 3 actions appear")
	assert.Contains(t, summary, "opened menu")
	assert.Contains(t, summary, "read page")
}

func TestEvaluateSuccessParsesModelVerdict(t *testing.T) {
	model := providers.NewStubProvider(
		`{"success": true, "confidence": 0.9, "reasoning": "title matches the report page"}`)
	e := NewEngine(model, nil, nil)

	a := task.NewAction(task.ActionClick, "#download")
	eval := e.EvaluateSuccess(context.Background(), a, samplePage(), "report page opens")
	assert.True(t, eval.Success)
	assert.InDelta(t, 0.9, eval.Confidence, 1e-9)

	require.Len(t, model.Requests, 1)
	assert.InDelta(t, 0.2, model.Requests[0].Temperature, 1e-9)
	assert.Equal(t, 500, model.Requests[0].MaxTokens)
}

func TestEvaluateSuccessHeuristicFallback(t *testing.T) {
	model := providers.NewStubProvider("not json at all")
	e := NewEngine(model, nil, nil)

	nav := task.NewAction(task.ActionNavigate, "example.com/dashboard")
	eval := e.EvaluateSuccess(context.Background(), nav, samplePage(), "dashboard loads")
	assert.True(t, eval.Success)
	assert.InDelta(t, 0.7, eval.Confidence, 1e-9)

	nav2 := task.NewAction(task.ActionNavigate, "https://elsewhere.example")
	eval2 := e.EvaluateSuccess(context.Background(), nav2, samplePage(), "")
	assert.False(t, eval2.Success)
	assert.InDelta(t, 0.3, eval2.Confidence, 1e-9)
}

func TestDecisionHistoryRing(t *testing.T) {
	model := providers.NewStubProvider(`[{"action_type": "wait", "parameters": {"duration": 1}}]`)
	e := NewEngine(model, nil, nil)

	tk := task.New("t")
	for i := 0; i < maxHistory+10; i++ {
		e.Decide(context.Background(), samplePage(), tk, nil)
	}
	assert.Len(t, e.History(0), maxHistory)
	assert.Len(t, e.History(5), 5)

	e.ClearHistory()
	assert.Empty(t, e.History(0))
}
