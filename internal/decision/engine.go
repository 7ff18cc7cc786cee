package decision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/webpilot-ai/webpilot/internal/browser"
	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/security"
	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
)

const decideSystemMessage = `You are an AI browser automation agent. Your role is to analyze web page content and make decisions about what actions to take to complete user tasks.

Key principles:
1. Always prioritize user safety and avoid destructive actions without confirmation
2. Be precise in element selection - use specific selectors when possible
3. Provide confidence scores for your decisions (0.0 to 1.0)
4. Consider the current task context when making decisions
5. If uncertain, request user input rather than guessing

When analyzing a page, consider:
- The current task objective
- Available interactive elements (buttons, links, forms)
- Page content and structure
- Previous actions taken
- Potential risks or destructive actions

Respond with structured JSON containing your decision and reasoning.`

const (
	decideMaxTokens   = 2000
	decideTemperature = 0.3
	evalMaxTokens     = 500
	evalTemperature   = 0.2
	fallbackWaitConf  = 0.1
	maxHistory        = 100
)

// destructiveTargetWords flag a target as destructive even when the model
// did not mark it.
var destructiveTargetWords = []string{"delete", "remove", "cancel"}

// actionDescriptor is the JSON schema the model produces per action.
type actionDescriptor struct {
	ActionType    string         `json:"action_type"`
	Target        string         `json:"target,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Description   string         `json:"description,omitempty"`
	Confidence    *float64       `json:"confidence,omitempty"`
	IsDestructive bool           `json:"is_destructive,omitempty"`
	Reasoning     string         `json:"reasoning,omitempty"`
}

// Evaluation is the outcome of judging an executed action against the page
// it produced.
type Evaluation struct {
	Success    bool    `json:"success"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Record is one entry of the decision audit trail kept in memory.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	PageURL    string    `json:"page_url"`
	TaskID     types.ID  `json:"task_id"`
	ModelName  string    `json:"model_name"`
	Confidence float64   `json:"confidence"`
	TokensUsed int       `json:"tokens_used"`
	Actions    int       `json:"actions"`
}

// Engine turns page snapshots and task context into executable actions.
// Every failure path degrades to a single safe wait action rather than an
// error; the workflow decides how to proceed from the low confidence.
type Engine struct {
	model     llm.Provider
	validator *security.Validator
	logger    *slog.Logger

	mu      sync.Mutex
	history []Record
}

// NewEngine creates an Engine. model may be nil, in which case every
// decision is the safe fallback.
func NewEngine(model llm.Provider, validator *security.Validator, logger *slog.Logger) *Engine {
	if validator == nil {
		validator = security.NewValidator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{model: model, validator: validator, logger: logger}
}

// Decide analyzes the current page and returns the next actions to take.
// The returned slice is never empty: when the model is unavailable or its
// response is unusable, a single low-confidence wait action is returned.
func (e *Engine) Decide(ctx context.Context, page *browser.PageContent, t *task.Task, taskContext map[string]any) []*task.Action {
	if e.model == nil {
		return []*task.Action{fallbackAction("no model available for decision-making")}
	}

	prompt := e.buildPrompt(page, t, taskContext)
	resp, err := e.model.Generate(ctx, llm.GenerateRequest{
		Prompt:        prompt,
		SystemMessage: decideSystemMessage,
		MaxTokens:     decideMaxTokens,
		Temperature:   decideTemperature,
	})
	if err != nil {
		e.logger.Error("decision model call failed", "task_id", t.ID, "error", err)
		return []*task.Action{fallbackAction(err.Error())}
	}

	actions := e.parseResponse(resp)
	actions = e.applySecurity(actions, page.URL)
	e.record(page, t, resp, len(actions))
	return actions
}

func (e *Engine) buildPrompt(page *browser.PageContent, t *task.Task, taskContext map[string]any) string {
	return fmt.Sprintf(`CURRENT TASK: %s
TASK STATUS: %s

PAGE ANALYSIS:
%s

CONTEXT:
%s

INSTRUCTIONS:
Analyze the current page and determine the next action(s) to take to progress toward completing the task.

Consider:
1. What elements are available for interaction?
2. What action would best advance the task?
3. Are there any risks or destructive actions to avoid?
4. What is your confidence level in this decision?

Respond with a JSON array of actions in this format:
[
  {
    "action_type": "click|type|navigate|scroll|wait|extract|submit|select",
    "target": "CSS selector or URL",
    "parameters": {"key": "value"},
    "description": "Clear description of what this action does",
    "confidence": 0.85,
    "is_destructive": false,
    "reasoning": "Why this action was chosen"
  }
]`, t.Description, t.Status, pageSummary(page), contextSummary(t, taskContext))
}

// parseResponse converts the model output into validated actions. A single
// object is accepted as a one-element array. Unparseable responses fall
// through to keyword extraction, then to the safe fallback.
func (e *Engine) parseResponse(resp *llm.GenerateResponse) []*task.Action {
	descriptors, err := llm.ExtractJSONAs[[]actionDescriptor](resp.Content)
	if err != nil {
		if single, singleErr := llm.ExtractJSONAs[actionDescriptor](resp.Content); singleErr == nil {
			descriptors = []actionDescriptor{single}
		} else {
			e.logger.Warn("decision response is not parseable JSON", "error", err)
			if a := extractActionFromText(resp.Content, resp.Confidence); a != nil {
				return []*task.Action{a}
			}
			return []*task.Action{fallbackAction("could not parse model response")}
		}
	}

	var actions []*task.Action
	for _, d := range descriptors {
		a, err := e.actionFromDescriptor(d, resp.Confidence)
		if err != nil {
			e.logger.Warn("discarding invalid decision", "action_type", d.ActionType, "error", err)
			continue
		}
		actions = append(actions, a)
	}
	if len(actions) == 0 {
		actions = []*task.Action{fallbackAction("model produced no valid actions")}
	}
	return actions
}

func (e *Engine) actionFromDescriptor(d actionDescriptor, modelConfidence float64) (*task.Action, error) {
	actionType := task.ActionType(strings.ToLower(d.ActionType))
	if !actionType.IsValid() {
		return nil, types.NewError(types.MODEL_PARSE_FAILED,
			fmt.Sprintf("unknown action type %q", d.ActionType))
	}

	a := task.NewAction(actionType, d.Target)
	a.Description = d.Description
	if d.Parameters != nil {
		a.Parameters = d.Parameters
	}

	// Final confidence never exceeds what the transport reported.
	confidence := modelConfidence
	if d.Confidence != nil && *d.Confidence < confidence {
		confidence = *d.Confidence
	}
	a.WithConfidence(confidence)

	a.Destructive = d.IsDestructive
	if !a.Destructive {
		target := strings.ToLower(d.Target)
		for _, word := range destructiveTargetWords {
			if strings.Contains(target, word) {
				a.Destructive = true
				break
			}
		}
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// applySecurity grades each action and discounts confidence on sensitive
// domains. Actions requiring confirmation are marked destructive so the gate
// prompts for them.
func (e *Engine) applySecurity(actions []*task.Action, currentURL string) []*task.Action {
	sensitive := security.IsSensitiveDomain(currentURL)
	for _, a := range actions {
		assessment := e.validator.Assess(a)
		if assessment.RequiresConfirmation {
			a.Destructive = true
		}
		if sensitive {
			a.WithConfidence(a.Confidence * 0.8)
		}
	}
	return actions
}

// extractActionFromText salvages a click or type action from a plain-text
// response at halved confidence. Targets cannot be recovered from prose, so
// the workflow treats these as needing a located element first.
func extractActionFromText(text string, confidence float64) *task.Action {
	lower := strings.ToLower(text)
	var actionType task.ActionType
	switch {
	case strings.Contains(lower, "click"):
		actionType = task.ActionClick
	case strings.Contains(lower, "type"), strings.Contains(lower, "enter"):
		actionType = task.ActionInput
	default:
		return nil
	}
	a := task.NewAction(actionType, "")
	a.Description = "Extracted from text: " + truncate(text, 100)
	a.WithConfidence(confidence * 0.5)
	if actionType == task.ActionInput {
		a.Parameters["text"] = ""
	}
	return a
}

func fallbackAction(reason string) *task.Action {
	a := task.NewAction(task.ActionWait, "body")
	a.Parameters["duration"] = 1.0
	a.Description = "Fallback action due to error: " + reason
	a.WithConfidence(fallbackWaitConf)
	return a
}

// EvaluateSuccess judges whether an executed action achieved its expected
// outcome based on the resulting page. Model failures and unparseable
// responses fall back to a heuristic check, never an error.
func (e *Engine) EvaluateSuccess(ctx context.Context, action *task.Action, result *browser.PageContent, expectedOutcome string) Evaluation {
	if e.model == nil {
		return heuristicEvaluation(action, result)
	}

	prompt := fmt.Sprintf(`Evaluate whether this action was successful:

ACTION TAKEN:
Type: %s
Target: %s
Description: %s
Expected outcome: %s

RESULTING PAGE:
URL: %s
Title: %s
Content preview: %s

Was the action successful? Respond with JSON:
{
  "success": true/false,
  "confidence": 0.0-1.0,
  "reasoning": "explanation of why it succeeded or failed"
}`, action.Type, action.Target, action.Description, expectedOutcome,
		result.URL, result.Title, truncate(result.Text, evalContentPreview))

	resp, err := e.model.Generate(ctx, llm.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   evalMaxTokens,
		Temperature: evalTemperature,
	})
	if err != nil {
		e.logger.Warn("success evaluation model call failed", "error", err)
		return heuristicEvaluation(action, result)
	}

	eval, err := llm.ExtractJSONAs[Evaluation](resp.Content)
	if err != nil {
		return heuristicEvaluation(action, result)
	}
	if eval.Reasoning == "" {
		eval.Reasoning = "No reasoning provided"
	}
	return eval
}

// heuristicEvaluation is the model-free success check: navigation is judged
// by the URL, clicks by the page having content, everything else is assumed
// to have moderately succeeded.
func heuristicEvaluation(action *task.Action, result *browser.PageContent) Evaluation {
	switch action.Type {
	case task.ActionNavigate:
		success := action.Target != "" && strings.Contains(result.URL, action.Target)
		confidence := 0.3
		if success {
			confidence = 0.7
		}
		return Evaluation{Success: success, Confidence: confidence, Reasoning: "URL navigation check"}
	case task.ActionClick:
		success := len(result.Elements) > 0
		return Evaluation{Success: success, Confidence: 0.6, Reasoning: "Basic page content check"}
	}
	return Evaluation{Success: true, Confidence: 0.5, Reasoning: "Default success assumption"}
}

func (e *Engine) record(page *browser.PageContent, t *task.Task, resp *llm.GenerateResponse, actionCount int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, Record{
		Timestamp:  time.Now(),
		PageURL:    page.URL,
		TaskID:     t.ID,
		ModelName:  resp.ModelName,
		Confidence: resp.Confidence,
		TokensUsed: resp.TokensUsed,
		Actions:    actionCount,
	})
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
	e.logger.Info("decision made", "task_id", t.ID, "actions", actionCount)
}

// History returns the most recent decision records, newest last.
func (e *Engine) History(limit int) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit > len(e.history) {
		limit = len(e.history)
	}
	out := make([]Record, limit)
	copy(out, e.history[len(e.history)-limit:])
	return out
}

// ClearHistory drops the decision trail.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}
