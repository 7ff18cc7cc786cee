package planner

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strings"

	"github.com/webpilot-ai/webpilot/internal/llm"
	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
)

const planSystemMessage = `You are a task planning AI that converts natural language descriptions into step-by-step browser automation plans.

Available actions: navigate, click, type, scroll, wait, extract, submit, select, hover, screenshot, refresh, back, forward

Format your response as a JSON array of steps:
[
  {
    "description": "Navigate to the site",
    "action_type": "navigate",
    "target": "https://example.com",
    "parameters": {}
  }
]`

const (
	planMaxTokens   = 1000
	planTemperature = 0.3
)

// stepDescriptor is the constrained JSON schema the model must produce.
type stepDescriptor struct {
	Description string         `json:"description"`
	ActionType  task.ActionType `json:"action_type"`
	Target      string         `json:"target,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Planner converts a natural-language task description into an
// ExecutionPlan: pattern match first, AI-assisted fallback, minimal skeleton
// last. It also regenerates alternative steps after a failure.
type Planner struct {
	model  llm.Provider
	logger *slog.Logger
}

// New creates a Planner. model may be nil; planning then relies on patterns
// and the skeleton fallback only.
func New(model llm.Provider, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{model: model, logger: logger}
}

// CreatePlan builds an execution plan for a task description. Pattern
// matching must yield at least two steps to stand; otherwise the AI model is
// consulted, and if it is unavailable or unparseable the 3-step skeleton is
// used.
func (p *Planner) CreatePlan(ctx context.Context, taskID types.ID, description string, planContext map[string]any) (*task.ExecutionPlan, error) {
	steps := p.parseWithPatterns(description)

	if len(steps) < 2 {
		if p.model != nil {
			aiSteps, err := p.parseWithAI(ctx, description, planContext)
			if err != nil {
				p.logger.Warn("AI planning failed, using skeleton", "error", err)
				steps = p.skeletonSteps(description)
			} else {
				steps = aiSteps
			}
		} else {
			steps = p.skeletonSteps(description)
		}
	}

	if len(steps) == 0 {
		steps = p.skeletonSteps(description)
	}

	plan := task.NewPlan(taskID)
	plan.Steps = steps
	if planContext != nil {
		maps.Copy(plan.Context, planContext)
	}
	plan.FallbackStrategies = p.fallbackStrategies(description, steps)

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	p.logger.Debug("plan created", "task_id", taskID, "steps", len(steps))
	return plan, nil
}

// UpdatePlan inserts 1-2 alternative steps immediately after the current
// step when it carries an error, without removing the failed step, and
// merges the current state into the plan context.
func (p *Planner) UpdatePlan(ctx context.Context, plan *task.ExecutionPlan, currentState map[string]any) (*task.ExecutionPlan, error) {
	current := plan.CurrentStep()
	if current == nil {
		return plan, nil
	}

	if current.Error != "" {
		alternatives := p.alternativeSteps(current)
		if len(alternatives) > 0 {
			if err := plan.InsertStepsAfter(plan.CurrentStepIndex, alternatives); err != nil {
				return nil, err
			}
		}
	}

	if currentState != nil {
		maps.Copy(plan.Context, currentState)
	}
	return plan, nil
}

func (p *Planner) parseWithPatterns(description string) []task.TaskStep {
	for _, tp := range taskPatterns {
		for _, re := range tp.patterns {
			if !re.MatchString(description) {
				continue
			}
			steps := make([]task.TaskStep, 0, len(tp.steps))
			for _, ps := range tp.steps {
				target := resolveTarget(description, ps.target, tp.name)
				params := map[string]any{"target": target}
				if ps.action == task.ActionWait {
					params["duration"] = 3.0
				}
				steps = append(steps, task.NewStep(ps.description, ps.action, params))
			}
			return steps
		}
	}
	return nil
}

func (p *Planner) parseWithAI(ctx context.Context, description string, planContext map[string]any) ([]task.TaskStep, error) {
	prompt := fmt.Sprintf("Create a step-by-step browser automation plan for: %s", description)
	if len(planContext) > 0 {
		prompt += fmt.Sprintf("\nContext: %v", planContext)
	}

	resp, err := p.model.Generate(ctx, llm.GenerateRequest{
		Prompt:        prompt,
		SystemMessage: planSystemMessage,
		MaxTokens:     planMaxTokens,
		Temperature:   planTemperature,
	})
	if err != nil {
		return nil, err
	}

	descriptors, err := llm.ExtractJSONAs[[]stepDescriptor](resp.Content)
	if err != nil {
		// Non-JSON responses still often enumerate steps line by line.
		if steps := extractStepsFromText(resp.Content); len(steps) > 0 {
			return steps, nil
		}
		return nil, types.WrapError(types.MODEL_PARSE_FAILED, "plan response is not parseable", err)
	}

	steps := make([]task.TaskStep, 0, len(descriptors))
	for _, d := range descriptors {
		if !d.ActionType.IsValid() {
			return nil, types.NewError(types.MODEL_PARSE_FAILED,
				fmt.Sprintf("plan step has unknown action type %q", d.ActionType))
		}
		params := d.Parameters
		if params == nil {
			params = make(map[string]any)
		}
		if d.Target != "" {
			params["target"] = d.Target
		}
		steps = append(steps, task.NewStep(d.Description, d.ActionType, params))
	}
	return steps, nil
}

var numberedLine = regexp.MustCompile(`^\d+\.`)

// extractStepsFromText salvages steps from a plain-text model response by
// scanning for numbered lines and action keywords.
func extractStepsFromText(text string) []task.TaskStep {
	var steps []task.TaskStep
	keywords := []task.ActionType{
		task.ActionNavigate, task.ActionClick, task.ActionInput,
		task.ActionWait, task.ActionExtract,
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lower := strings.ToLower(line)
		matched := numberedLine.MatchString(line)
		if !matched {
			for _, kw := range keywords {
				if strings.Contains(lower, kw.String()) {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}
		actionType := task.ActionWait
		for _, at := range []task.ActionType{
			task.ActionNavigate, task.ActionClick, task.ActionInput,
			task.ActionScroll, task.ActionExtract, task.ActionSubmit,
			task.ActionSelect, task.ActionHover, task.ActionScreenshot,
			task.ActionRefresh,
		} {
			if strings.Contains(lower, at.String()) {
				actionType = at
				break
			}
		}
		params := map[string]any{}
		if actionType == task.ActionWait {
			params["duration"] = 1.0
		}
		steps = append(steps, task.NewStep(line, actionType, params))
	}
	return steps
}

// skeletonSteps is the minimal 3-step fallback: wait, navigate when the
// description names a URL, extract.
func (p *Planner) skeletonSteps(description string) []task.TaskStep {
	steps := []task.TaskStep{
		task.NewStep("Start task: "+description, task.ActionWait, map[string]any{"duration": 1.0}),
	}
	if url := urlPattern.FindString(description); url != "" {
		steps = append(steps, task.NewStep("Navigate to "+url, task.ActionNavigate,
			map[string]any{"target": url}))
	}
	steps = append(steps, task.NewStep("Interact with page elements", task.ActionExtract,
		map[string]any{"target": "body"}))
	return steps
}

func (p *Planner) fallbackStrategies(description string, steps []task.TaskStep) []string {
	strategies := []string{
		"Retry failed step with longer wait time",
		"Try alternative element selectors",
		"Request user assistance for manual intervention",
	}
	lower := strings.ToLower(description)
	if strings.Contains(lower, "email") {
		strategies = append(strategies, fallbackHints["authentication_required"]...)
	}
	if strings.Contains(lower, "order") || strings.Contains(lower, "buy") {
		strategies = append(strategies, fallbackHints["form_submission_failed"]...)
	}
	for _, step := range steps {
		switch step.ActionType {
		case task.ActionNavigate:
			strategies = append(strategies, fallbackHints["page_load_timeout"]...)
		case task.ActionClick, task.ActionInput:
			strategies = append(strategies, fallbackHints["element_not_found"]...)
		}
	}
	return dedupe(strategies)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// alternativeSteps generates 1-2 replacement steps per failed action type:
// click gets a scroll-then-retry pair, navigate a refresh-then-retry pair,
// type a clear-then-retry pair.
func (p *Planner) alternativeSteps(failed *task.TaskStep) []task.TaskStep {
	target, _ := failed.Parameters["target"].(string)
	switch failed.ActionType {
	case task.ActionClick:
		scrollTarget := target
		if scrollTarget == "" {
			scrollTarget = "body"
		}
		retry := copyParams(failed.Parameters)
		retry["retry"] = true
		return []task.TaskStep{
			task.NewStep("Scroll to make element visible", task.ActionScroll,
				map[string]any{"target": scrollTarget}),
			task.NewStep("Retry click with alternative selector", task.ActionClick, retry),
		}
	case task.ActionNavigate:
		return []task.TaskStep{
			task.NewStep("Refresh page before navigation", task.ActionRefresh, nil),
			task.NewStep(fmt.Sprintf("Retry navigation to %s", target), task.ActionNavigate,
				copyParams(failed.Parameters)),
		}
	case task.ActionInput:
		return []task.TaskStep{
			task.NewStep("Clear field before typing", task.ActionClick,
				map[string]any{"target": target, "clear": true}),
			task.NewStep("Retry typing: "+failed.Description, task.ActionInput,
				copyParams(failed.Parameters)),
		}
	}
	return nil
}

func copyParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}
