package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/webpilot-ai/webpilot/internal/degrade"
	"github.com/webpilot-ai/webpilot/internal/escalate"
	"github.com/webpilot-ai/webpilot/internal/events"
	"github.com/webpilot-ai/webpilot/internal/recovery"
	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
)

const (
	browserComponent = "browser"
	// recentActionsKept bounds the previous_actions list in shared context.
	recentActionsKept = 10
	maxWaitDuration   = 30 * time.Second
)

// runState carries the per-run bookkeeping shared by the execution helpers.
type runState struct {
	rep           *Report
	start         time.Time
	failedActions []*task.Action
	lastAction    *task.Action
	lastSucceeded bool
}

// execute is the Execution stage: decide, authorize, run, recover, until the
// plan completes, the budget runs out, or the task goes terminal.
func (w *Workflow) execute(ctx context.Context, t *task.Task, rep *Report, start time.Time) {
	state := &runState{rep: rep, start: start}

	for cycle := 0; cycle < w.cfg.MaxCycles; cycle++ {
		// Cancellation is cooperative: checked once per cycle and before
		// every slow external call inside it.
		if t.Status.IsTerminal() {
			return
		}
		if err := ctx.Err(); err != nil {
			_ = t.Fail("execution cancelled: " + err.Error())
			return
		}

		page, err := w.deps.Driver.PageContent(ctx)
		if err != nil {
			if !w.handleFailure(ctx, t, nil, err, state) {
				return
			}
			continue
		}

		taskContext := w.deps.Tasks.Context().Get(t.ID)
		actions := w.deps.Decider.Decide(ctx, page, t, taskContext)

		for _, action := range actions {
			if t.Status.IsTerminal() {
				return
			}
			if rep.ActionsExecuted >= w.cfg.MaxActions {
				w.exhaustBudget(t, rep)
				return
			}

			decision := w.deps.Gate.Authorize(ctx, action)
			if !decision.Authorized {
				rep.ActionsBlocked++
				msg := "action blocked by security gate"
				if decision.Err != nil {
					msg = decision.Err.Error()
				}
				rep.Errors = append(rep.Errors, msg)
				w.publish(events.EventActionBlocked, t, map[string]any{
					"action_id": action.ID.String(),
					"type":      action.Type.String(),
					"reason":    msg,
				})
				w.logger.Warn("action blocked",
					"task_id", t.ID, "type", action.Type, "target", action.Target)
				continue
			}

			if w.runAction(ctx, t, action, state) {
				w.advancePlan(t)
			}
		}

		if w.isComplete(ctx, t, state) {
			result := map[string]any{
				"actions_executed": rep.ActionsExecuted,
				"actions_failed":   rep.ActionsFailed,
			}
			_ = t.Complete(result)
			return
		}

		if err := sleepCtx(ctx, w.cfg.CycleDelay); err != nil {
			_ = t.Fail("execution cancelled: " + err.Error())
			return
		}
	}

	if !t.Status.IsTerminal() {
		w.exhaustBudget(t, rep)
	}
}

// isComplete checks the two completion criteria: plan fully stepped, or the
// decision engine judging the last successful action to have finished the
// task with high confidence.
func (w *Workflow) isComplete(ctx context.Context, t *task.Task, state *runState) bool {
	if t.Plan != nil && t.Plan.IsComplete() {
		return true
	}
	if state.lastAction == nil || !state.lastSucceeded {
		return false
	}
	page, err := w.deps.Driver.PageContent(ctx)
	if err != nil {
		return false
	}
	eval := w.deps.Decider.EvaluateSuccess(ctx, state.lastAction, page, t.Description)
	return eval.Success && eval.Confidence > w.cfg.SuccessConfidence
}

// runAction executes one authorized action, consulting the error handler on
// each failure until recovery succeeds, the round budget runs out, or a
// strategy decides to skip or escalate. Returns true when the action (or a
// recovery replacement for it) executed successfully.
func (w *Workflow) runAction(ctx context.Context, t *task.Task, action *task.Action, state *runState) bool {
	current := action
	retryCount := 0
	var lastErr error

	for attempt := 0; ; attempt++ {
		if state.rep.ActionsExecuted >= w.cfg.MaxActions {
			w.exhaustBudget(t, state.rep)
			return false
		}

		began := time.Now()
		result, err := w.executeAction(ctx, current)
		current.MarkExecuted(result, time.Since(began), err)
		state.rep.ActionsExecuted++
		state.lastAction = current
		state.lastSucceeded = err == nil
		w.deps.Gate.RecordExecution(ctx, current, err == nil, errString(err))
		w.recordOutcome(t, current, err)

		if err == nil {
			state.rep.ActionsSucceeded++
			w.publish(events.EventActionExecuted, t, map[string]any{
				"action_id": current.ID.String(),
				"type":      current.Type.String(),
				"target":    current.Target,
			})
			return true
		}

		lastErr = err
		state.rep.ActionsFailed++
		state.rep.Errors = append(state.rep.Errors, err.Error())
		state.failedActions = append(state.failedActions, current)
		w.publish(events.EventActionFailed, t, map[string]any{
			"action_id": current.ID.String(),
			"type":      current.Type.String(),
			"error":     err.Error(),
		})

		// A failed low-confidence action asks for guidance before recovery
		// keeps grinding on it.
		if current.Confidence < w.cfg.ConfidenceThreshold {
			if !w.solicitGuidance(ctx, t, current, err) {
				return false
			}
			if t.Status.IsTerminal() {
				return false
			}
		}

		if attempt >= w.cfg.MaxRecoveryRounds {
			w.handleFailure(ctx, t, current, lastErr, state)
			return false
		}

		res := w.deps.Recovery.Handle(ctx, err, recovery.Info{
			Component:  browserComponent,
			Action:     current,
			Task:       t,
			PageURL:    pageURL(ctx, w),
			RetryCount: retryCount,
		})
		state.rep.StrategyTrail = append(state.rep.StrategyTrail, res.Strategy.String())

		switch {
		case res.Success && res.Strategy == recovery.StrategySkipStep:
			w.skipStep(t, lastErr)
			return false
		case res.Success:
			if res.NewRetryCount > retryCount {
				retryCount = res.NewRetryCount
			}
			if res.NewAction != nil {
				current = res.NewAction
			}
			// Retry and backoff delays were already served by the handler.
		case res.EscalateToUser:
			w.handleFailure(ctx, t, current, lastErr, state)
			return false
		default:
			// No strategy applied; fall through to the next attempt so the
			// round budget, not this result, decides when to stop.
		}
	}
}

// handleFailure is the escalation ladder past the error handler: degradation
// first, then a human. Returns true when execution may continue.
func (w *Workflow) handleFailure(ctx context.Context, t *task.Task, action *task.Action, cause error, state *runState) bool {
	progress := 0.0
	if t.Plan != nil {
		progress = t.Plan.Progress()
	}

	dc := degrade.Context{
		Task:            t,
		FailedActions:   state.failedActions,
		CurrentProgress: progress,
		ErrorCount:      state.rep.ActionsFailed,
		TimeElapsed:     time.Since(state.start),
	}
	if needed, level := w.deps.Degradation.Assess(dc); needed {
		result := w.deps.Degradation.Execute(ctx, dc, level)
		if result.Success {
			state.rep.Degraded = true
			state.rep.CompletionPercentage = result.CompletionPercentage
			state.rep.Message = result.Message
			_ = t.Complete(map[string]any{
				"degraded":              true,
				"degradation_level":     level.String(),
				"degradation_strategy":  result.Strategy.String(),
				"completion_percentage": result.CompletionPercentage,
			})
			w.logger.Info("task completed at reduced scope",
				"task_id", t.ID, "level", level, "strategy", result.Strategy)
			return false
		}
	}

	_ = t.RequireInput()
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	result := w.deps.Escalation.Escalate(ctx, escalate.Context{
		Reason:       escalate.ReasonUnresolvableError,
		Priority:     escalate.PriorityHigh,
		Task:         t,
		Action:       action,
		ErrorMessage: errMsg,
	})

	switch result.Response {
	case escalate.ResponseAbort, escalate.ResponseManualTakeover:
		_ = t.Fail("aborted after unrecoverable failure: " + errMsg)
		return false
	case escalate.ResponseSkip:
		_ = t.Start()
		w.skipStep(t, cause)
		return true
	default:
		// Continue and Retry both resume; the next cycle decides afresh.
		_ = t.Start()
		return true
	}
}

// solicitGuidance asks the user what to do with a failed low-confidence
// action. Returns false when the user stops the action (or the task).
func (w *Workflow) solicitGuidance(ctx context.Context, t *task.Task, action *task.Action, cause error) bool {
	result := w.deps.Escalation.Escalate(ctx, escalate.Context{
		Reason:       escalate.ReasonTaskClarification,
		Priority:     escalate.PriorityMedium,
		Task:         t,
		Action:       action,
		ErrorMessage: fmt.Sprintf("low-confidence action (%.2f) failed: %v", action.Confidence, cause),
	})
	switch result.Response {
	case escalate.ResponseAbort, escalate.ResponseManualTakeover:
		_ = t.Fail("aborted on user guidance after low-confidence failure")
		return false
	case escalate.ResponseSkip:
		w.skipStep(t, cause)
		return false
	}
	return true
}

func (w *Workflow) exhaustBudget(t *task.Task, rep *Report) {
	err := types.NewError(types.TASK_BUDGET_EXHAUSTED,
		fmt.Sprintf("action budget exhausted after %d executions", rep.ActionsExecuted))
	rep.Errors = append(rep.Errors, err.Error())
	if !t.Status.IsTerminal() {
		_ = t.Fail(err.Error())
	}
	w.logger.Warn("action budget exhausted", "task_id", t.ID, "executed", rep.ActionsExecuted)
}

// advancePlan marks the current step done after a successful action.
func (w *Workflow) advancePlan(t *task.Task) {
	if t.Plan == nil {
		return
	}
	if step := t.Plan.CurrentStep(); step != nil {
		step.Completed = true
	}
	t.Plan.Advance()
}

// skipStep steps past the current plan step without completing it, recording
// why it was abandoned.
func (w *Workflow) skipStep(t *task.Task, cause error) {
	if t.Plan == nil {
		return
	}
	if step := t.Plan.CurrentStep(); step != nil {
		if cause != nil {
			step.Error = cause.Error()
		}
	}
	t.Plan.Advance()
}

// recordOutcome merges the action outcome into the task's context bucket so
// later decisions see recent history.
func (w *Workflow) recordOutcome(t *task.Task, action *task.Action, err error) {
	store := w.deps.Tasks.Context()
	entry := map[string]any{
		"type":      action.Type.String(),
		"target":    action.Target,
		"success":   err == nil,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if err != nil {
		entry["error"] = err.Error()
	}

	var history []map[string]any
	if prev, ok := store.Value(t.ID, "previous_actions"); ok {
		if typed, ok := prev.([]map[string]any); ok {
			history = typed
		}
	}
	history = append(history, entry)
	if len(history) > recentActionsKept {
		history = history[len(history)-recentActionsKept:]
	}
	store.Set(t.ID, map[string]any{"previous_actions": history})
}

// executeAction dispatches one action to the driver.
func (w *Workflow) executeAction(ctx context.Context, a *task.Action) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch a.Type {
	case task.ActionNavigate:
		return nil, w.deps.Driver.Navigate(ctx, a.Target)

	case task.ActionClick, task.ActionSubmit:
		el, err := w.deps.Driver.FindElement(ctx, a.Target, w.cfg.FindTimeout)
		if err != nil {
			return nil, err
		}
		return nil, w.deps.Driver.Click(ctx, el)

	case task.ActionInput, task.ActionSelect:
		el, err := w.deps.Driver.FindElement(ctx, a.Target, w.cfg.FindTimeout)
		if err != nil {
			return nil, err
		}
		text, _ := a.Parameters["text"].(string)
		return nil, w.deps.Driver.Type(ctx, el, text)

	case task.ActionScroll, task.ActionHover:
		target := a.Target
		if target == "" {
			target = "body"
		}
		el, err := w.deps.Driver.FindElement(ctx, target, w.cfg.FindTimeout)
		if err != nil {
			return nil, err
		}
		return nil, w.deps.Driver.ScrollTo(ctx, el)

	case task.ActionWait:
		return nil, sleepCtx(ctx, waitDuration(a))

	case task.ActionExtract:
		return w.extract(ctx, a)

	case task.ActionScreenshot:
		data, err := w.deps.Driver.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"screenshot_bytes": len(data)}, nil

	case task.ActionRefresh:
		page, err := w.deps.Driver.PageContent(ctx)
		if err != nil {
			return nil, err
		}
		return nil, w.deps.Driver.Navigate(ctx, page.URL)

	case task.ActionBack, task.ActionForward:
		return nil, types.NewError(types.BROWSER_NAVIGATION_FAILED,
			fmt.Sprintf("%s is not supported by the driver", a.Type))
	}

	return nil, types.NewError(types.TASK_PLAN_INVALID,
		fmt.Sprintf("unknown action type %q", a.Type))
}

func (w *Workflow) extract(ctx context.Context, a *task.Action) (map[string]any, error) {
	if a.Target != "" {
		el, err := w.deps.Driver.FindElement(ctx, a.Target, w.cfg.FindTimeout)
		if err != nil {
			return nil, err
		}
		return map[string]any{"text": el.Text, "selector": el.Selector}, nil
	}
	page, err := w.deps.Driver.PageContent(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"text": page.Text, "title": page.Title, "url": page.URL}, nil
}

// waitDuration reads a wait action's duration parameter, given in seconds,
// clamped to a sane ceiling.
func waitDuration(a *task.Action) time.Duration {
	seconds := 1.0
	switch v := a.Parameters["duration"].(type) {
	case float64:
		seconds = v
	case int:
		seconds = float64(v)
	}
	d := time.Duration(seconds * float64(time.Second))
	if d < 0 {
		d = 0
	}
	if d > maxWaitDuration {
		d = maxWaitDuration
	}
	return d
}

func pageURL(ctx context.Context, w *Workflow) string {
	page, err := w.deps.Driver.PageContent(ctx)
	if err != nil || page == nil {
		return ""
	}
	return page.URL
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
