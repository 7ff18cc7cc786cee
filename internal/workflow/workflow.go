package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/webpilot-ai/webpilot/internal/browser"
	"github.com/webpilot-ai/webpilot/internal/decision"
	"github.com/webpilot-ai/webpilot/internal/degrade"
	"github.com/webpilot-ai/webpilot/internal/escalate"
	"github.com/webpilot-ai/webpilot/internal/events"
	"github.com/webpilot-ai/webpilot/internal/planner"
	"github.com/webpilot-ai/webpilot/internal/recovery"
	"github.com/webpilot-ai/webpilot/internal/security"
	"github.com/webpilot-ai/webpilot/internal/store"
	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
)

// Stage names the phase the workflow is in.
type Stage string

const (
	StagePlanning      Stage = "planning"
	StageExecution     Stage = "execution"
	StageCompletion    Stage = "completion"
	StageErrorHandling Stage = "error_handling"
)

// Config tunes the execution workflow.
type Config struct {
	// MaxActions is the hard cap on driver executions per task, independent
	// of wall-clock time.
	MaxActions int
	// MaxCycles bounds decide-execute cycles so a task that never executes
	// anything (every action blocked) still terminates.
	MaxCycles int
	// MaxTaskRetries bounds human-gated retries after a task fails.
	MaxTaskRetries int
	// MaxRecoveryRounds bounds error-handler consultations per logical
	// action before the failure goes to degradation/escalation.
	MaxRecoveryRounds int
	// ConfidenceThreshold is the confidence below which a failed action
	// solicits user guidance before recovery continues.
	ConfidenceThreshold float64
	// SuccessConfidence is the evaluation confidence above which the task
	// counts as complete even with plan steps remaining.
	SuccessConfidence float64
	// CycleDelay is the cooperative pause between decide-execute cycles.
	CycleDelay time.Duration
	// FindTimeout bounds element lookups.
	FindTimeout time.Duration
	// ProgressInterval is the progress reporter period.
	ProgressInterval time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MaxActions:          50,
		MaxCycles:           25,
		MaxTaskRetries:      1,
		MaxRecoveryRounds:   4,
		ConfidenceThreshold: 0.3,
		SuccessConfidence:   0.8,
		CycleDelay:          500 * time.Millisecond,
		FindTimeout:         10 * time.Second,
		ProgressInterval:    5 * time.Second,
	}
}

// Deps wires the workflow's collaborators. Driver, Planner, Decider, Gate,
// Recovery, Degradation, and Escalation are required; the rest may be nil.
type Deps struct {
	Driver      browser.Driver
	Planner     *planner.Planner
	Decider     *decision.Engine
	Gate        *security.Gate
	Recovery    *recovery.Handler
	Degradation *degrade.Manager
	Escalation  *escalate.Manager
	Tasks       *task.Manager
	Store       *store.TaskStore
	Bus         *events.Bus
}

// Report is the completion summary the workflow assembles for every run,
// successful or not. StrategyTrail records which recovery strategies were
// tried, in order, so a terminal failure can reconstruct what was attempted.
type Report struct {
	TaskID               types.ID      `json:"task_id"`
	Status               task.Status   `json:"status"`
	ActionsExecuted      int           `json:"actions_executed"`
	ActionsSucceeded     int           `json:"actions_succeeded"`
	ActionsFailed        int           `json:"actions_failed"`
	ActionsBlocked       int           `json:"actions_blocked"`
	Errors               []string      `json:"errors,omitempty"`
	StrategyTrail        []string      `json:"strategy_trail,omitempty"`
	Degraded             bool          `json:"degraded"`
	CompletionPercentage float64       `json:"completion_percentage"`
	Elapsed              time.Duration `json:"elapsed"`
	Message              string        `json:"message,omitempty"`
}

// Workflow drives one task at a time through Planning, Execution and
// Completion, routing every failure through recovery, then degradation, then
// human escalation, in that order.
type Workflow struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// New creates a Workflow, validating that the required collaborators are
// present.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Workflow, error) {
	if cfg.MaxActions <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case deps.Driver == nil:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "workflow requires a browser driver")
	case deps.Planner == nil:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "workflow requires a planner")
	case deps.Decider == nil:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "workflow requires a decision engine")
	case deps.Gate == nil:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "workflow requires a security gate")
	case deps.Recovery == nil:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "workflow requires an error handler")
	case deps.Degradation == nil:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "workflow requires a degradation manager")
	case deps.Escalation == nil:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "workflow requires an escalation manager")
	}
	if deps.Tasks == nil {
		deps.Tasks = task.NewManager(logger)
	}
	return &Workflow{cfg: cfg, deps: deps, logger: logger}, nil
}

// Run executes a task to a terminal state and returns the completion report.
// A failed run may be retried once per MaxTaskRetries when a human approves
// the retry; planning-stage failures are always terminal.
func (w *Workflow) Run(ctx context.Context, t *task.Task) (report *Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("workflow panicked", "task_id", t.ID, "panic", p)
			msg := fmt.Sprintf("internal workflow fault: %v", p)
			if !t.Status.IsTerminal() {
				_ = t.Fail(msg)
			}
			if report == nil {
				report = &Report{TaskID: t.ID}
			}
			report.Status = t.Status
			report.Errors = append(report.Errors, msg)
			report.Message = msg
			w.publish(events.EventTaskFailed, t, map[string]any{"error": msg})
		}
	}()

	retries := 0
	for {
		var retryable bool
		report, retryable = w.runOnce(ctx, t)
		if t.Status != task.StatusFailed || !retryable || retries >= w.cfg.MaxTaskRetries {
			return report, nil
		}
		if !w.offerRetry(ctx, t, report) {
			return report, nil
		}
		if resetErr := t.Reset(); resetErr != nil {
			return report, nil
		}
		retries++
		w.logger.Info("retrying failed task after user approval",
			"task_id", t.ID, "attempt", retries)
	}
}

// runOnce drives a single Planning → Execution → Completion pass. The bool
// reports whether a failure is eligible for a human-gated retry.
func (w *Workflow) runOnce(ctx context.Context, t *task.Task) (*Report, bool) {
	start := time.Now()
	rep := &Report{TaskID: t.ID}

	if err := t.Start(); err != nil {
		rep.Status = t.Status
		rep.Message = err.Error()
		rep.Errors = append(rep.Errors, err.Error())
		return rep, false
	}
	w.publish(events.EventTaskStarted, t, map[string]any{"description": t.Description})

	// Planning. Failure here aborts before any browser side effect and is
	// never retried.
	if err := w.plan(ctx, t); err != nil {
		msg := "planning failed: " + err.Error()
		_ = t.Fail(msg)
		rep.Status = t.Status
		rep.Message = msg
		rep.Errors = append(rep.Errors, err.Error())
		rep.Elapsed = time.Since(start)
		w.publish(events.EventTaskFailed, t, map[string]any{"error": msg})
		w.persist(t)
		return rep, false
	}
	w.persist(t)

	// Progress reporting runs only while the task is executing.
	progressCtx, cancelProgress := context.WithCancel(ctx)
	go w.reportProgress(progressCtx, t)

	w.execute(ctx, t, rep, start)
	cancelProgress()

	w.complete(ctx, t, rep)
	rep.Status = t.Status
	rep.Elapsed = time.Since(start)
	w.persist(t)
	return rep, true
}

func (w *Workflow) plan(ctx context.Context, t *task.Task) error {
	if t.Plan == nil {
		planContext := w.deps.Tasks.Context().Get(t.ID)
		plan, err := w.deps.Planner.CreatePlan(ctx, t.ID, t.Description, planContext)
		if err != nil {
			return err
		}
		t.Plan = plan
	}
	return t.Plan.Validate()
}

// complete assembles the terminal state. A task that never resolved to
// Completed or Failed parks as RequiresInput rather than pretending either.
func (w *Workflow) complete(ctx context.Context, t *task.Task, rep *Report) {
	if t.Plan != nil {
		progress := t.Plan.Progress()
		if progress > rep.CompletionPercentage {
			rep.CompletionPercentage = progress
		}
	}

	switch {
	case t.Status == task.StatusCompleted:
		if rep.Message == "" {
			rep.Message = "task completed"
		}
		w.publish(events.EventTaskCompleted, t, map[string]any{
			"actions_executed": rep.ActionsExecuted,
			"actions_failed":   rep.ActionsFailed,
		})
	case t.Status == task.StatusFailed:
		if rep.Message == "" {
			rep.Message = t.Error
		}
		w.publish(events.EventTaskFailed, t, map[string]any{"error": t.Error})
	case t.Status == task.StatusCancelled:
		rep.Message = "task cancelled"
		w.publish(events.EventTaskCancelled, t, nil)
	default:
		_ = t.RequireInput()
		rep.Message = "task needs user input to proceed"
	}
	w.deps.Tasks.Context().Drop(t.ID)
}

// offerRetry asks the user whether a failed task should run again.
func (w *Workflow) offerRetry(ctx context.Context, t *task.Task, rep *Report) bool {
	result := w.deps.Escalation.Escalate(ctx, escalate.Context{
		Reason:            escalate.ReasonUnresolvableError,
		Priority:          escalate.PriorityHigh,
		Task:              t,
		ErrorMessage:      t.Error,
		AvailableOptions:  []string{"Retry", "Abort"},
		RecommendedAction: "Retry",
	})
	return result.Response == escalate.ResponseRetry
}

func (w *Workflow) publish(eventType events.EventType, t *task.Task, payload map[string]any) {
	if w.deps.Bus == nil {
		return
	}
	_ = w.deps.Bus.Publish(context.Background(), events.NewEvent(eventType, t.ID, payload))
}

func (w *Workflow) persist(t *task.Task) {
	if w.deps.Store == nil {
		return
	}
	if err := w.deps.Store.Save(t); err != nil {
		w.logger.Warn("task persistence failed", "task_id", t.ID, "error", err)
	}
}
