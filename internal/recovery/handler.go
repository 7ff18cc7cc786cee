package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/webpilot-ai/webpilot/internal/events"
	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
)

const (
	maxErrorHistory   = 100
	previousErrorsFor = 5
	rateSmoothingStep = 0.1
	neutralRate       = 0.5
	maxCandidates     = 3
)

// Config tunes the handler's retry and restart behavior.
type Config struct {
	MaxRetries        int
	RetryPause        time.Duration
	BaseRetryDelay    time.Duration
	MaxRetryDelay     time.Duration
	BackoffMultiplier float64
	RestartThreshold  int
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		RetryPause:        500 * time.Millisecond,
		BaseRetryDelay:    time.Second,
		MaxRetryDelay:     30 * time.Second,
		BackoffMultiplier: 2.0,
		RestartThreshold:  5,
	}
}

// Info is the caller-supplied context around a failure.
type Info struct {
	Component  string
	Action     *task.Action
	Task       *task.Task
	PageURL    string
	RetryCount int
	Metadata   map[string]any
}

// ErrorContext is a recorded failure with its classification.
type ErrorContext struct {
	Err            error
	Type           ErrorType
	Component      string
	Action         *task.Action
	Task           *task.Task
	PageURL        string
	Timestamp      time.Time
	RetryCount     int
	PreviousErrors []string
}

// Result is the outcome of a recovery attempt.
type Result struct {
	Success        bool
	Strategy       Strategy
	Message        string
	NewAction      *task.Action
	ShouldContinue bool
	EscalateToUser bool
	NewRetryCount  int
	Delay          time.Duration
}

// RestartFunc restarts a named component; returning nil means the component
// is usable again.
type RestartFunc func(ctx context.Context) error

// Handler selects and executes recovery strategies for failures, tracking
// per-strategy success rates and per-component error pressure.
type Handler struct {
	cfg    Config
	logger *slog.Logger
	bus    *events.Bus

	mu              sync.Mutex
	history         []*ErrorContext
	componentErrors map[string]int
	successRates    map[Strategy]float64
	restartFuncs    map[string]RestartFunc
}

// NewHandler creates a Handler. bus may be nil to disable event publishing.
func NewHandler(cfg Config, bus *events.Bus, logger *slog.Logger) *Handler {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:             cfg,
		logger:          logger,
		bus:             bus,
		componentErrors: make(map[string]int),
		successRates:    make(map[Strategy]float64),
		restartFuncs:    make(map[string]RestartFunc),
	}
}

// SetRestartFunc registers a restart hook for a component.
func (h *Handler) SetRestartFunc(component string, fn RestartFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restartFuncs[component] = fn
}

// Handle classifies a failure, picks up to three candidate strategies ranked
// by observed success rate, and executes them in order until one succeeds.
// When every candidate fails the result asks for user escalation.
func (h *Handler) Handle(ctx context.Context, err error, info Info) Result {
	ec := h.record(err, info)

	h.logger.Error("handling error",
		"error_type", ec.Type,
		"component", ec.Component,
		"retry_count", ec.RetryCount,
		"error", err)

	candidates := h.candidates(ec)
	for _, strategy := range candidates {
		result := h.execute(ctx, strategy, ec)
		h.updateRate(strategy, result.Success)
		h.publish(ec, strategy, result)

		if result.Success {
			h.logger.Info("recovery successful", "strategy", strategy)
			return result
		}
		if result.EscalateToUser {
			// Abort and escalation are decisions, not failed attempts;
			// trying further strategies would override them.
			return result
		}
		h.logger.Warn("recovery strategy failed", "strategy", strategy, "message", result.Message)
	}

	return Result{
		Success:        false,
		Strategy:       StrategyUserEscalation,
		Message:        "all recovery strategies failed",
		ShouldContinue: true,
		EscalateToUser: true,
	}
}

func (h *Handler) record(err error, info Info) *ErrorContext {
	h.mu.Lock()
	defer h.mu.Unlock()

	ec := &ErrorContext{
		Err:        err,
		Type:       Classify(err),
		Component:  info.Component,
		Action:     info.Action,
		Task:       info.Task,
		PageURL:    info.PageURL,
		Timestamp:  time.Now(),
		RetryCount: info.RetryCount,
	}
	if ec.Component == "" {
		ec.Component = "unknown"
	}

	start := len(h.history) - previousErrorsFor
	if start < 0 {
		start = 0
	}
	for _, prev := range h.history[start:] {
		if prev.Component == ec.Component {
			ec.PreviousErrors = append(ec.PreviousErrors, prev.Err.Error())
		}
	}

	h.history = append(h.history, ec)
	if len(h.history) > maxErrorHistory {
		h.history = h.history[len(h.history)-maxErrorHistory:]
	}
	h.componentErrors[ec.Component]++
	return ec
}

// candidates assembles the strategy list: the error-type table, a retry (or
// backoff retry) prepended by attempt count, a component restart appended
// under error pressure, and an escalation when the task is already parked on
// input. The list is rate-ranked and capped at three.
func (h *Handler) candidates(ec *ErrorContext) []Strategy {
	strategies := append([]Strategy(nil), strategyTable[ec.Type]...)

	if ec.RetryCount == 0 {
		strategies = prependUnique(strategies, StrategyRetry)
	} else if ec.RetryCount < h.cfg.MaxRetries {
		// From the second attempt on, plain retry is replaced by backoff.
		strategies = removeStrategy(strategies, StrategyRetry)
		strategies = prependUnique(strategies, StrategyRetryWithBackoff)
	}

	h.mu.Lock()
	pressure := h.componentErrors[ec.Component]
	h.mu.Unlock()
	if pressure > h.cfg.RestartThreshold {
		strategies = appendUnique(strategies, StrategyRestartComponent)
	}

	if ec.Task != nil && ec.Task.Status == task.StatusRequiresInput {
		strategies = appendUnique(strategies, StrategyUserEscalation)
	}

	if len(strategies) == 0 {
		strategies = []Strategy{StrategyRetry, StrategyUserEscalation}
	}

	h.mu.Lock()
	rates := make(map[Strategy]float64, len(strategies))
	for _, s := range strategies {
		rates[s] = neutralRate
		if r, ok := h.successRates[s]; ok {
			rates[s] = r
		}
	}
	h.mu.Unlock()

	sort.SliceStable(strategies, func(i, j int) bool {
		return rates[strategies[i]] > rates[strategies[j]]
	})

	if len(strategies) > maxCandidates {
		strategies = strategies[:maxCandidates]
	}
	return strategies
}

func (h *Handler) execute(ctx context.Context, strategy Strategy, ec *ErrorContext) Result {
	switch strategy {
	case StrategyRetry:
		return h.retry(ctx, ec)
	case StrategyRetryWithBackoff:
		return h.retryWithBackoff(ctx, ec)
	case StrategyFallbackAction:
		return h.fallbackAction(ec)
	case StrategyAlternativeSelector:
		return h.alternativeSelector(ec)
	case StrategySkipStep:
		return h.skipStep(ec)
	case StrategyRestartComponent:
		return h.restartComponent(ctx, ec)
	case StrategyUserEscalation:
		return Result{
			Strategy:       StrategyUserEscalation,
			Message:        "escalating to user",
			ShouldContinue: true,
			EscalateToUser: true,
		}
	case StrategyDegradation:
		return h.degradeAction(ec)
	case StrategyAbortTask:
		return Result{
			Strategy:       StrategyAbortTask,
			Message:        "task aborted due to unrecoverable error",
			ShouldContinue: false,
			EscalateToUser: true,
		}
	}
	return Result{Strategy: strategy, Message: fmt.Sprintf("unknown recovery strategy %q", strategy)}
}

func (h *Handler) retry(ctx context.Context, ec *ErrorContext) Result {
	if ec.RetryCount >= h.cfg.MaxRetries {
		return Result{
			Strategy: StrategyRetry,
			Message:  fmt.Sprintf("maximum retries (%d) exceeded", h.cfg.MaxRetries),
		}
	}
	if err := sleepCtx(ctx, h.cfg.RetryPause); err != nil {
		return Result{Strategy: StrategyRetry, Message: err.Error()}
	}
	return Result{
		Success:        true,
		Strategy:       StrategyRetry,
		Message:        "retrying action",
		NewAction:      ec.Action,
		ShouldContinue: true,
		NewRetryCount:  ec.RetryCount + 1,
		Delay:          h.cfg.RetryPause,
	}
}

// BackoffDelay computes the delay before the given retry attempt:
// base * multiplier^retryCount, capped at the configured maximum.
func (h *Handler) BackoffDelay(retryCount int) time.Duration {
	delay := time.Duration(float64(h.cfg.BaseRetryDelay) * math.Pow(h.cfg.BackoffMultiplier, float64(retryCount)))
	if delay > h.cfg.MaxRetryDelay {
		delay = h.cfg.MaxRetryDelay
	}
	return delay
}

func (h *Handler) retryWithBackoff(ctx context.Context, ec *ErrorContext) Result {
	if ec.RetryCount >= h.cfg.MaxRetries {
		return Result{
			Strategy: StrategyRetryWithBackoff,
			Message:  fmt.Sprintf("maximum retries (%d) exceeded", h.cfg.MaxRetries),
		}
	}
	delay := h.BackoffDelay(ec.RetryCount)
	h.logger.Info("retrying with backoff", "delay", delay)
	if err := sleepCtx(ctx, delay); err != nil {
		return Result{Strategy: StrategyRetryWithBackoff, Message: err.Error()}
	}
	return Result{
		Success:        true,
		Strategy:       StrategyRetryWithBackoff,
		Message:        fmt.Sprintf("retrying after %s backoff", delay),
		NewAction:      ec.Action,
		ShouldContinue: true,
		NewRetryCount:  ec.RetryCount + 1,
		Delay:          delay,
	}
}

// fallbackAction substitutes a different interaction for the failed one:
// click becomes an Enter keypress, type gets a focusing click, navigation
// gets a refresh.
func (h *Handler) fallbackAction(ec *ErrorContext) Result {
	if ec.Action == nil {
		return Result{Strategy: StrategyFallbackAction, Message: "no action to create fallback for"}
	}

	var fallback *task.Action
	switch ec.Action.Type {
	case task.ActionClick:
		fallback = task.NewAction(task.ActionInput, ec.Action.Target)
		fallback.Parameters["text"] = "\n"
		fallback.Description = "Fallback: press Enter on " + ec.Action.Target
	case task.ActionInput:
		fallback = task.NewAction(task.ActionClick, ec.Action.Target)
		fallback.Description = "Fallback: click before typing on " + ec.Action.Target
	case task.ActionNavigate:
		fallback = task.NewAction(task.ActionRefresh, "")
		fallback.Description = "Fallback: refresh page before navigation"
	default:
		return Result{
			Strategy: StrategyFallbackAction,
			Message:  fmt.Sprintf("no fallback available for action type %q", ec.Action.Type),
		}
	}

	fallback.WithConfidence(ec.Action.Confidence)
	return Result{
		Success:        true,
		Strategy:       StrategyFallbackAction,
		Message:        "created fallback action: " + fallback.Description,
		NewAction:      fallback,
		ShouldContinue: true,
		NewRetryCount:  ec.RetryCount,
	}
}

// alternativeSelector rebuilds the action against a looser selector at
// reduced confidence. Only meaningful for element-not-found failures.
func (h *Handler) alternativeSelector(ec *ErrorContext) Result {
	if ec.Action == nil || ec.Type != ErrorElementNotFound {
		return Result{Strategy: StrategyAlternativeSelector, Message: "not applicable for this error type"}
	}

	alternatives := AlternativeSelectors(ec.Action.Target)
	if len(alternatives) == 0 {
		return Result{Strategy: StrategyAlternativeSelector, Message: "no alternative selectors available"}
	}

	newAction := task.NewAction(ec.Action.Type, alternatives[0])
	for k, v := range ec.Action.Parameters {
		newAction.Parameters[k] = v
	}
	newAction.Description = "Alternative selector: " + alternatives[0]
	newAction.WithConfidence(ec.Action.Confidence * 0.8)

	return Result{
		Success:        true,
		Strategy:       StrategyAlternativeSelector,
		Message:        "trying alternative selector: " + alternatives[0],
		NewAction:      newAction,
		ShouldContinue: true,
		NewRetryCount:  ec.RetryCount,
	}
}

func (h *Handler) skipStep(ec *ErrorContext) Result {
	return Result{
		Success:        true,
		Strategy:       StrategySkipStep,
		Message:        "skipping failed step",
		ShouldContinue: true,
	}
}

func (h *Handler) restartComponent(ctx context.Context, ec *ErrorContext) Result {
	h.mu.Lock()
	fn, ok := h.restartFuncs[ec.Component]
	h.mu.Unlock()
	if !ok {
		return Result{
			Strategy: StrategyRestartComponent,
			Message:  fmt.Sprintf("no restart hook registered for component %q", ec.Component),
		}
	}

	if err := fn(ctx); err != nil {
		return Result{
			Strategy: StrategyRestartComponent,
			Message:  types.WrapError(types.RECOVERY_RESTART_FAILED, "component restart failed", err).Error(),
		}
	}

	h.mu.Lock()
	h.componentErrors[ec.Component] = 0
	h.mu.Unlock()

	return Result{
		Success:        true,
		Strategy:       StrategyRestartComponent,
		Message:        fmt.Sprintf("component %q restarted", ec.Component),
		ShouldContinue: true,
	}
}

// degradeAction simplifies the failed action: long typed text is truncated,
// extraction collapses to plain body text.
func (h *Handler) degradeAction(ec *ErrorContext) Result {
	if ec.Action == nil {
		return Result{Strategy: StrategyDegradation, Message: "no action to degrade"}
	}

	a := ec.Action
	if a.Type == task.ActionInput {
		if text, ok := a.Parameters["text"].(string); ok && len(text) > 100 {
			degraded := task.NewAction(task.ActionInput, a.Target)
			degraded.Parameters["text"] = text[:50] + "..."
			degraded.Description = "Degraded: shortened text input"
			degraded.WithConfidence(a.Confidence)
			return Result{
				Success:        true,
				Strategy:       StrategyDegradation,
				Message:        "simplified action by shortening text",
				NewAction:      degraded,
				ShouldContinue: true,
			}
		}
	}
	if a.Type == task.ActionExtract {
		degraded := task.NewAction(task.ActionExtract, "body")
		degraded.Parameters["extract_type"] = "text_only"
		degraded.Description = "Degraded: basic text extraction only"
		degraded.WithConfidence(a.Confidence)
		return Result{
			Success:        true,
			Strategy:       StrategyDegradation,
			Message:        "simplified extraction to text only",
			NewAction:      degraded,
			ShouldContinue: true,
		}
	}

	return Result{
		Strategy: StrategyDegradation,
		Message:  fmt.Sprintf("no degradation available for action type %q", a.Type),
	}
}

func (h *Handler) updateRate(strategy Strategy, success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rate, ok := h.successRates[strategy]
	if !ok {
		rate = neutralRate
	}
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	h.successRates[strategy] = rate*(1-rateSmoothingStep) + outcome*rateSmoothingStep
}

func (h *Handler) publish(ec *ErrorContext, strategy Strategy, result Result) {
	if h.bus == nil {
		return
	}
	var taskID types.ID
	if ec.Task != nil {
		taskID = ec.Task.ID
	}
	event := events.NewEvent(events.EventRecoveryAttempted, taskID, map[string]any{
		"strategy":   strategy.String(),
		"error_type": ec.Type.String(),
		"component":  ec.Component,
		"success":    result.Success,
	})
	_ = h.bus.Publish(context.Background(), event)
}

// Statistics summarizes error pressure and strategy effectiveness.
type Statistics struct {
	TotalErrors       int
	ErrorTypeCounts   map[ErrorType]int
	ComponentErrors   map[string]int
	StrategyRates     map[Strategy]float64
	WorstComponent    string
	RecentErrors1Hour int
}

// Stats returns a snapshot of the handler's counters.
func (h *Handler) Stats() Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := Statistics{
		TotalErrors:     len(h.history),
		ErrorTypeCounts: make(map[ErrorType]int),
		ComponentErrors: make(map[string]int, len(h.componentErrors)),
		StrategyRates:   make(map[Strategy]float64, len(h.successRates)),
	}
	cutoff := time.Now().Add(-time.Hour)
	for _, ec := range h.history {
		stats.ErrorTypeCounts[ec.Type]++
		if ec.Timestamp.After(cutoff) {
			stats.RecentErrors1Hour++
		}
	}
	worst := 0
	for component, count := range h.componentErrors {
		stats.ComponentErrors[component] = count
		if count > worst {
			worst = count
			stats.WorstComponent = component
		}
	}
	for s, r := range h.successRates {
		stats.StrategyRates[s] = r
	}
	return stats
}

// RecentErrors returns the most recent recorded failures, oldest first.
func (h *Handler) RecentErrors(limit int) []*ErrorContext {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.history) {
		limit = len(h.history)
	}
	out := make([]*ErrorContext, limit)
	copy(out, h.history[len(h.history)-limit:])
	return out
}

// ClearHistory resets error tracking.
func (h *Handler) ClearHistory() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = nil
	h.componentErrors = make(map[string]int)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func removeStrategy(list []Strategy, s Strategy) []Strategy {
	out := list[:0]
	for _, existing := range list {
		if existing != s {
			out = append(out, existing)
		}
	}
	return out
}

func prependUnique(list []Strategy, s Strategy) []Strategy {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append([]Strategy{s}, list...)
}

func appendUnique(list []Strategy, s Strategy) []Strategy {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
