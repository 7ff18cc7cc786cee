package degrade

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/webpilot-ai/webpilot/internal/events"
	"github.com/webpilot-ai/webpilot/internal/task"
)

const (
	defaultMinCompletionThreshold = 0.3
	defaultMaxErrorTolerance      = 5
	defaultTimeLimitFactor        = 2.0

	stagnationWindow   = 5 * time.Minute
	stagnationProgress = 0.5
	criticalConfidence = 0.9
	criticalFailureMin = 2
)

// Config tunes degradation assessment.
type Config struct {
	MinCompletionThreshold float64
	MaxErrorTolerance      int
	TimeLimitFactor        float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MinCompletionThreshold: defaultMinCompletionThreshold,
		MaxErrorTolerance:      defaultMaxErrorTolerance,
		TimeLimitFactor:        defaultTimeLimitFactor,
	}
}

// Context carries the execution state a degradation decision is made from.
type Context struct {
	Task            *task.Task
	FailedActions   []*task.Action
	CurrentProgress float64
	ErrorCount      int
	TimeElapsed     time.Duration
	UserPriorities  map[string]int
}

// Result is the outcome of a partial-completion attempt.
type Result struct {
	Success              bool
	CompletionPercentage float64
	CompletedSteps       []string
	SkippedSteps         []string
	Level                Level
	Strategy             Strategy
	Message              string
	Recommendations      []string
}

// taskCategoryRules maps a task category and level onto the step keywords to
// skip and the simplifications to apply.
type categoryRules struct {
	skipSteps       []string
	simplifications []string
}

var degradationRules = map[string]map[Level]categoryRules{
	"email_management": {
		LevelMinimal: {
			skipSteps:       []string{"detailed_analysis", "advanced_filtering"},
			simplifications: []string{"basic_search", "simple_categorization"},
		},
		LevelModerate: {
			skipSteps:       []string{"spam_detection", "auto_organization", "detailed_analysis"},
			simplifications: []string{"manual_review_prompts", "basic_operations_only"},
		},
		LevelSignificant: {
			skipSteps:       []string{"auto_actions", "bulk_operations"},
			simplifications: []string{"read_only_mode", "manual_confirmation_all"},
		},
	},
	"online_ordering": {
		LevelMinimal: {
			skipSteps:       []string{"price_comparison", "review_analysis"},
			simplifications: []string{"basic_search", "simple_selection"},
		},
		LevelModerate: {
			skipSteps:       []string{"advanced_filtering", "recommendation_engine"},
			simplifications: []string{"manual_product_selection", "basic_checkout"},
		},
		LevelSignificant: {
			skipSteps:       []string{"auto_checkout", "payment_processing"},
			simplifications: []string{"cart_preparation_only", "manual_completion_required"},
		},
	},
	"web_navigation": {
		LevelMinimal: {
			skipSteps:       []string{"advanced_interactions", "dynamic_content_handling"},
			simplifications: []string{"basic_clicks_only", "simple_form_filling"},
		},
		LevelModerate: {
			skipSteps:       []string{"javascript_interactions", "complex_workflows"},
			simplifications: []string{"static_content_only", "manual_navigation_prompts"},
		},
		LevelSignificant: {
			skipSteps:       []string{"automated_interactions"},
			simplifications: []string{"observation_mode", "manual_guidance_required"},
		},
	},
}

// Manager decides when a struggling task should trade completeness for
// progress, and executes the partial-completion strategies.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	bus    *events.Bus

	mu           sync.Mutex
	history      []Context
	successRates map[Strategy]float64
}

// NewManager creates a Manager. bus may be nil.
func NewManager(cfg Config, bus *events.Bus, logger *slog.Logger) *Manager {
	if cfg.MaxErrorTolerance <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:          cfg,
		logger:       logger,
		bus:          bus,
		successRates: make(map[Strategy]float64),
	}
}

// Assess decides whether degradation is warranted and at what level. The
// level is the most severe one any trigger demands: error pressure against
// the tolerance, elapsed time against the plan estimate, stagnating
// progress, and repeated high-stakes failures.
func (m *Manager) Assess(dc Context) (bool, Level) {
	needed := false
	level := LevelNone

	tolerance := float64(m.cfg.MaxErrorTolerance)
	switch {
	case float64(dc.ErrorCount) >= tolerance:
		needed = true
		level = LevelSignificant
	case float64(dc.ErrorCount) >= tolerance*0.6:
		needed = true
		level = LevelModerate
	case float64(dc.ErrorCount) >= tolerance*0.3:
		needed = true
		level = LevelMinimal
	}

	if dc.Task != nil && dc.Task.Plan != nil && dc.Task.Plan.EstimatedDuration > 0 {
		limit := time.Duration(float64(dc.Task.Plan.EstimatedDuration) * m.cfg.TimeLimitFactor)
		if dc.TimeElapsed > limit {
			needed = true
			if level == LevelNone {
				level = LevelModerate
			}
		}
	}

	if dc.CurrentProgress < stagnationProgress && dc.TimeElapsed > stagnationWindow {
		needed = true
		if level == LevelNone {
			level = LevelMinimal
		}
	}

	critical := 0
	for _, a := range dc.FailedActions {
		if a.Destructive || a.Confidence > criticalConfidence {
			critical++
		}
	}
	if critical >= criticalFailureMin {
		needed = true
		level = MaxLevel(level, LevelModerate)
	}

	m.logger.Info("degradation assessment", "needed", needed, "level", level)
	return needed, level
}

// Execute runs the partial-completion strategy appropriate for the context
// and level, and records the outcome.
func (m *Manager) Execute(ctx context.Context, dc Context, level Level) Result {
	category := CategorizeTask(dc.Task)
	strategy := m.selectStrategy(dc, level)

	var result Result
	switch strategy {
	case StrategySkipOptionalSteps:
		result = m.skipOptionalSteps(dc, level, category)
	case StrategySimplifyActions:
		result = m.simplifyActions(dc, level, category)
	case StrategyReducePrecision:
		result = m.reducePrecision(dc, level)
	case StrategyFallbackToManual:
		result = m.fallbackToManual(dc, level)
	case StrategyExtractAvailableData:
		result = m.extractAvailableData(dc, level)
	case StrategyCompleteCoreOnly:
		result = m.completeCoreOnly(dc, level, category)
	default:
		result = Result{
			CompletionPercentage: dc.CurrentProgress,
			Level:                level,
			Strategy:             strategy,
			Message:              fmt.Sprintf("unknown strategy %q", strategy),
		}
	}

	m.mu.Lock()
	rate, ok := m.successRates[strategy]
	if !ok {
		rate = 0.5
	}
	outcome := 0.0
	if result.Success {
		outcome = 1.0
	}
	m.successRates[strategy] = rate*0.9 + outcome*0.1
	m.history = append(m.history, dc)
	m.mu.Unlock()

	if m.bus != nil && dc.Task != nil {
		_ = m.bus.Publish(ctx, events.NewEvent(events.EventDegradationApplied, dc.Task.ID, map[string]any{
			"level":      level.String(),
			"strategy":   strategy.String(),
			"completion": result.CompletionPercentage,
		}))
	}

	m.logger.Info("partial completion executed",
		"strategy", strategy, "completion", result.CompletionPercentage)
	return result
}

// CategorizeTask buckets a task by its description for rule lookup.
func CategorizeTask(t *task.Task) string {
	if t == nil {
		return "web_navigation"
	}
	description := strings.ToLower(t.Description)
	for _, kw := range []string{"email", "inbox", "spam", "mail"} {
		if strings.Contains(description, kw) {
			return "email_management"
		}
	}
	for _, kw := range []string{"order", "buy", "purchase", "cart", "checkout"} {
		if strings.Contains(description, kw) {
			return "online_ordering"
		}
	}
	return "web_navigation"
}

func (m *Manager) selectStrategy(dc Context, level Level) Strategy {
	if _, ok := dc.UserPriorities["core_functionality_only"]; ok {
		return StrategyCompleteCoreOnly
	}
	switch level {
	case LevelMaximum:
		return StrategyFallbackToManual
	case LevelSignificant:
		return StrategyExtractAvailableData
	case LevelModerate:
		return StrategySimplifyActions
	}
	return StrategySkipOptionalSteps
}

// boost raises the reported completion by an increment up to a cap, never
// dropping below what was already achieved and never exceeding 1.
func boost(current, increment, limit float64) float64 {
	v := current + increment
	if v > limit {
		v = limit
	}
	if v < current {
		v = current
	}
	if v > 1 {
		v = 1
	}
	return v
}

func (m *Manager) skipOptionalSteps(dc Context, level Level, category string) Result {
	rules := degradationRules[category][level]

	var completed, skipped []string
	if dc.Task != nil && dc.Task.Plan != nil {
		for _, step := range dc.Task.Plan.Steps {
			name := strings.ToLower(step.Description)
			skip := false
			for _, kw := range rules.skipSteps {
				if strings.Contains(name, kw) {
					skip = true
					break
				}
			}
			if skip {
				skipped = append(skipped, step.Description)
			} else {
				completed = append(completed, step.Description)
			}
		}
	}

	completion := 0.0
	if total := len(completed) + len(skipped); total > 0 {
		completion = float64(len(completed)) / float64(total)
	}
	if completion < dc.CurrentProgress {
		completion = dc.CurrentProgress
	}

	return Result{
		Success:              true,
		CompletionPercentage: completion,
		CompletedSteps:       completed,
		SkippedSteps:         skipped,
		Level:                level,
		Strategy:             StrategySkipOptionalSteps,
		Message:              fmt.Sprintf("completed core functionality, skipped %d optional steps", len(skipped)),
		Recommendations: []string{
			"Focus on core functionality only",
			"Manual review recommended for skipped steps",
		},
	}
}

func (m *Manager) simplifyActions(dc Context, level Level, category string) Result {
	rules := degradationRules[category][level]

	var completed, disabled []string
	for _, s := range rules.simplifications {
		switch s {
		case "basic_operations_only":
			completed = append(completed, "Switched to basic operations mode")
			disabled = append(disabled, "Complex interactions disabled")
		case "manual_confirmation_all":
			completed = append(completed, "Enabled manual confirmation for all actions")
			disabled = append(disabled, "User approval required for each step")
		case "read_only_mode":
			completed = append(completed, "Switched to read-only mode")
			disabled = append(disabled, "No destructive actions will be performed")
		case "basic_search":
			completed = append(completed, "Using basic search functionality")
			disabled = append(disabled, "Advanced search features disabled")
		default:
			completed = append(completed, "Applied simplification: "+s)
		}
	}

	return Result{
		Success:              true,
		CompletionPercentage: boost(dc.CurrentProgress, 0.3, 0.8),
		CompletedSteps:       completed,
		SkippedSteps:         disabled,
		Level:                level,
		Strategy:             StrategySimplifyActions,
		Message:              fmt.Sprintf("actions simplified, %d features disabled", len(disabled)),
		Recommendations: []string{
			"Actions have been simplified to reduce failure risk",
			"Manual intervention may be needed for complex operations",
		},
	}
}

func (m *Manager) reducePrecision(dc Context, level Level) Result {
	return Result{
		Success:              true,
		CompletionPercentage: boost(dc.CurrentProgress, 0.4, 0.9),
		CompletedSteps: []string{
			"Reduced precision requirements",
			"Accepting approximate results",
		},
		SkippedSteps: []string{"High-precision validation", "Exact matching requirements"},
		Level:        level,
		Strategy:     StrategyReducePrecision,
		Message:      "precision reduced to allow approximate completion",
		Recommendations: []string{
			"Results may be approximate rather than exact",
			"Manual verification recommended",
		},
	}
}

func (m *Manager) fallbackToManual(dc Context, level Level) Result {
	var manualSteps []string
	if dc.Task != nil && dc.Task.Plan != nil {
		for _, step := range dc.Task.Plan.Steps {
			if !step.Completed {
				manualSteps = append(manualSteps, "Manual step: "+step.Description)
			}
		}
	}

	return Result{
		Success:              true,
		CompletionPercentage: dc.CurrentProgress,
		CompletedSteps: []string{
			"Prepared task for manual completion",
			"Documented current progress",
		},
		SkippedSteps: manualSteps,
		Level:        level,
		Strategy:     StrategyFallbackToManual,
		Message:      "task prepared for manual completion",
		Recommendations: []string{
			"Task requires manual completion",
			fmt.Sprintf("Remaining steps: %d", len(manualSteps)),
		},
	}
}

func (m *Manager) extractAvailableData(dc Context, level Level) Result {
	extracted := 0
	for _, a := range dc.FailedActions {
		if a.Result != nil {
			extracted++
		}
	}

	return Result{
		Success:              true,
		CompletionPercentage: boost(dc.CurrentProgress, 0.2, 0.7),
		CompletedSteps: []string{
			"Extracted available data",
			"Preserved successful results",
		},
		SkippedSteps: []string{"Failed operations", "Incomplete data collection"},
		Level:        level,
		Strategy:     StrategyExtractAvailableData,
		Message:      fmt.Sprintf("extracted %d successful results", extracted),
		Recommendations: []string{
			"Partial data is available for review",
			"Task can be resumed from current state",
		},
	}
}

func (m *Manager) completeCoreOnly(dc Context, level Level, category string) Result {
	coreSteps := map[string][]string{
		"email_management": {"login", "access_inbox", "basic_email_operations"},
		"online_ordering":  {"product_search", "add_to_cart", "basic_checkout"},
		"web_navigation":   {"page_navigation", "basic_interactions", "data_extraction"},
	}[category]
	if coreSteps == nil {
		coreSteps = []string{"basic_navigation", "core_interaction"}
	}

	completed := make([]string, 0, len(coreSteps))
	for _, s := range coreSteps {
		completed = append(completed, "Core step: "+s)
	}

	return Result{
		Success:              true,
		CompletionPercentage: boost(dc.CurrentProgress, 0.5, 0.8),
		CompletedSteps:       completed,
		SkippedSteps:         []string{"Advanced features", "Optional enhancements", "Non-essential operations"},
		Level:                level,
		Strategy:             StrategyCompleteCoreOnly,
		Message:              fmt.Sprintf("core functionality completed (%d steps)", len(coreSteps)),
		Recommendations: []string{
			"Core functionality completed successfully",
			"Full functionality can be added later if needed",
		},
	}
}

// Stats summarizes degradation activity.
type Stats struct {
	TotalDegradations int
	AverageProgress   float64
	StrategyRates     map[Strategy]float64
}

// Statistics returns a snapshot of the manager's counters.
func (m *Manager) Statistics() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		TotalDegradations: len(m.history),
		StrategyRates:     make(map[Strategy]float64, len(m.successRates)),
	}
	for s, r := range m.successRates {
		stats.StrategyRates[s] = r
	}
	if len(m.history) > 0 {
		sum := 0.0
		for _, dc := range m.history {
			sum += dc.CurrentProgress
		}
		stats.AverageProgress = sum / float64(len(m.history))
	}
	return stats
}

// Report renders a human-readable degradation summary.
func Report(result Result) string {
	var b strings.Builder
	b.WriteString("Graceful Degradation Report\n")
	b.WriteString(strings.Repeat("=", 30) + "\n\n")
	fmt.Fprintf(&b, "Completion Status: %.1f%% complete\n", result.CompletionPercentage*100)
	fmt.Fprintf(&b, "Degradation Level: %s\n", result.Level)
	fmt.Fprintf(&b, "Strategy Used: %s\n\n", result.Strategy)

	b.WriteString("Completed Steps:\n")
	for _, step := range result.CompletedSteps {
		fmt.Fprintf(&b, "  + %s\n", step)
	}
	if len(result.SkippedSteps) > 0 {
		b.WriteString("\nSkipped Steps:\n")
		for _, step := range result.SkippedSteps {
			fmt.Fprintf(&b, "  - %s\n", step)
		}
	}
	if len(result.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range result.Recommendations {
			fmt.Fprintf(&b, "  * %s\n", rec)
		}
	}
	fmt.Fprintf(&b, "\nMessage: %s\n", result.Message)
	return b.String()
}
