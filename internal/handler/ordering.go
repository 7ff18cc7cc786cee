package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/webpilot-ai/webpilot/internal/task"
)

// orderingPlatform describes one supported shopping or delivery platform.
type orderingPlatform struct {
	name     string
	domains  []string
	entryURL string
	food     bool
}

var orderingPlatforms = []orderingPlatform{
	{name: "ubereats", domains: []string{"ubereats.com"}, entryURL: "https://www.ubereats.com", food: true},
	{name: "doordash", domains: []string{"doordash.com"}, entryURL: "https://www.doordash.com", food: true},
	{name: "amazon", domains: []string{"amazon.com"}, entryURL: "https://www.amazon.com"},
	{name: "instacart", domains: []string{"instacart.com"}, entryURL: "https://www.instacart.com", food: true},
}

func detectOrderingPlatform(url string) (orderingPlatform, bool) {
	lower := strings.ToLower(url)
	for _, p := range orderingPlatforms {
		for _, domain := range p.domains {
			if strings.Contains(lower, domain) {
				return p, true
			}
		}
	}
	return orderingPlatform{}, false
}

// OrderingHandler runs shopping and food-delivery tasks: product search,
// cart building and order preparation. It stops short of payment; the final
// checkout click stays behind the security gate's confirmation flow.
type OrderingHandler struct {
	runner Runner
	logger *slog.Logger
}

// NewOrderingHandler creates the ordering task handler.
func NewOrderingHandler(runner Runner, logger *slog.Logger) *OrderingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderingHandler{runner: runner, logger: logger}
}

func (h *OrderingHandler) ID() string { return "ordering" }

var orderingTaskKeywords = []string{
	"order", "buy", "purchase", "add to cart", "checkout",
	"food delivery", "shopping", "grocery", "restaurant",
	"ubereats", "doordash", "amazon", "instacart",
}

// CanHandle implements Handler.
func (h *OrderingHandler) CanHandle(t *task.Task) bool {
	lower := strings.ToLower(t.Description)
	for _, kw := range orderingTaskKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// classifyOrderingTask maps a description onto one of the known flows.
func classifyOrderingTask(description string) string {
	lower := strings.ToLower(description)
	switch {
	case containsAny(lower, "search", "find", "look for"):
		return "product_search"
	case containsAny(lower, "add to cart", "add", "order"):
		return "add_to_cart"
	case containsAny(lower, "checkout", "complete", "finish order"):
		return "complete_order"
	default:
		return "general"
	}
}

// platformForTask picks a platform from the description. Food wording
// defaults to ubereats, everything else to amazon.
func platformForTask(description string) orderingPlatform {
	lower := strings.ToLower(description)
	for _, p := range orderingPlatforms {
		if strings.Contains(lower, p.name) {
			return p
		}
	}
	if containsAny(lower, "food", "restaurant", "delivery") {
		return orderingPlatforms[0]
	}
	return orderingPlatforms[2]
}

// extractSearchTerms pulls likely product words out of the description by
// dropping instruction words and platform names.
func extractSearchTerms(description string) []string {
	stop := map[string]bool{
		"order": true, "buy": true, "purchase": true, "add": true, "to": true,
		"cart": true, "the": true, "a": true, "an": true, "some": true,
		"from": true, "on": true, "for": true, "me": true, "please": true,
		"search": true, "find": true, "look": true, "checkout": true,
		"and": true, "of": true, "food": true, "delivery": true,
	}
	for _, p := range orderingPlatforms {
		stop[p.name] = true
	}

	var terms []string
	for _, word := range strings.Fields(strings.ToLower(description)) {
		word = strings.Trim(word, ".,!?\"'")
		if word == "" || stop[word] {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

// Execute implements Handler.
func (h *OrderingHandler) Execute(ctx context.Context, t *task.Task) (map[string]any, error) {
	platform := platformForTask(t.Description)
	taskType := classifyOrderingTask(t.Description)
	terms := extractSearchTerms(t.Description)
	h.logger.Info("ordering task accepted",
		"task_id", t.ID, "platform", platform.name, "task_type", taskType)

	if t.Plan == nil {
		plan := task.NewPlan(t.ID)
		plan.Steps = append(plan.Steps,
			task.NewStep("Navigate to "+platform.entryURL, task.ActionNavigate,
				map[string]any{"url": platform.entryURL}),
		)
		query := strings.Join(terms, " ")
		switch taskType {
		case "product_search":
			plan.Steps = append(plan.Steps,
				task.NewStep("Search for "+query, task.ActionInput,
					map[string]any{"text": query}),
				task.NewStep("Extract the search results", task.ActionExtract, nil),
			)
		case "add_to_cart", "general":
			plan.Steps = append(plan.Steps,
				task.NewStep("Search for "+query, task.ActionInput,
					map[string]any{"text": query}),
				task.NewStep("Extract the search results", task.ActionExtract, nil),
				task.NewStep("Add the best matching item to the cart", task.ActionClick, nil),
			)
		case "complete_order":
			// Review only. The actual payment click is decided at run time
			// and must clear confirmation on its own.
			plan.Steps = append(plan.Steps,
				task.NewStep("Open the cart", task.ActionClick, nil),
				task.NewStep("Extract the cart contents for review", task.ActionExtract, nil),
			)
		}
		t.Plan = plan
	}

	rep, err := h.runner.Run(ctx, t)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"platform":         platform.name,
		"task_type":        taskType,
		"search_terms":     terms,
		"status":           rep.Status.String(),
		"actions_executed": rep.ActionsExecuted,
		"completion":       rep.CompletionPercentage,
	}, nil
}

var _ Handler = (*OrderingHandler)(nil)
