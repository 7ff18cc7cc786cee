package decision

import (
	"fmt"
	"sort"
	"strings"

	"github.com/webpilot-ai/webpilot/internal/browser"
	"github.com/webpilot-ai/webpilot/internal/task"
)

const (
	maxTagTypes          = 10
	maxClickableDetails  = 5
	maxFormDetails       = 3
	maxLinkDetails       = 3
	textPreviewLen       = 300
	evalContentPreview   = 500
	recentActionsInModel = 3
)

// pageSummary condenses a page snapshot into the bounded text block fed to
// the model: URL, title, a tag histogram, and samples of the interactive
// surface. The bounds keep the prompt well inside the token limit regardless
// of page size.
func pageSummary(page *browser.PageContent) string {
	var parts []string

	parts = append(parts, "URL: "+page.URL)
	parts = append(parts, "Title: "+page.Title)

	counts := tagHistogram(page.Elements)
	if len(counts) > 0 {
		parts = append(parts, "Elements: "+formatHistogram(counts, maxTagTypes))
	}

	clickable := filterElements(page.Elements, func(e browser.Element) bool { return e.Clickable })
	if len(clickable) > 0 {
		parts = append(parts, fmt.Sprintf("Clickable elements: %d", len(clickable)))
		for _, el := range clickable[:min(len(clickable), maxClickableDetails)] {
			desc := "  " + el.Tag
			if el.Text != "" {
				desc += fmt.Sprintf(" '%s'", truncate(el.Text, 50))
			}
			if el.Selector != "" {
				desc += fmt.Sprintf(" (%s)", el.Selector)
			}
			parts = append(parts, desc)
		}
	}

	forms := filterElements(page.Elements, isFormElement)
	if len(forms) > 0 {
		parts = append(parts, fmt.Sprintf("Form elements: %d", len(forms)))
		for _, el := range forms[:min(len(forms), maxFormDetails)] {
			desc := "  " + el.Tag
			if t := el.Attributes["type"]; t != "" {
				desc += fmt.Sprintf(" type='%s'", t)
			}
			if n := el.Attributes["name"]; n != "" {
				desc += fmt.Sprintf(" name='%s'", n)
			}
			parts = append(parts, desc)
		}
	}

	links := filterElements(page.Elements, func(e browser.Element) bool {
		return e.Tag == "a" && e.Attributes["href"] != ""
	})
	if len(links) > 0 {
		parts = append(parts, fmt.Sprintf("Links: %d", len(links)))
		for _, el := range links[:min(len(links), maxLinkDetails)] {
			parts = append(parts, fmt.Sprintf("  '%s' -> %s",
				truncate(el.Text, 30), el.Attributes["href"]))
		}
	}

	if page.Text != "" {
		preview := strings.ReplaceAll(truncate(page.Text, textPreviewLen), "\n", " ")
		parts = append(parts, "Text preview: "+preview+"...")
	}

	return strings.Join(parts, "\n")
}

// contextSummary renders task progress, the current step, and the most
// recent actions for the model.
func contextSummary(t *task.Task, context map[string]any) string {
	var parts []string

	if t.Plan != nil {
		parts = append(parts, fmt.Sprintf("Task progress: %.1f%%", t.Plan.Progress()*100))
		if step := t.Plan.CurrentStep(); step != nil {
			parts = append(parts, "Current step: "+step.Description)
		}
	}

	if raw, ok := context["previous_actions"].([]map[string]any); ok && len(raw) > 0 {
		recent := raw
		if len(recent) > recentActionsInModel {
			recent = recent[len(recent)-recentActionsInModel:]
		}
		parts = append(parts, "Recent actions:")
		for _, a := range recent {
			actionType, _ := a["type"].(string)
			if actionType == "" {
				actionType = "unknown"
			}
			desc, _ := a["description"].(string)
			if desc == "" {
				desc = "N/A"
			}
			parts = append(parts, fmt.Sprintf("  - %s: %s", actionType, desc))
		}
	}

	if prefs, ok := context["user_preferences"]; ok {
		parts = append(parts, fmt.Sprintf("User preferences: %v", prefs))
	}

	if session, ok := context["session_info"].(map[string]any); ok {
		if loggedIn, ok := session["logged_in"]; ok {
			parts = append(parts, fmt.Sprintf("Logged in: %v", loggedIn))
		}
		if domain, ok := session["current_domain"]; ok {
			parts = append(parts, fmt.Sprintf("Domain: %v", domain))
		}
	}

	if len(parts) == 0 {
		return "No additional context available"
	}
	return strings.Join(parts, "\n")
}

func tagHistogram(elements []browser.Element) map[string]int {
	counts := make(map[string]int)
	for _, el := range elements {
		if el.Tag != "" {
			counts[el.Tag]++
		}
	}
	return counts
}

// formatHistogram renders the top-n tags by count, descending, with ties
// broken alphabetically so the output is stable.
func formatHistogram(counts map[string]int, n int) string {
	type tagCount struct {
		tag   string
		count int
	}
	sorted := make([]tagCount, 0, len(counts))
	for tag, count := range counts {
		sorted = append(sorted, tagCount{tag, count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].tag < sorted[j].tag
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	pairs := make([]string, 0, len(sorted))
	for _, tc := range sorted {
		pairs = append(pairs, fmt.Sprintf("%s:%d", tc.tag, tc.count))
	}
	return strings.Join(pairs, " ")
}

func filterElements(elements []browser.Element, keep func(browser.Element) bool) []browser.Element {
	var out []browser.Element
	for _, el := range elements {
		if keep(el) {
			out = append(out, el)
		}
	}
	return out
}

func isFormElement(e browser.Element) bool {
	switch e.Tag {
	case "input", "textarea", "select", "form", "button":
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
