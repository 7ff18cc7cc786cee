package planner

import (
	"regexp"
	"strings"

	"github.com/webpilot-ai/webpilot/internal/task"
)

// taskPattern maps a family of task descriptions onto a canned step
// sequence. Targets are generic placeholders resolved from the description.
type taskPattern struct {
	name     string
	patterns []*regexp.Regexp
	steps    []patternStep
}

type patternStep struct {
	action      task.ActionType
	target      string
	description string
}

var taskPatterns = []taskPattern{
	{
		name: "email_management",
		patterns: compilePatterns(
			`(?i).*check.*email.*`,
			`(?i).*delete.*spam.*`,
			`(?i).*organize.*inbox.*`,
			`(?i).*read.*email.*`,
		),
		steps: []patternStep{
			{task.ActionNavigate, "email_service", "Navigate to email service"},
			{task.ActionWait, "page_load", "Wait for page to load"},
			{task.ActionExtract, "email_list", "Extract email list"},
			{task.ActionClick, "email_item", "Select emails to process"},
		},
	},
	{
		name: "online_ordering",
		patterns: compilePatterns(
			`(?i).*order.*food.*`,
			`(?i).*buy.*online.*`,
			`(?i).*purchase.*`,
			`(?i).*add.*cart.*`,
		),
		steps: []patternStep{
			{task.ActionNavigate, "shopping_site", "Navigate to shopping website"},
			{task.ActionInput, "search_box", "Search for items"},
			{task.ActionClick, "product", "Select product"},
			{task.ActionClick, "add_to_cart", "Add to cart"},
			{task.ActionNavigate, "checkout", "Proceed to checkout"},
		},
	},
	{
		name: "web_navigation",
		patterns: compilePatterns(
			`(?i).*go.*to.*`,
			`(?i).*visit.*`,
			`(?i).*navigate.*`,
			`(?i).*open.*website.*`,
			`(?i).*open.*`,
			`(?i).*load.*`,
			`(?i).*browse.*`,
		),
		steps: []patternStep{
			{task.ActionNavigate, "url", "Navigate to specified URL"},
			{task.ActionWait, "page_load", "Wait for page to load"},
			{task.ActionExtract, "page_content", "Extract page content"},
		},
	},
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

var (
	urlPattern    = regexp.MustCompile(`https?://\S+`)
	domainPattern = regexp.MustCompile(`(?:[a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}`)
)

// knownSites maps site-name tokens in a description onto canonical URLs.
var knownSites = []struct {
	token string
	url   string
}{
	// gmail before google: "gmail" contains no "google" but check order
	// still matters for descriptions naming both.
	{"gmail", "https://mail.google.com"},
	{"google", "https://www.google.com"},
	{"youtube", "https://www.youtube.com"},
	{"facebook", "https://www.facebook.com"},
	{"github", "https://www.github.com"},
	{"stackoverflow", "https://stackoverflow.com"},
	{"stack overflow", "https://stackoverflow.com"},
	{"reddit", "https://www.reddit.com"},
	{"wikipedia", "https://www.wikipedia.org"},
	{"twitter", "https://www.twitter.com"},
	{"linkedin", "https://www.linkedin.com"},
}

// resolveTarget turns a generic pattern target into a concrete URL where the
// description names one: explicit URLs first, then bare domains, then known
// site names.
func resolveTarget(description, genericTarget, patternName string) string {
	if patternName != "web_navigation" || genericTarget != "url" {
		return genericTarget
	}
	if url := ExtractURL(description); url != "" {
		return url
	}
	lower := strings.ToLower(description)
	for _, site := range knownSites {
		if strings.Contains(lower, site.token) {
			return site.url
		}
	}
	return genericTarget
}

// ExtractURL finds an explicit URL or bare domain in free text, normalizing
// bare domains onto https.
func ExtractURL(text string) string {
	if url := urlPattern.FindString(text); url != "" {
		return url
	}
	if domain := domainPattern.FindString(text); domain != "" {
		return "https://www." + domain
	}
	return ""
}

// fallbackHints lists recovery hints per failure scenario, attached to the
// plan for diagnostics.
var fallbackHints = map[string][]string{
	"element_not_found": {
		"Try alternative selectors (ID, class, xpath)",
		"Wait longer for element to appear",
		"Scroll to make element visible",
		"Refresh page and retry",
	},
	"page_load_timeout": {
		"Increase wait time",
		"Check network connection",
		"Try alternative URL or route",
		"Refresh and retry",
	},
	"authentication_required": {
		"Check for login prompts",
		"Use stored credentials if available",
		"Request user authentication",
		"Try alternative access method",
	},
	"form_submission_failed": {
		"Validate form fields",
		"Check for required fields",
		"Try alternative submission method",
		"Clear and refill form",
	},
}
