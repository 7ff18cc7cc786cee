package handler

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/webpilot-ai/webpilot/internal/task"
)

// emailService describes one supported mail provider.
type emailService struct {
	name     string
	domains  []string
	entryURL string
}

var emailServices = []emailService{
	{name: "gmail", domains: []string{"mail.google.com", "gmail.com"}, entryURL: "https://mail.google.com"},
	{name: "outlook", domains: []string{"outlook.live.com", "outlook.com", "hotmail.com"}, entryURL: "https://outlook.live.com"},
	{name: "yahoo", domains: []string{"mail.yahoo.com"}, entryURL: "https://mail.yahoo.com"},
}

// detectEmailService matches a URL against the known provider domains.
func detectEmailService(url string) (emailService, bool) {
	lower := strings.ToLower(url)
	for _, svc := range emailServices {
		for _, domain := range svc.domains {
			if strings.Contains(lower, domain) {
				return svc, true
			}
		}
	}
	return emailService{}, false
}

// SpamAnalysis is the outcome of scoring one message.
type SpamAnalysis struct {
	IsSpam     bool     `json:"is_spam"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

var (
	spamKeywords = []string{
		"urgent", "act now", "limited time", "free money", "guaranteed",
		"no obligation", "risk free", "winner", "congratulations",
		"click here", "buy now", "order now", "lottery", "inheritance",
		"million dollars", "tax refund", "paypal suspended",
	}
	suspiciousMailDomains = []string{
		"tempmail", "10minutemail", "guerrillamail", "mailinator",
		"throwaway", "temp-mail", "fakeinbox",
	}
	spamSubjectPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\d+`),
		regexp.MustCompile(`[A-Z]{3,}`),
		regexp.MustCompile(`!!!+`),
		regexp.MustCompile(`(?i)\d+%\s*(off|discount)`),
		regexp.MustCompile(`(?i)(free|win|won)\s*(money|cash|\$)`),
	}
	suspiciousLocalPart = regexp.MustCompile(`^[a-z]{1,2}\d{4,}$`)
)

// AnalyzeSpam scores a message on subject keywords, sender shape and
// provider domain. Messages at or above 0.5 are classified spam.
func AnalyzeSpam(subject, senderEmail string) SpamAnalysis {
	var reasons []string
	score := 0.0

	subjectLower := strings.ToLower(subject)
	keywordHits := 0
	for _, kw := range spamKeywords {
		if strings.Contains(subjectLower, kw) {
			keywordHits++
		}
	}
	if keywordHits > 0 {
		score += float64(keywordHits) * 0.2
		reasons = append(reasons, fmt.Sprintf("%d spam keywords in subject", keywordHits))
	}

	local, domain, found := strings.Cut(strings.ToLower(senderEmail), "@")
	if found {
		for _, bad := range suspiciousMailDomains {
			if strings.Contains(domain, bad) {
				score += 0.4
				reasons = append(reasons, "sender uses a disposable mail domain")
				break
			}
		}
		digits := 0
		for _, r := range local {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if suspiciousLocalPart.MatchString(local) || digits > 4 {
			score += 0.3
			reasons = append(reasons, "suspicious sender address format")
		}
	}

	patternHits := 0
	for _, re := range spamSubjectPatterns {
		if re.MatchString(subject) {
			patternHits++
		}
	}
	if patternHits > 0 {
		score += float64(patternHits) * 0.15
		reasons = append(reasons, fmt.Sprintf("%d spam patterns in subject", patternHits))
	}

	confidence := score
	if confidence > 1.0 {
		confidence = 1.0
	}
	return SpamAnalysis{IsSpam: score >= 0.5, Confidence: confidence, Reasons: reasons}
}

// EmailHandler runs inbox management tasks: spam triage, organization and
// cleanup, against any of the supported providers.
type EmailHandler struct {
	runner Runner
	logger *slog.Logger
}

// NewEmailHandler creates the email task handler.
func NewEmailHandler(runner Runner, logger *slog.Logger) *EmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailHandler{runner: runner, logger: logger}
}

func (h *EmailHandler) ID() string { return "email" }

var emailTaskKeywords = []string{
	"email", "inbox", "spam", "delete emails", "organize emails",
	"clean inbox", "mail", "gmail", "outlook", "yahoo mail",
}

// CanHandle implements Handler.
func (h *EmailHandler) CanHandle(t *task.Task) bool {
	lower := strings.ToLower(t.Description)
	for _, kw := range emailTaskKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// classifyEmailTask maps a description onto one of the known email flows.
func classifyEmailTask(description string) string {
	lower := strings.ToLower(description)
	switch {
	case containsAny(lower, "spam", "junk", "unwanted"):
		return "spam_detection"
	case containsAny(lower, "organize", "sort", "folder"):
		return "email_organization"
	case containsAny(lower, "clean", "cleanup", "delete"):
		return "inbox_cleanup"
	default:
		return "general"
	}
}

// serviceForTask picks a provider from the description, defaulting to gmail.
func serviceForTask(description string) emailService {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "outlook") || strings.Contains(lower, "hotmail"):
		return emailServices[1]
	case strings.Contains(lower, "yahoo"):
		return emailServices[2]
	default:
		return emailServices[0]
	}
}

// Execute implements Handler. The handler seeds a provider-shaped plan and
// hands execution to the workflow; it never builds its own browser loop.
func (h *EmailHandler) Execute(ctx context.Context, t *task.Task) (map[string]any, error) {
	svc := serviceForTask(t.Description)
	taskType := classifyEmailTask(t.Description)
	h.logger.Info("email task accepted",
		"task_id", t.ID, "service", svc.name, "task_type", taskType)

	if t.Plan == nil {
		plan := task.NewPlan(t.ID)
		plan.Steps = append(plan.Steps,
			task.NewStep("Navigate to "+svc.entryURL, task.ActionNavigate,
				map[string]any{"url": svc.entryURL}),
			task.NewStep("Open the inbox folder", task.ActionClick, nil),
		)
		switch taskType {
		case "spam_detection":
			plan.Steps = append(plan.Steps,
				task.NewStep("Extract the list of inbox messages", task.ActionExtract, nil),
				task.NewStep("Mark messages classified as spam", task.ActionClick, nil),
			)
		case "email_organization":
			plan.Steps = append(plan.Steps,
				task.NewStep("Extract the list of inbox messages", task.ActionExtract, nil),
				task.NewStep("Move messages into matching folders", task.ActionClick, nil),
			)
		case "inbox_cleanup":
			plan.Steps = append(plan.Steps,
				task.NewStep("Extract the list of inbox messages", task.ActionExtract, nil),
				task.NewStep("Delete messages flagged for cleanup", task.ActionClick, nil),
			)
		default:
			plan.Steps = append(plan.Steps,
				task.NewStep("Extract an inbox summary", task.ActionExtract, nil),
			)
		}
		t.Plan = plan
	}

	rep, err := h.runner.Run(ctx, t)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"service":          svc.name,
		"task_type":        taskType,
		"status":           rep.Status.String(),
		"actions_executed": rep.ActionsExecuted,
		"completion":       rep.CompletionPercentage,
	}, nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var _ Handler = (*EmailHandler)(nil)
