package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/webpilot-ai/webpilot/internal/task"
)

// Pattern sets for detecting risky content in targets, parameters, and
// descriptions. Matching is case-insensitive.
var (
	paymentPatterns = compileAll(
		`\b(pay|payment|checkout|purchase|buy|order|cart)\b`,
		`\b(credit|debit|card|visa|mastercard|amex)\b`,
		`\b(billing|invoice|total|amount|price|cost)\b`,
		`\$\d+|\d+\.\d{2}\b|\bUSD\b|\bEUR\b|\bRUB\b`,
	)
	deletionPatterns = compileAll(
		`\b(delete|remove|clear|erase|destroy)\b`,
		`\b(trash|bin|recycle)\b`,
	)
	modificationPatterns = compileAll(
		`\b(edit|modify|change|update|alter)\b`,
		`\b(settings|preferences|config|profile)\b`,
		`\b(password|email|phone|address)\b`,
	)
	authPatterns = compileAll(
		`\b(login|logout|signin|signout|authenticate)\b`,
		`\b(username|password|token|session)\b`,
		`\b(register|signup|create account)\b`,
	)
	submissionPatterns = compileAll(
		`\b(submit|send|post|confirm|apply)\b`,
		`\b(form|application|request)\b`,
	)
	filePatterns = compileAll(
		`\b(download|upload|attach|file)\b`,
		`\.(exe|bat|sh|cmd|msi|dmg|pkg)`,
	)

	// Shapes that are always Critical when they appear in typed text.
	creditCardPattern = regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)
	ssnPattern        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// highRiskDomains are substrings of hostnames that force High risk on
// navigation targets.
var highRiskDomains = []string{
	"banking", "bank", "paypal", "stripe", "payment",
	"admin", "administrator", "control", "management",
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Validator assesses the security risk of candidate actions. It is a pure
// function of (action); the gate combines it with confirmation and audit.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Assess validates an action and grades its risk. The final level is the
// maximum across the type, target, parameter, and description checks;
// Critical risk is always blocking.
func (v *Validator) Assess(action *task.Action) Assessment {
	var categories []Category
	var reasons []string
	risk := RiskSafe

	typeRisk, typeReasons := v.assessActionType(action)
	risk = MaxRisk(risk, typeRisk)
	reasons = append(reasons, typeReasons...)

	targetRisk, targetCats, targetReasons := v.assessTarget(action)
	risk = MaxRisk(risk, targetRisk)
	categories = append(categories, targetCats...)
	reasons = append(reasons, targetReasons...)

	paramRisk, paramCats, paramReasons := v.assessParameters(action)
	risk = MaxRisk(risk, paramRisk)
	categories = append(categories, paramCats...)
	reasons = append(reasons, paramReasons...)

	descRisk, descCats, descReasons := v.assessDescription(action)
	risk = MaxRisk(risk, descRisk)
	categories = append(categories, descCats...)
	reasons = append(reasons, descReasons...)

	if action.Destructive && !risk.AtLeast(RiskHigh) {
		risk = RiskHigh
		reasons = append(reasons, "action is explicitly marked as destructive")
	}

	categories = dedupeCategories(categories)

	return Assessment{
		RiskLevel:            risk,
		Categories:           categories,
		Reasons:              reasons,
		RequiresConfirmation: v.requiresConfirmation(risk, categories),
		Blocked:              risk == RiskCritical,
	}
}

func (v *Validator) assessActionType(action *task.Action) (Risk, []string) {
	switch action.Type {
	case task.ActionSubmit:
		return RiskHigh, []string{fmt.Sprintf("action type %q is inherently risky", action.Type)}
	case task.ActionNavigate, task.ActionScroll, task.ActionWait, task.ActionExtract,
		task.ActionScreenshot, task.ActionHover:
		return RiskSafe, nil
	case task.ActionClick, task.ActionInput, task.ActionSelect:
		return RiskLow, []string{fmt.Sprintf("interactive action type %q requires caution", action.Type)}
	}
	return RiskSafe, nil
}

func (v *Validator) assessTarget(action *task.Action) (Risk, []Category, []string) {
	var categories []Category
	var reasons []string
	risk := RiskSafe

	target := strings.ToLower(action.Target)
	if target == "" {
		return risk, categories, reasons
	}

	if anyMatch(paymentPatterns, target) {
		categories = append(categories, CategoryPayment)
		reasons = append(reasons, "target contains payment-related keywords")
		risk = MaxRisk(risk, RiskHigh)
	}
	if anyMatch(deletionPatterns, target) {
		categories = append(categories, CategoryDeletion)
		reasons = append(reasons, "target contains deletion-related keywords")
		risk = MaxRisk(risk, RiskHigh)
	}
	if anyMatch(modificationPatterns, target) {
		categories = append(categories, CategoryModification)
		reasons = append(reasons, "target contains modification-related keywords")
		risk = MaxRisk(risk, RiskMedium)
	}
	if anyMatch(authPatterns, target) {
		categories = append(categories, CategoryAuthentication)
		reasons = append(reasons, "target contains authentication-related keywords")
		risk = MaxRisk(risk, RiskMedium)
	}
	if anyMatch(filePatterns, target) {
		categories = append(categories, CategoryDownload)
		reasons = append(reasons, "target contains file operation keywords")
		risk = MaxRisk(risk, RiskMedium)
	}

	if action.Type == task.ActionNavigate {
		if parsed, err := url.Parse(action.Target); err == nil {
			host := strings.ToLower(parsed.Host)
			for _, domain := range highRiskDomains {
				if strings.Contains(host, domain) {
					categories = append(categories, CategoryNavigation)
					reasons = append(reasons, "navigation to high-risk domain")
					risk = MaxRisk(risk, RiskHigh)
					break
				}
			}
		}
	}

	return risk, categories, reasons
}

func (v *Validator) assessParameters(action *task.Action) (Risk, []Category, []string) {
	var categories []Category
	var reasons []string
	risk := RiskSafe

	if len(action.Parameters) == 0 {
		return risk, categories, reasons
	}

	if raw, ok := action.Parameters["text"]; ok {
		text := strings.ToLower(fmt.Sprintf("%v", raw))

		if anyMatch(paymentPatterns, text) {
			categories = append(categories, CategoryPayment)
			reasons = append(reasons, "text input contains payment-related information")
			risk = RiskCritical
		}
		if creditCardPattern.MatchString(text) {
			categories = append(categories, CategoryPayment)
			reasons = append(reasons, "text input contains potential credit card number")
			risk = RiskCritical
		}
		if ssnPattern.MatchString(text) {
			categories = append(categories, CategoryModification)
			reasons = append(reasons, "text input contains potential SSN")
			risk = RiskCritical
		}
	}

	if _, ok := action.Parameters["file"]; ok {
		categories = append(categories, CategoryUpload)
		reasons = append(reasons, "action involves file upload")
		risk = MaxRisk(risk, RiskMedium)
	} else if _, ok := action.Parameters["filename"]; ok {
		categories = append(categories, CategoryUpload)
		reasons = append(reasons, "action involves file upload")
		risk = MaxRisk(risk, RiskMedium)
	}

	return risk, categories, reasons
}

func (v *Validator) assessDescription(action *task.Action) (Risk, []Category, []string) {
	var categories []Category
	var reasons []string
	risk := RiskSafe

	if action.Description == "" {
		return risk, categories, reasons
	}
	description := strings.ToLower(action.Description)

	if anyMatch(paymentPatterns, description) {
		categories = append(categories, CategoryPayment)
		reasons = append(reasons, "description contains payment-related keywords")
		risk = MaxRisk(risk, RiskHigh)
	}
	if anyMatch(deletionPatterns, description) {
		categories = append(categories, CategoryDeletion)
		reasons = append(reasons, "description contains deletion-related keywords")
		risk = MaxRisk(risk, RiskHigh)
	}
	if anyMatch(submissionPatterns, description) {
		categories = append(categories, CategorySubmission)
		reasons = append(reasons, "description contains submission-related keywords")
		risk = MaxRisk(risk, RiskMedium)
	}

	return risk, categories, reasons
}

// requiresConfirmation: High/Critical always confirm; payment, deletion, and
// authentication categories confirm regardless of numeric risk.
func (v *Validator) requiresConfirmation(risk Risk, categories []Category) bool {
	if risk.AtLeast(RiskHigh) {
		return true
	}
	for _, cat := range categories {
		switch cat {
		case CategoryPayment, CategoryDeletion, CategoryAuthentication:
			return true
		}
	}
	return false
}

// IsSensitiveDomain reports whether the URL's host matches one of the
// high-risk domain substrings. Decision confidence is discounted on such
// domains.
func IsSensitiveDomain(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Host)
	if host == "" {
		host = strings.ToLower(rawURL)
	}
	for _, domain := range highRiskDomains {
		if strings.Contains(host, domain) {
			return true
		}
	}
	return false
}

func dedupeCategories(in []Category) []Category {
	seen := make(map[Category]bool, len(in))
	out := make([]Category, 0, len(in))
	for _, c := range in {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Explain renders a human-readable explanation of an assessment.
func Explain(a Assessment) string {
	if a.IsSafe() {
		return "This action is considered safe and can be executed automatically."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Risk Level: %s\n", strings.ToUpper(string(a.RiskLevel)))
	if len(a.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(a.CategoryStrings(), ", "))
	}
	if len(a.Reasons) > 0 {
		b.WriteString("Reasons:\n")
		for _, r := range a.Reasons {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	if a.RequiresConfirmation {
		b.WriteString("\nThis action requires user confirmation before execution.")
	}
	if a.Blocked {
		b.WriteString("\nThis action is blocked due to critical security risk.")
	}
	return strings.TrimSpace(b.String())
}
