package security

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/types"
	"github.com/webpilot-ai/webpilot/internal/ui"
)

// ConfirmationResult is the outcome of a confirmation request.
type ConfirmationResult string

const (
	ConfirmationApproved ConfirmationResult = "approved"
	ConfirmationDenied   ConfirmationResult = "denied"
	ConfirmationTimeout  ConfirmationResult = "timeout"
	ConfirmationError    ConfirmationResult = "error"
)

// ConfirmationRequest carries one action through the confirmation flow.
type ConfirmationRequest struct {
	ID         string
	Action     *task.Action
	Assessment Assessment
	Timestamp  time.Time
	Timeout    time.Duration
	Result     ConfirmationResult
	Response   string
}

// Confirmer obtains human confirmation for destructive actions through the
// configured channel and mode. A nil channel never blocks: prompts resolve
// to Denied immediately.
type Confirmer struct {
	mu       sync.Mutex
	settings Settings
	channel  ui.Channel
	batch    []*ConfirmationRequest
}

// NewConfirmer creates a Confirmer. channel may be nil for the
// no-channel-configured mode.
func NewConfirmer(settings Settings, channel ui.Channel) *Confirmer {
	if !settings.ConfirmationMode.IsValid() {
		settings.ConfirmationMode = ModeInteractive
	}
	if settings.MaxBatchSize <= 0 {
		settings.MaxBatchSize = 10
	}
	return &Confirmer{settings: settings, channel: channel}
}

// UpdateSettings swaps the active settings.
func (c *Confirmer) UpdateSettings(settings Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = settings
}

// Settings returns the active settings.
func (c *Confirmer) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Confirm resolves an assessment into a confirmation result: auto
// approve/deny rules first, then the configured prompt mode.
func (c *Confirmer) Confirm(ctx context.Context, action *task.Action, assessment Assessment) (ConfirmationResult, *ConfirmationRequest) {
	c.mu.Lock()
	settings := c.settings
	c.mu.Unlock()

	if settings.ShouldAutoApprove(assessment) {
		return ConfirmationApproved, nil
	}
	if settings.ShouldAutoDeny(assessment) {
		return ConfirmationDenied, nil
	}
	if !settings.NeedsPrompt(assessment) {
		return ConfirmationApproved, nil
	}

	req := &ConfirmationRequest{
		ID:         fmt.Sprintf("conf_%s_%s", time.Now().Format("20060102_150405"), action.ID),
		Action:     action,
		Assessment: assessment,
		Timestamp:  time.Now(),
		Timeout:    settings.DefaultTimeout,
	}

	if c.channel == nil {
		// No channel configured; destructive work cannot be approved blind.
		req.Result = ConfirmationDenied
		req.Response = "no channel configured"
		return ConfirmationDenied, req
	}

	if settings.ConfirmationMode == ModeBatch {
		return c.confirmBatch(ctx, req), req
	}
	return c.confirmInteractive(ctx, req), req
}

func (c *Confirmer) confirmInteractive(ctx context.Context, req *ConfirmationRequest) ConfirmationResult {
	prompt := buildConfirmationPrompt(req)
	response, err := c.channel.Prompt(ctx, prompt, []string{"yes", "no"}, req.Timeout)
	if err != nil {
		if err == context.DeadlineExceeded {
			req.Result = ConfirmationTimeout
			return ConfirmationTimeout
		}
		req.Result = ConfirmationError
		req.Response = fmt.Sprintf("error: %v", err)
		return ConfirmationError
	}
	req.Response = response
	req.Result = parseResponse(response)
	return req.Result
}

// confirmBatch queues the request; once the batch is full every queued
// action is confirmed with a single prompt and all requests share the
// answer. Partially filled batches resolve through FlushBatch.
func (c *Confirmer) confirmBatch(ctx context.Context, req *ConfirmationRequest) ConfirmationResult {
	c.mu.Lock()
	c.batch = append(c.batch, req)
	full := len(c.batch) >= c.settings.MaxBatchSize
	c.mu.Unlock()

	if full {
		return c.FlushBatch(ctx)
	}
	// Queued; approval is provisional until the batch flushes.
	req.Result = ConfirmationApproved
	return ConfirmationApproved
}

// FlushBatch prompts for all queued batch requests at once.
func (c *Confirmer) FlushBatch(ctx context.Context) ConfirmationResult {
	c.mu.Lock()
	pending := c.batch
	c.batch = nil
	timeout := c.settings.DefaultTimeout
	c.mu.Unlock()

	if len(pending) == 0 {
		return ConfirmationApproved
	}
	if c.channel == nil {
		for _, req := range pending {
			req.Result = ConfirmationDenied
		}
		return ConfirmationDenied
	}

	prompt := buildBatchPrompt(pending)
	response, err := c.channel.Prompt(ctx, prompt, []string{"yes", "no"}, timeout)
	result := ConfirmationError
	if err == nil {
		result = parseResponse(response)
	} else if err == context.DeadlineExceeded {
		result = ConfirmationTimeout
	}
	for _, req := range pending {
		req.Result = result
		req.Response = response
	}
	return result
}

// parseResponse classifies a free-text reply. Anything unrecognized defaults
// to Denied.
func parseResponse(response string) ConfirmationResult {
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "yes", "y", "approve", "ok", "proceed", "1", "true":
		return ConfirmationApproved
	case "no", "n", "deny", "cancel", "abort", "0", "false":
		return ConfirmationDenied
	default:
		return ConfirmationDenied
	}
}

func buildConfirmationPrompt(req *ConfirmationRequest) string {
	var b strings.Builder
	b.WriteString("SECURITY CONFIRMATION REQUIRED\n\n")
	fmt.Fprintf(&b, "Action: %s\n", strings.ToUpper(req.Action.Type.String()))
	fmt.Fprintf(&b, "Target: %s\n", req.Action.Target)
	if req.Action.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", req.Action.Description)
	}
	fmt.Fprintf(&b, "\nRisk Level: %s\n", strings.ToUpper(string(req.Assessment.RiskLevel)))
	if len(req.Assessment.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(req.Assessment.CategoryStrings(), ", "))
	}
	if len(req.Assessment.Reasons) > 0 {
		b.WriteString("\nSecurity Concerns:\n")
		for _, r := range req.Assessment.Reasons {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	if len(req.Action.Parameters) > 0 {
		b.WriteString("\nParameters:\n")
		for key, value := range req.Action.Parameters {
			fmt.Fprintf(&b, "  %s: %s\n", key, maskSensitive(key, value))
		}
	}
	b.WriteString("\nDo you want to proceed with this action?")
	return b.String()
}

func buildBatchPrompt(reqs []*ConfirmationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BATCH CONFIRMATION REQUIRED (%d actions)\n\n", len(reqs))
	for i, req := range reqs {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1,
			strings.ToUpper(req.Action.Type.String()), req.Action.Target)
		fmt.Fprintf(&b, "   Risk: %s", strings.ToUpper(string(req.Assessment.RiskLevel)))
		if len(req.Assessment.Categories) > 0 {
			fmt.Fprintf(&b, " | Categories: %s", strings.Join(req.Assessment.CategoryStrings(), ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nDo you want to approve ALL these actions?")
	return b.String()
}

func maskSensitive(key string, value any) string {
	switch strings.ToLower(key) {
	case "password", "token", "key":
		return "[HIDDEN]"
	}
	s := fmt.Sprintf("%v", value)
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}

// asError converts a non-approved result into an error the workflow can route
// through the error handler.
func (r ConfirmationResult) asError() error {
	switch r {
	case ConfirmationApproved:
		return nil
	case ConfirmationTimeout:
		return types.NewRetryableError(types.SECURITY_CONFIRMATION_DENIED, "confirmation timed out")
	default:
		return types.NewError(types.SECURITY_CONFIRMATION_DENIED, "confirmation denied")
	}
}
