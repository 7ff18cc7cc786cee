package security

import (
	"context"
	"log/slog"

	"github.com/webpilot-ai/webpilot/internal/task"
)

// Gate is the risk-assessment and confirmation checkpoint every action
// passes through before execution.
type Gate struct {
	validator *Validator
	confirmer *Confirmer
	auditor   *Auditor
	logger    *slog.Logger
}

// Decision is the gate's verdict on a single action.
type Decision struct {
	Authorized   bool
	Assessment   Assessment
	Confirmation ConfirmationResult
	// Err carries the denial reason when Authorized is false.
	Err error
}

// NewGate creates a security gate.
func NewGate(validator *Validator, confirmer *Confirmer, auditor *Auditor, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		validator: validator,
		confirmer: confirmer,
		auditor:   auditor,
		logger:    logger,
	}
}

// Auditor exposes the gate's auditor so the workflow can record execution
// outcomes against the same session trail.
func (g *Gate) Auditor() *Auditor {
	return g.auditor
}

// UpdateSettings swaps the confirmation settings and records the change.
func (g *Gate) UpdateSettings(ctx context.Context, settings Settings) {
	g.confirmer.UpdateSettings(settings)
	g.audit(ctx, AuditSettingsChanged, AuditLevelInfo,
		WithMessage("security settings updated"),
		WithDetails(map[string]any{"mode": string(settings.ConfirmationMode)}))
}

// Authorize assesses an action and, when required, obtains confirmation.
// Critical risk blocks unconditionally; denial and timeout both leave the
// action unauthorized.
func (g *Gate) Authorize(ctx context.Context, action *task.Action) Decision {
	assessment := g.validator.Assess(action)

	g.audit(ctx, AuditActionValidated, auditLevelFor(assessment.RiskLevel),
		WithAction(action.ID),
		WithRisk(assessment.RiskLevel, assessment.CategoryStrings()),
		WithMessage(Explain(assessment)))

	if assessment.Blocked {
		g.audit(ctx, AuditActionBlocked, AuditLevelCritical,
			WithAction(action.ID),
			WithRisk(assessment.RiskLevel, assessment.CategoryStrings()),
			WithMessage("action blocked: critical security risk"))
		g.logger.Warn("action blocked",
			"action_id", action.ID, "type", action.Type, "risk", assessment.RiskLevel)
		return Decision{
			Authorized:   false,
			Assessment:   assessment,
			Confirmation: ConfirmationDenied,
			Err:          ConfirmationDenied.asError(),
		}
	}

	if !assessment.RequiresConfirmation {
		return Decision{Authorized: true, Assessment: assessment, Confirmation: ConfirmationApproved}
	}

	g.audit(ctx, AuditConfirmationRequested, AuditLevelInfo,
		WithAction(action.ID),
		WithRisk(assessment.RiskLevel, assessment.CategoryStrings()))

	result, req := g.confirmer.Confirm(ctx, action, assessment)

	response := ""
	if req != nil {
		response = req.Response
	}
	g.audit(ctx, AuditConfirmationReceived, AuditLevelInfo,
		WithAction(action.ID),
		WithRisk(assessment.RiskLevel, assessment.CategoryStrings()),
		WithMessage(string(result)),
		WithDetails(map[string]any{"response": response}))

	if result != ConfirmationApproved {
		g.audit(ctx, AuditActionBlocked, AuditLevelWarning,
			WithAction(action.ID),
			WithRisk(assessment.RiskLevel, assessment.CategoryStrings()),
			WithMessage("action not approved: "+string(result)))
		return Decision{
			Authorized:   false,
			Assessment:   assessment,
			Confirmation: result,
			Err:          result.asError(),
		}
	}

	return Decision{Authorized: true, Assessment: assessment, Confirmation: result}
}

// RecordExecution appends the execution outcome of an authorized action to
// the audit trail.
func (g *Gate) RecordExecution(ctx context.Context, action *task.Action, success bool, errMsg string) {
	level := AuditLevelInfo
	details := map[string]any{"success": success}
	if !success {
		level = AuditLevelWarning
		details["error"] = errMsg
	}
	g.audit(ctx, AuditActionExecuted, level,
		WithAction(action.ID),
		WithDetails(details))
}

func (g *Gate) audit(ctx context.Context, eventType AuditEventType, level AuditLevel, opts ...AuditOption) {
	if g.auditor == nil {
		return
	}
	_ = g.auditor.Record(ctx, eventType, level, opts...)
}

func auditLevelFor(risk Risk) AuditLevel {
	switch risk {
	case RiskCritical:
		return AuditLevelCritical
	case RiskHigh:
		return AuditLevelWarning
	default:
		return AuditLevelInfo
	}
}
