package escalate

// Reason names why the engine is asking a human for help.
type Reason string

const (
	ReasonUnresolvableError      Reason = "unresolvable_error"
	ReasonSecurityConcern        Reason = "security_concern"
	ReasonAmbiguousInstruction   Reason = "ambiguous_instruction"
	ReasonMultipleOptions        Reason = "multiple_options"
	ReasonAuthenticationRequired Reason = "authentication_required"
	ReasonDestructiveAction      Reason = "destructive_action"
	ReasonTaskClarification      Reason = "task_clarification"
	ReasonTechnicalLimitation    Reason = "technical_limitation"
	ReasonUnexpectedScenario     Reason = "unexpected_scenario"
	ReasonUserPreferenceNeeded   Reason = "user_preference_needed"
)

// String returns the string representation of the reason.
func (r Reason) String() string {
	return string(r)
}

// Priority grades the urgency of an escalation. Higher priority shortens the
// response timeout.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// timeoutMultipliers scale the base escalation timeout per priority. Urgent
// questions get less waiting, not more.
var timeoutMultipliers = map[Priority]float64{
	PriorityCritical: 0.5,
	PriorityHigh:     0.7,
	PriorityMedium:   1.0,
	PriorityLow:      2.0,
}

// Response classifies what the user asked the engine to do.
type Response string

const (
	ResponseContinue        Response = "continue"
	ResponseRetry           Response = "retry"
	ResponseSkip            Response = "skip"
	ResponseAbort           Response = "abort"
	ResponseModify          Response = "modify"
	ResponseManualTakeover  Response = "manual_takeover"
	ResponseProvideGuidance Response = "provide_guidance"
)

// String returns the string representation of the response.
func (r Response) String() string {
	return string(r)
}

// IsResolved reports whether the response settles the escalation without
// further negotiation.
func (r Response) IsResolved() bool {
	switch r {
	case ResponseContinue, ResponseRetry, ResponseSkip, ResponseAbort:
		return true
	}
	return false
}

// ShouldContinue reports whether execution may proceed after this response.
func (r Response) ShouldContinue() bool {
	return r != ResponseAbort && r != ResponseManualTakeover
}

// template shapes the message shown for a reason.
type template struct {
	title             string
	body              string
	defaultOptions    []string
	requiresImmediate bool
}

var templates = map[Reason]template{
	ReasonUnresolvableError: {
		title:          "Unresolvable Error Encountered",
		body:           "I encountered an error that I cannot resolve automatically:\n\n%s\n\nHow would you like me to proceed?",
		defaultOptions: []string{"Retry", "Skip this step", "Abort task", "Try alternative approach"},
	},
	ReasonSecurityConcern: {
		title:             "Security Concern Detected",
		body:              "I detected a potential security concern:\n\n%s\n\nThis action may be risky. How should I proceed?",
		defaultOptions:    []string{"Proceed with caution", "Skip this action", "Abort task", "Request manual review"},
		requiresImmediate: true,
	},
	ReasonAmbiguousInstruction: {
		title: "Instruction Clarification Needed",
		body:  "The instruction is ambiguous and I need clarification:\n\n%s\n\nWhich interpretation is correct?",
	},
	ReasonMultipleOptions: {
		title: "Multiple Valid Options Available",
		body:  "I found multiple valid options for this step:\n\n%s\n\nWhich option would you prefer?",
	},
	ReasonAuthenticationRequired: {
		title:             "Authentication Required",
		body:              "Authentication is required to continue:\n\n%s\n\nPlease provide authentication or guidance on how to proceed.",
		defaultOptions:    []string{"Provide credentials", "Skip authentication", "Use alternative method", "Manual login"},
		requiresImmediate: true,
	},
	ReasonDestructiveAction: {
		title:             "Destructive Action Confirmation",
		body:              "I'm about to perform a potentially destructive action:\n\n%s\n\nThis action cannot be undone. Do you want me to proceed?",
		defaultOptions:    []string{"Proceed", "Cancel", "Modify action", "Manual review"},
		requiresImmediate: true,
	},
	ReasonTaskClarification: {
		title:          "Task Clarification Needed",
		body:           "I need clarification about the task:\n\n%s\n\nPlease provide guidance.",
		defaultOptions: []string{"Confirm understanding", "Provide correction", "Modify task", "Start over"},
	},
	ReasonTechnicalLimitation: {
		title:          "Technical Limitation Encountered",
		body:           "I encountered a technical limitation:\n\n%s\n\nHow would you like to proceed?",
		defaultOptions: []string{"Try workaround", "Skip this step", "Manual intervention", "Abort task"},
	},
	ReasonUnexpectedScenario: {
		title:          "Unexpected Scenario",
		body:           "I encountered an unexpected scenario:\n\n%s\n\nThis wasn't anticipated in the original plan. How should I handle this?",
		defaultOptions: []string{"Adapt and continue", "Seek guidance", "Revert to safe state", "Manual takeover"},
	},
	ReasonUserPreferenceNeeded: {
		title: "User Preference Required",
		body:  "I need your preference for this decision:\n\n%s",
	},
}

// noChannelFallbacks is the static decision table used when no user channel
// is configured: risky reasons stop, recoverable ones are skipped, the rest
// proceed.
var noChannelFallbacks = map[Reason]Response{
	ReasonSecurityConcern:        ResponseAbort,
	ReasonDestructiveAction:      ResponseAbort,
	ReasonAuthenticationRequired: ResponseSkip,
	ReasonUnresolvableError:      ResponseSkip,
	ReasonTechnicalLimitation:    ResponseSkip,
}
