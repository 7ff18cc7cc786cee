package recovery

import (
	"errors"
	"strings"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// ErrorType buckets failures into the families the strategy tables key on.
type ErrorType string

const (
	ErrorBrowser         ErrorType = "browser_error"
	ErrorAIModel         ErrorType = "ai_model_error"
	ErrorNetwork         ErrorType = "network_error"
	ErrorTask            ErrorType = "task_error"
	ErrorSecurity        ErrorType = "security_error"
	ErrorTimeout         ErrorType = "timeout_error"
	ErrorElementNotFound ErrorType = "element_not_found"
	ErrorAuthentication  ErrorType = "authentication_error"
	ErrorValidation      ErrorType = "validation_error"
	ErrorSystem          ErrorType = "system_error"
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return string(t)
}

// codeFamilies maps structured error codes onto error types. Codes not
// listed here fall through to message sniffing.
var codeFamilies = map[types.ErrorCode]ErrorType{
	types.BROWSER_ELEMENT_NOT_FOUND: ErrorElementNotFound,
	types.BROWSER_NOT_INTERACTABLE:  ErrorBrowser,
	types.BROWSER_NAVIGATION_FAILED: ErrorBrowser,
	types.BROWSER_DRIVER_FAULT:      ErrorBrowser,
	types.BROWSER_EXTRACTION_FAILED: ErrorBrowser,
	types.BROWSER_SCREENSHOT_FAILED: ErrorBrowser,

	types.MODEL_UNAVAILABLE:  ErrorAIModel,
	types.MODEL_CALL_FAILED:  ErrorAIModel,
	types.MODEL_PARSE_FAILED: ErrorAIModel,
	types.MODEL_TOKEN_LIMIT:  ErrorAIModel,
	types.MODEL_AUTH_FAILED:  ErrorAuthentication,

	types.TASK_NOT_FOUND:          ErrorTask,
	types.TASK_INVALID_TRANSITION: ErrorTask,
	types.TASK_PLAN_INVALID:       ErrorValidation,
	types.TASK_BUDGET_EXHAUSTED:   ErrorTask,
	types.TASK_CANCELLED:          ErrorTask,

	types.SECURITY_ACTION_BLOCKED:      ErrorSecurity,
	types.SECURITY_CONFIRMATION_DENIED: ErrorSecurity,
	types.SECURITY_AUDIT_FAILED:        ErrorSecurity,

	types.CONFIG_LOAD_FAILED:       ErrorValidation,
	types.CONFIG_VALIDATION_FAILED: ErrorValidation,

	types.STORE_OPEN_FAILED:  ErrorSystem,
	types.STORE_READ_FAILED:  ErrorSystem,
	types.STORE_WRITE_FAILED: ErrorSystem,
	types.STORE_CORRUPT:      ErrorSystem,
}

// Classify determines the error type from a structured error code when
// present, otherwise by sniffing the message.
func Classify(err error) ErrorType {
	var agentErr *types.AgentError
	if errors.As(err, &agentErr) {
		if family, ok := codeFamilies[agentErr.Code]; ok {
			return family
		}
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "timeout") || strings.Contains(message, "deadline"):
		return ErrorTimeout
	case strings.Contains(message, "network") || strings.Contains(message, "connection"):
		return ErrorNetwork
	case strings.Contains(message, "element"):
		return ErrorElementNotFound
	case strings.Contains(message, "auth"):
		return ErrorAuthentication
	case strings.Contains(message, "validation"):
		return ErrorValidation
	}
	return ErrorSystem
}
