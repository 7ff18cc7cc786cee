package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for agent errors.
type ErrorCode string

// Browser error codes
const (
	BROWSER_NAVIGATION_FAILED  ErrorCode = "BROWSER_NAVIGATION_FAILED"
	BROWSER_ELEMENT_NOT_FOUND  ErrorCode = "BROWSER_ELEMENT_NOT_FOUND"
	BROWSER_NOT_INTERACTABLE   ErrorCode = "BROWSER_NOT_INTERACTABLE"
	BROWSER_DRIVER_FAULT       ErrorCode = "BROWSER_DRIVER_FAULT"
	BROWSER_EXTRACTION_FAILED  ErrorCode = "BROWSER_EXTRACTION_FAILED"
	BROWSER_SCREENSHOT_FAILED  ErrorCode = "BROWSER_SCREENSHOT_FAILED"
)

// AI model error codes
const (
	MODEL_UNAVAILABLE    ErrorCode = "MODEL_UNAVAILABLE"
	MODEL_CALL_FAILED    ErrorCode = "MODEL_CALL_FAILED"
	MODEL_PARSE_FAILED   ErrorCode = "MODEL_PARSE_FAILED"
	MODEL_TOKEN_LIMIT    ErrorCode = "MODEL_TOKEN_LIMIT"
	MODEL_AUTH_FAILED    ErrorCode = "MODEL_AUTH_FAILED"
)

// Task lifecycle error codes
const (
	TASK_NOT_FOUND          ErrorCode = "TASK_NOT_FOUND"
	TASK_INVALID_TRANSITION ErrorCode = "TASK_INVALID_TRANSITION"
	TASK_PLAN_INVALID       ErrorCode = "TASK_PLAN_INVALID"
	TASK_BUDGET_EXHAUSTED   ErrorCode = "TASK_BUDGET_EXHAUSTED"
	TASK_CANCELLED          ErrorCode = "TASK_CANCELLED"
)

// Security error codes
const (
	SECURITY_ACTION_BLOCKED     ErrorCode = "SECURITY_ACTION_BLOCKED"
	SECURITY_CONFIRMATION_DENIED ErrorCode = "SECURITY_CONFIRMATION_DENIED"
	SECURITY_AUDIT_FAILED       ErrorCode = "SECURITY_AUDIT_FAILED"
)

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Storage error codes
const (
	STORE_OPEN_FAILED  ErrorCode = "STORE_OPEN_FAILED"
	STORE_READ_FAILED  ErrorCode = "STORE_READ_FAILED"
	STORE_WRITE_FAILED ErrorCode = "STORE_WRITE_FAILED"
	STORE_CORRUPT      ErrorCode = "STORE_CORRUPT"
)

// Recovery error codes
const (
	RECOVERY_EXHAUSTED       ErrorCode = "RECOVERY_EXHAUSTED"
	RECOVERY_RETRY_EXCEEDED  ErrorCode = "RECOVERY_RETRY_EXCEEDED"
	RECOVERY_RESTART_FAILED  ErrorCode = "RECOVERY_RESTART_FAILED"
)

// AgentError represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for recovery-strategy selection.
type AgentError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *AgentError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
func (e *AgentError) Is(target error) bool {
	var agentErr *AgentError
	if errors.As(target, &agentErr) {
		return e.Code == agentErr.Code
	}
	return false
}

// NewError creates a new non-retryable AgentError with the given code and message.
func NewError(code ErrorCode, message string) *AgentError {
	return &AgentError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewRetryableError creates a new retryable AgentError with the given code and message.
// Use this for transient errors that may succeed on retry (e.g., element timing).
func NewRetryableError(code ErrorCode, message string) *AgentError {
	return &AgentError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     nil,
	}
}

// WrapError creates a new non-retryable AgentError that wraps an existing error.
func WrapError(code ErrorCode, message string, cause error) *AgentError {
	return &AgentError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// WrapRetryableError creates a retryable AgentError that wraps an existing error.
func WrapRetryableError(code ErrorCode, message string, cause error) *AgentError {
	return &AgentError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}
