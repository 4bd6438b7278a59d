package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents how the process reacts to an error.
type ErrorClass string

const (
	// ErrorClassFatal terminates the run. The process exits with status 1.
	ErrorClassFatal ErrorClass = "fatal"

	// ErrorClassRecoverable is logged and the run continues with a fallback.
	ErrorClassRecoverable ErrorClass = "recoverable"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code identifies the condition for programmatic handling.
	Code string `json:"code,omitempty"`

	// Group is the setup group being processed, if applicable.
	Group string `json:"group,omitempty"`

	// Step is the step being processed, if applicable.
	Step string `json:"step,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	switch {
	case e.Group != "" && e.Step != "":
		msg = fmt.Sprintf("%s (step=%s.%s)", msg, e.Group, e.Step)
	case e.Group != "":
		msg = fmt.Sprintf("%s (group=%s)", msg, e.Group)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Class, msg, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewFatalError creates a new fatal error.
func NewFatalError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassFatal,
		Message: message,
		Err:     err,
	}
}

// NewRecoverableError creates a new recoverable error.
func NewRecoverableError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassRecoverable,
		Message: message,
		Err:     err,
	}
}

// WithGroup adds group context to an error.
func (e *EngineError) WithGroup(group string) *EngineError {
	e.Group = group
	return e
}

// WithStep adds step context to an error.
func (e *EngineError) WithStep(step string) *EngineError {
	e.Step = step
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsFatal returns true if the error is classified as fatal.
func IsFatal(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassFatal
	}
	return false
}

// ErrorCode returns the code of the first EngineError in the chain.
func ErrorCode(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ExitCode maps a run error to the process exit status: 0 for success
// (including a declined confirmation), 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Error codes.
const (
	ErrCodeSetupNotFound     = "SETUP_NOT_FOUND"
	ErrCodeSetupInvalid      = "SETUP_INVALID"
	ErrCodeUnknownStep       = "UNKNOWN_STEP"
	ErrCodeUnknownGroup      = "UNKNOWN_GROUP"
	ErrCodeConfigNotFound    = "CONFIG_NOT_FOUND"
	ErrCodeGroupStepMismatch = "GROUP_STEP_MISMATCH"
	ErrCodeFormatterNotFound = "FORMATTER_NOT_FOUND"
	ErrCodeFormatterFailed   = "FORMATTER_FAILED"
	ErrCodeActionNotFound    = "ACTION_NOT_FOUND"
	ErrCodeCallFailed        = "CALL_FAILED"
	ErrCodePolicyDenied      = "POLICY_DENIED"
	ErrCodeInput             = "INPUT_ERROR"
)
