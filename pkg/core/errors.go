package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, wait_timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Locator/condition context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	msg := e.Message
	if ctx := e.detailString(); ctx != "" {
		msg += " [" + ctx + "]"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ExecutionError) detailString() string {
	if len(e.Details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches another ExecutionError by code, so copies made with WithCause or
// WithDetails still match their predefined prototype.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Category == t.Category
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors (mirroring the W3C WebDriver error codes where they overlap)
var (
	// Resolution errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryNotFound,
		Code:     "element_not_found",
		Message:  "no locator candidate matched an element",
	}

	// Timeout errors
	ErrWaitTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "wait_timeout",
		Message:  "wait condition timed out",
	}

	// Staleness
	ErrStaleElement = &ExecutionError{
		Category: ErrCategoryStaleReference,
		Code:     "stale_element",
		Message:  "element is stale or detached from the document",
	}

	// Overlays, animations or disabled controls. Transient, so retried like a timeout.
	ErrNotInteractable = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "element_not_interactable",
		Message:  "element is not interactable",
	}

	// Window coordination
	ErrWindowMismatch = &ExecutionError{
		Category: ErrCategoryWindowMismatch,
		Code:     "window_mismatch",
		Message:  "no new window and no navigation observed",
	}
	ErrNoSuchWindow = &ExecutionError{
		Category: ErrCategoryWindowMismatch,
		Code:     "no_such_window",
		Message:  "no such window",
	}

	// Assertion errors
	ErrAssertion = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "assertion_failed",
		Message:  "assertion failed",
	}
	ErrTextMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "text_mismatch",
		Message:  "text does not match expected value",
	}
	ErrURLMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "url_mismatch",
		Message:  "location does not contain expected value",
	}
	ErrElementNotVisible = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_visible",
		Message:  "element not visible",
	}

	// Session errors
	ErrSessionLost = &ExecutionError{
		Category: ErrCategorySessionLost,
		Code:     "session_lost",
		Message:  "driver session lost",
	}
	ErrServerUnreachable = &ExecutionError{
		Category: ErrCategorySessionLost,
		Code:     "server_unreachable",
		Message:  "could not connect to automation server",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// CategoryOf returns the category of the outermost ExecutionError in err's
// chain, or ErrCategoryNone when err is nil or carries no category.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ErrCategoryNone
}

// IsRetryable reports whether err is a transient failure worth another attempt.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch CategoryOf(err) {
	case ErrCategoryStaleReference, ErrCategoryTimeout:
		return true
	}
	return false
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return CategoryOf(err) == ErrCategorySessionLost
}

// StatusOf maps an error to a step status. Errors outside the taxonomy are
// reported as errored.
func StatusOf(err error) StepStatus {
	if err == nil {
		return StatusPassed
	}
	if c := CategoryOf(err); c != ErrCategoryNone {
		return c.Status()
	}
	return StatusErrored
}
