package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExecutionError_Error(t *testing.T) {
	err := &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "test_error",
		Message:  "test message",
	}

	if got := err.Error(); got != "test message" {
		t.Errorf("Error() = %q, want %q", got, "test message")
	}
}

func TestExecutionError_ErrorWithCauseAndDetails(t *testing.T) {
	cause := errors.New("underlying error")
	err := ErrElementNotFound.WithDetails(map[string]interface{}{
		"locator": `[css="#a"]`,
	}).WithCause(cause)

	got := err.Error()
	if !strings.Contains(got, "no locator candidate matched") {
		t.Errorf("Error() = %q, should contain the message", got)
	}
	if !strings.Contains(got, `locator=[css="#a"]`) {
		t.Errorf("Error() = %q, should contain the locator context", got)
	}
	if !strings.Contains(got, "underlying error") {
		t.Errorf("Error() = %q, should contain 'underlying error'", got)
	}
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ExecutionError{
		Message: "wrapper",
		Cause:   cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestExecutionError_WithCause(t *testing.T) {
	original := ErrElementNotFound
	cause := errors.New("custom cause")

	newErr := original.WithCause(cause)

	if newErr.Cause != cause {
		t.Error("WithCause() did not set cause")
	}
	if newErr.Code != original.Code {
		t.Error("WithCause() changed code")
	}
	if original.Cause != nil {
		t.Error("WithCause() modified original error")
	}
}

func TestExecutionError_WithMessage(t *testing.T) {
	original := ErrWaitTimeout
	newErr := original.WithMessage("custom timeout message")

	if newErr.Message != "custom timeout message" {
		t.Errorf("Message = %q, want 'custom timeout message'", newErr.Message)
	}
	if original.Message == "custom timeout message" {
		t.Error("WithMessage() modified original error")
	}
}

func TestExecutionError_WithDetailsMerges(t *testing.T) {
	first := ErrWaitTimeout.WithDetails(map[string]interface{}{"condition": "visible"})
	second := first.WithDetails(map[string]interface{}{"timeout": "1s"})

	if len(second.Details) != 2 {
		t.Errorf("Details = %v, want 2 entries", second.Details)
	}
	if len(first.Details) != 1 {
		t.Error("WithDetails() modified receiver")
	}
	if ErrWaitTimeout.Details != nil {
		t.Error("WithDetails() modified prototype")
	}
}

func TestExecutionError_IsMatchesPrototype(t *testing.T) {
	err := fmt.Errorf("step 3: %w", ErrStaleElement.WithCause(errors.New("detached")))

	if !errors.Is(err, ErrStaleElement) {
		t.Error("errors.Is should match the stale prototype through wrapping")
	}
	if errors.Is(err, ErrElementNotFound) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ErrCategoryNone},
		{"plain", errors.New("boom"), ErrCategoryNone},
		{"direct", ErrWindowMismatch, ErrCategoryWindowMismatch},
		{"wrapped", fmt.Errorf("ctx: %w", ErrSessionLost), ErrCategorySessionLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.err); got != tt.want {
				t.Errorf("CategoryOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrStaleElement, true},
		{ErrWaitTimeout, true},
		{ErrElementNotFound, false},
		{ErrWindowMismatch, false},
		{ErrAssertion, false},
		{ErrSessionLost, false},
		{context.Canceled, false},
		{errors.New("plain"), false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(ErrServerUnreachable) {
		t.Error("server unreachable should be fatal")
	}
	if IsFatal(ErrWaitTimeout) {
		t.Error("timeout should not be fatal")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want StepStatus
	}{
		{nil, StatusPassed},
		{ErrAssertion, StatusFailed},
		{ErrElementNotFound, StatusFailed},
		{ErrWindowMismatch, StatusFailed},
		{ErrWaitTimeout, StatusErrored},
		{ErrSessionLost, StatusErrored},
		{errors.New("plain"), StatusErrored},
		{fmt.Errorf("wrapped: %w", ErrTextMismatch), StatusFailed},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
