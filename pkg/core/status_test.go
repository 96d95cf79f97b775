package core

import "testing"

func TestStepStatus_String(t *testing.T) {
	tests := []struct {
		status   StepStatus
		expected string
	}{
		{StatusPending, "pending"},
		{StatusRunning, "running"},
		{StatusPassed, "passed"},
		{StatusFailed, "failed"},
		{StatusErrored, "errored"},
		{StatusSkipped, "skipped"},
		{StatusWarned, "warned"},
		{StepStatus(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("StepStatus(%d).String() = %q, want %q", tt.status, got, tt.expected)
		}
	}
}

func TestStepStatus_IsTerminal(t *testing.T) {
	terminalStatuses := []StepStatus{StatusPassed, StatusFailed, StatusErrored, StatusSkipped, StatusWarned}
	nonTerminalStatuses := []StepStatus{StatusPending, StatusRunning}

	for _, s := range terminalStatuses {
		if !s.IsTerminal() {
			t.Errorf("StepStatus(%s).IsTerminal() = false, want true", s)
		}
	}

	for _, s := range nonTerminalStatuses {
		if s.IsTerminal() {
			t.Errorf("StepStatus(%s).IsTerminal() = true, want false", s)
		}
	}
}

func TestStepStatus_IsSuccess(t *testing.T) {
	if !StatusPassed.IsSuccess() || !StatusWarned.IsSuccess() {
		t.Error("passed and warned should count as success")
	}
	for _, s := range []StepStatus{StatusFailed, StatusErrored, StatusSkipped, StatusPending} {
		if s.IsSuccess() {
			t.Errorf("StepStatus(%s).IsSuccess() = true, want false", s)
		}
	}
}

func TestErrorCategory_String(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		expected string
	}{
		{ErrCategoryNone, "none"},
		{ErrCategoryNotFound, "not_found"},
		{ErrCategoryTimeout, "timeout"},
		{ErrCategoryStaleReference, "stale_reference"},
		{ErrCategoryWindowMismatch, "window_mismatch"},
		{ErrCategoryAssertion, "assertion"},
		{ErrCategorySessionLost, "session_lost"},
		{ErrCategoryConfig, "config"},
		{ErrorCategory(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.category.String(); got != tt.expected {
			t.Errorf("ErrorCategory(%d).String() = %q, want %q", tt.category, got, tt.expected)
		}
	}
}

func TestErrorCategory_Status(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		expected StepStatus
	}{
		{ErrCategoryNone, StatusPassed},
		{ErrCategoryAssertion, StatusFailed},
		{ErrCategoryNotFound, StatusFailed},
		{ErrCategoryWindowMismatch, StatusFailed},
		{ErrCategoryTimeout, StatusErrored},
		{ErrCategoryStaleReference, StatusErrored},
		{ErrCategorySessionLost, StatusErrored},
	}

	for _, tt := range tests {
		if got := tt.category.Status(); got != tt.expected {
			t.Errorf("%s.Status() = %s, want %s", tt.category, got, tt.expected)
		}
	}
}
