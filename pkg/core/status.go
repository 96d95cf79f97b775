package core

// StepStatus represents the execution status of a step
type StepStatus int

const (
	StatusPending StepStatus = iota // Not yet started
	StatusRunning                   // Currently executing
	StatusPassed                    // Completed successfully
	StatusFailed                    // Assertion or expectation failed
	StatusErrored                   // Unexpected error (driver, timeout, session loss)
	StatusSkipped                   // Not run because an earlier step failed
	StatusWarned                    // Optional step failed (non-blocking)
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	case StatusWarned:
		return "warned"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped, StatusWarned:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the status indicates success (passed or warned)
func (s StepStatus) IsSuccess() bool {
	return s == StatusPassed || s == StatusWarned
}

// ErrorCategory classifies a failure so callers can decide whether to retry,
// surface or abort.
type ErrorCategory int

const (
	ErrCategoryNone           ErrorCategory = iota // No error
	ErrCategoryNotFound                            // No locator candidate matched
	ErrCategoryTimeout                             // A wait condition never became true
	ErrCategoryStaleReference                      // Resolved element was detached or replaced
	ErrCategoryWindowMismatch                      // Navigational trigger produced neither a new window nor a URL change
	ErrCategoryAssertion                           // Business-level expectation failed
	ErrCategorySessionLost                         // Driver session terminated
	ErrCategoryConfig                              // Invalid scenario or configuration
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryNotFound:
		return "not_found"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryStaleReference:
		return "stale_reference"
	case ErrCategoryWindowMismatch:
		return "window_mismatch"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategorySessionLost:
		return "session_lost"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Status maps an error category to the step status it produces.
func (c ErrorCategory) Status() StepStatus {
	switch c {
	case ErrCategoryNone:
		return StatusPassed
	case ErrCategoryAssertion, ErrCategoryNotFound, ErrCategoryWindowMismatch:
		return StatusFailed
	default:
		return StatusErrored
	}
}
