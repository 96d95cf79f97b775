package core

import (
	"time"
)

// StepResult captures the complete outcome of running a single step
type StepResult struct {
	// Identity
	Index  int    `json:"index"`  // 0-based position in scenario
	Label  string `json:"label"`  // Scenario-provided label or a generated description
	Action string `json:"action"` // click, type, navigate, ...

	// Execution context
	ExecutedBy ExecutedBy `json:"executedBy"`

	// Status
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Message   string      `json:"message,omitempty"`   // Human-readable explanation
	Candidate string      `json:"candidate,omitempty"` // Locator candidate that resolved, e.g. css="#b"
	Window    string      `json:"window,omitempty"`    // new_window or same_tab for navigational steps
	URL       string      `json:"url,omitempty"`       // Verified location for navigational steps
	Data      interface{} `json:"data,omitempty"`      // Action output (readText, script)

	// Error Details
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`

	// Retry Tracking
	Attempt     int      `json:"attempt"`               // Attempts made (1-based)
	MaxAttempts int      `json:"maxAttempts"`           // Configured attempts
	RetryErrors []string `json:"retryErrors,omitempty"` // Errors from earlier attempts
	Flaky       bool     `json:"flaky,omitempty"`       // Passed after at least one retry
}

// ScenarioResult captures the outcome of running one scenario file
type ScenarioResult struct {
	// Identity
	Name     string   `json:"name"`
	FilePath string   `json:"filePath"`
	Tags     []string `json:"tags,omitempty"`

	// Status (aggregated from steps)
	Status StepStatus `json:"status"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Before []StepResult `json:"before,omitempty"`
	Steps  []StepResult `json:"steps"`
	After  []StepResult `json:"after,omitempty"`

	// Summary (computed)
	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	SkippedSteps int `json:"skippedSteps"`
	WarnedSteps  int `json:"warnedSteps"`
	FlakySteps   int `json:"flakySteps,omitempty"`

	// Error info (if scenario failed)
	Error   string `json:"error,omitempty"`
	Aborted bool   `json:"aborted,omitempty"` // Session was lost mid-scenario
}

// ComputeSummary calculates step counts from the Steps slice
func (r *ScenarioResult) ComputeSummary() {
	r.TotalSteps = len(r.Steps)
	r.PassedSteps = 0
	r.FailedSteps = 0
	r.SkippedSteps = 0
	r.WarnedSteps = 0
	r.FlakySteps = 0

	for _, step := range r.Steps {
		switch step.Status {
		case StatusPassed:
			r.PassedSteps++
		case StatusFailed, StatusErrored:
			r.FailedSteps++
		case StatusSkipped:
			r.SkippedSteps++
		case StatusWarned:
			r.WarnedSteps++
		}
		if step.Flaky {
			r.FlakySteps++
		}
	}
}

// hasFailure checks if any step in the slice has failed or errored
func hasFailure(steps []StepResult) bool {
	for _, step := range steps {
		if step.Status == StatusFailed || step.Status == StatusErrored {
			return true
		}
	}
	return false
}

// hasWarning checks if any step in the slice has warned status
func hasWarning(steps []StepResult) bool {
	for _, step := range steps {
		if step.Status == StatusWarned {
			return true
		}
	}
	return false
}

// AggregateStatus determines the scenario status from step results
// Rules:
// - Any failed/errored step in before, steps or after → StatusFailed
// - All passed (with optional warned) → StatusPassed or StatusWarned
func (r *ScenarioResult) AggregateStatus() StepStatus {
	if hasFailure(r.Before) || hasFailure(r.Steps) || hasFailure(r.After) {
		return StatusFailed
	}
	if hasWarning(r.Steps) {
		return StatusWarned
	}
	return StatusPassed
}

// SuiteResult captures the outcome of running several scenarios in one session
type SuiteResult struct {
	RunID string `json:"runId"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Scenarios []ScenarioResult `json:"scenarios"`

	TotalScenarios   int  `json:"totalScenarios"`
	PassedScenarios  int  `json:"passedScenarios"`
	FailedScenarios  int  `json:"failedScenarios"`
	SkippedScenarios int  `json:"skippedScenarios"`
	FlakyScenarios   int  `json:"flakyScenarios,omitempty"`
	Aborted          bool `json:"aborted,omitempty"`
}

// ComputeSummary calculates scenario counts
func (s *SuiteResult) ComputeSummary() {
	s.TotalScenarios = len(s.Scenarios)
	s.PassedScenarios = 0
	s.FailedScenarios = 0
	s.SkippedScenarios = 0
	s.FlakyScenarios = 0

	for _, sc := range s.Scenarios {
		switch sc.Status {
		case StatusPassed, StatusWarned:
			s.PassedScenarios++
		case StatusFailed, StatusErrored:
			s.FailedScenarios++
		case StatusSkipped:
			s.SkippedScenarios++
		}
		if sc.FlakySteps > 0 {
			s.FlakyScenarios++
		}
		if sc.Aborted {
			s.Aborted = true
		}
	}
}

// Success returns true if every scenario passed (including warned)
func (s *SuiteResult) Success() bool {
	for _, sc := range s.Scenarios {
		if !sc.Status.IsSuccess() {
			return false
		}
	}
	return len(s.Scenarios) > 0
}
