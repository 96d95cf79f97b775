// Package report writes JSON run reports.
//
// Layout:
//   - report.json: run index (small, rewritten as scenarios start and finish)
//   - scenarios/scenario-XXX.json: per-scenario step detail
//   - allure-results/: optional Allure results generated from the above
//
// report.json is the single source of truth for run status. Consumers poll it
// and fetch a scenario detail file once its entry reaches a terminal state.
package report

import (
	"time"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the execution status.
type Status string

// Status values.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusWarned  Status = "warned"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusSkipped || s == StatusWarned
}

// StatusOf converts a step or scenario status.
func StatusOf(s core.StepStatus) Status {
	switch s {
	case core.StatusPassed:
		return StatusPassed
	case core.StatusFailed, core.StatusErrored:
		return StatusFailed
	case core.StatusSkipped:
		return StatusSkipped
	case core.StatusWarned:
		return StatusWarned
	case core.StatusRunning:
		return StatusRunning
	}
	return StatusPending
}

// Index is report.json.
type Index struct {
	Version     string          `json:"version"`
	RunID       string          `json:"runId,omitempty"`
	UpdateSeq   uint64          `json:"updateSeq"`
	Status      Status          `json:"status"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     *time.Time      `json:"endTime,omitempty"`
	Duration    *int64          `json:"duration,omitempty"` // milliseconds
	LastUpdated time.Time       `json:"lastUpdated"`
	Aborted     bool            `json:"aborted,omitempty"`
	Runner      RunnerInfo      `json:"runner"`
	Summary     Summary         `json:"summary"`
	Scenarios   []ScenarioEntry `json:"scenarios"`
}

// RunnerInfo describes the runner and the browser it drove.
type RunnerInfo struct {
	Version        string `json:"version"`
	Driver         string `json:"driver"` // webdriver, cdp, playwright
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	Headless       bool   `json:"headless,omitempty"`
}

// Summary contains aggregated scenario counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Running int `json:"running"`
	Pending int `json:"pending"`
}

// ScenarioEntry is the index entry for a scenario.
type ScenarioEntry struct {
	Index      int         `json:"index"`
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	SourceFile string      `json:"sourceFile"`
	DataFile   string      `json:"dataFile"` // relative to the report dir
	Tags       []string    `json:"tags,omitempty"`
	Status     Status      `json:"status"`
	StartTime  *time.Time  `json:"startTime,omitempty"`
	EndTime    *time.Time  `json:"endTime,omitempty"`
	Duration   *int64      `json:"duration,omitempty"` // milliseconds
	Error      *string     `json:"error,omitempty"`
	Aborted    bool        `json:"aborted,omitempty"`
	Steps      StepSummary `json:"steps"`
}

// StepSummary contains step counts for a scenario.
type StepSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Warned  int `json:"warned"`
	Flaky   int `json:"flaky"`
}

// ScenarioDetail is a scenarios/scenario-XXX.json file.
type ScenarioDetail struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SourceFile string    `json:"sourceFile"`
	Tags       []string  `json:"tags,omitempty"`
	Status     Status    `json:"status"`
	StartTime  time.Time `json:"startTime"`
	Duration   int64     `json:"duration"` // milliseconds
	Error      string    `json:"error,omitempty"`
	Aborted    bool      `json:"aborted,omitempty"`
	Before     []Step    `json:"before,omitempty"`
	Steps      []Step    `json:"steps"`
	After      []Step    `json:"after,omitempty"`
}

// Step is one executed (or skipped) step.
type Step struct {
	Index       int       `json:"index"`
	Phase       string    `json:"phase"` // before, steps, after
	Label       string    `json:"label"`
	Action      string    `json:"action"`
	Status      Status    `json:"status"`
	Category    string    `json:"category,omitempty"` // not_found, timeout, window_mismatch, ...
	StartTime   time.Time `json:"startTime"`
	Duration    int64     `json:"duration"` // milliseconds
	Message     string    `json:"message,omitempty"`
	Candidate   string    `json:"candidate,omitempty"`
	Window      string    `json:"window,omitempty"`
	URL         string    `json:"url,omitempty"`
	Error       string    `json:"error,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	MaxAttempts int       `json:"maxAttempts,omitempty"`
	RetryErrors []string  `json:"retryErrors,omitempty"`
	Flaky       bool      `json:"flaky,omitempty"`
}

func stepFrom(phase string, r core.StepResult) Step {
	s := Step{
		Index:       r.Index,
		Phase:       phase,
		Label:       r.Label,
		Action:      r.Action,
		Status:      StatusOf(r.Status),
		StartTime:   r.StartTime,
		Duration:    r.Duration.Milliseconds(),
		Message:     r.Message,
		Candidate:   r.Candidate,
		Window:      r.Window,
		URL:         r.URL,
		Error:       r.Error,
		Attempt:     r.Attempt,
		MaxAttempts: r.MaxAttempts,
		RetryErrors: r.RetryErrors,
		Flaky:       r.Flaky,
	}
	if r.Category != core.ErrCategoryNone {
		s.Category = r.Category.String()
	}
	return s
}

func stepsFrom(phase string, rs []core.StepResult) []Step {
	if len(rs) == 0 {
		return nil
	}
	out := make([]Step, 0, len(rs))
	for _, r := range rs {
		out = append(out, stepFrom(phase, r))
	}
	return out
}
