package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
)

// Allure result schema types.

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	Parameters    []AllureParameter   `json:"parameters,omitempty"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
}

// AllureStep represents a step within a test result.
type AllureStep struct {
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Parameters    []AllureParameter   `json:"parameters,omitempty"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureParameter is a name/value shown next to a result or step.
type AllureParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
	Flaky   bool   `json:"flaky,omitempty"`
}

// AllureCategory defines a failure category with regex matching.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// AllureExecutor describes what produced the results.
type AllureExecutor struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// GenerateAllure generates Allure-compatible result files in
// <reportDir>/allure-results/ from a written report.
func GenerateAllure(reportDir string) error {
	index, scenarios, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	allureDir := filepath.Join(reportDir, "allure-results")
	if err := os.MkdirAll(allureDir, 0o755); err != nil {
		return fmt.Errorf("create allure-results dir: %w", err)
	}

	// One result file per scenario
	for i, entry := range index.Scenarios {
		result := buildAllureResult(&entry, &scenarios[i], index)

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal allure result for %s: %w", entry.ID, err)
		}

		resultPath := filepath.Join(allureDir, entry.ID+"-result.json")
		if err := os.WriteFile(resultPath, data, 0o644); err != nil {
			return fmt.Errorf("write allure result %s: %w", entry.ID, err)
		}
	}

	if err := writeAllureCategories(allureDir); err != nil {
		return err
	}
	if err := writeAllureEnvironment(allureDir, index); err != nil {
		return err
	}
	return writeAllureExecutor(allureDir)
}

// buildAllureResult builds an AllureResult from a scenario entry and its detail.
func buildAllureResult(entry *ScenarioEntry, detail *ScenarioDetail, index *Index) AllureResult {
	var startMs, stopMs int64
	if entry.StartTime != nil {
		startMs = entry.StartTime.UnixMilli()
	}
	if entry.EndTime != nil {
		stopMs = entry.EndTime.UnixMilli()
	} else if entry.StartTime != nil && entry.Duration != nil {
		stopMs = startMs + *entry.Duration
	}

	labels := []AllureLabel{
		{Name: "suite", Value: entry.Name},
		{Name: "parentSuite", Value: filepath.Base(entry.SourceFile)},
		{Name: "framework", Value: "steadyhand"},
		{Name: "severity", Value: "normal"},
	}
	if index.Runner.Browser != "" {
		labels = append(labels, AllureLabel{Name: "host", Value: index.Runner.Browser})
	}
	for _, tag := range entry.Tags {
		labels = append(labels, AllureLabel{Name: "tag", Value: tag})
	}

	var statusDetails AllureStatusDetails
	if entry.Error != nil {
		statusDetails.Message = *entry.Error
	}
	statusDetails.Flaky = entry.Steps.Flaky > 0

	var steps []AllureStep
	for _, group := range [][]Step{detail.Before, detail.Steps, detail.After} {
		for _, s := range group {
			steps = append(steps, buildAllureStep(s))
		}
	}
	if steps == nil {
		steps = []AllureStep{}
	}

	return AllureResult{
		UUID:          entry.ID,
		HistoryID:     fnv32aHash(entry.Name + ":" + entry.SourceFile),
		FullName:      entry.SourceFile + "#" + entry.Name,
		Name:          entry.Name,
		Status:        mapAllureStatus(entry.Status, entry.Error),
		Stage:         "finished",
		Start:         startMs,
		Stop:          stopMs,
		Labels:        labels,
		StatusDetails: statusDetails,
		Steps:         steps,
	}
}

func buildAllureStep(s Step) AllureStep {
	name := s.Action
	if s.Label != "" {
		name = s.Action + ": " + s.Label
	}
	if s.Phase != "steps" {
		name = s.Phase + " " + name
	}

	start := s.StartTime.UnixMilli()
	if s.StartTime.IsZero() {
		start = 0
	}

	var params []AllureParameter
	if s.Candidate != "" {
		params = append(params, AllureParameter{Name: "locator", Value: s.Candidate})
	}
	if s.Window != "" {
		params = append(params, AllureParameter{Name: "window", Value: s.Window})
	}
	if s.URL != "" {
		params = append(params, AllureParameter{Name: "url", Value: s.URL})
	}
	if s.Attempt > 1 {
		params = append(params, AllureParameter{Name: "attempts", Value: fmt.Sprintf("%d/%d", s.Attempt, s.MaxAttempts)})
	}

	var errMsg *string
	if s.Error != "" {
		errMsg = &s.Error
	}

	return AllureStep{
		Name:       name,
		Status:     mapAllureStatus(s.Status, errMsg),
		Stage:      "finished",
		Start:      start,
		Stop:       start + s.Duration,
		Parameters: params,
		StatusDetails: AllureStatusDetails{
			Message: s.Error,
			Trace:   strings.Join(s.RetryErrors, "\n"),
			Flaky:   s.Flaky,
		},
		Steps: []AllureStep{},
	}
}

// mapAllureStatus maps report statuses. Allure distinguishes assertion
// failures ("failed") from everything else that went wrong ("broken").
func mapAllureStatus(s Status, errMsg *string) string {
	switch s {
	case StatusPassed, StatusWarned:
		return "passed"
	case StatusFailed:
		if errMsg != nil && isBroken(*errMsg) {
			return "broken"
		}
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

func isBroken(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "session") || strings.Contains(msg, "invalid")
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// writeAllureCategories writes categories.json for failure categorization.
func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Element Not Found", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*no candidate matched.*|.*not found.*"},
		{Name: "Element Not Interactable", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*not visible.*|.*not interactable.*|.*not enabled.*"},
		{Name: "Timeout", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*timeout.*|.*timed out.*"},
		{Name: "Stale Element", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*stale.*"},
		{Name: "Window Mismatch", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*window.*|.*domain.*"},
		{Name: "Assertion Failed", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*mismatch.*|.*expected.*"},
		{Name: "Session Lost", MatchedStatuses: []string{"broken"}, MessageRegex: "(?i).*session.*"},
		{Name: "Invalid Scenario", MatchedStatuses: []string{"broken"}, MessageRegex: "(?i).*invalid.*|.*unknown.*"},
	}

	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	path := filepath.Join(allureDir, "categories.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}
	return nil
}

// writeAllureEnvironment writes environment.properties with runner and browser metadata.
func writeAllureEnvironment(allureDir string, index *Index) error {
	var b strings.Builder
	b.WriteString("framework=steadyhand\n")

	r := index.Runner
	if r.Version != "" {
		b.WriteString(fmt.Sprintf("runner.version=%s\n", r.Version))
	}
	if r.Driver != "" {
		b.WriteString(fmt.Sprintf("runner.driver=%s\n", r.Driver))
	}
	if r.Browser != "" {
		b.WriteString(fmt.Sprintf("browser.name=%s\n", r.Browser))
	}
	if r.BrowserVersion != "" {
		b.WriteString(fmt.Sprintf("browser.version=%s\n", r.BrowserVersion))
	}
	b.WriteString(fmt.Sprintf("browser.headless=%t\n", r.Headless))

	path := filepath.Join(allureDir, "environment.properties")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}
	return nil
}

func writeAllureExecutor(allureDir string) error {
	data, err := json.MarshalIndent(AllureExecutor{Name: "steadyhand", Type: "steadyhand"}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal executor: %w", err)
	}

	path := filepath.Join(allureDir, "executor.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write executor.json: %w", err)
	}
	return nil
}
