package core

import (
	"testing"
)

func TestScenarioResult_ComputeSummary(t *testing.T) {
	r := &ScenarioResult{
		Name: "footer-links",
		Steps: []StepResult{
			{Index: 0, Status: StatusPassed},
			{Index: 1, Status: StatusPassed, Flaky: true},
			{Index: 2, Status: StatusFailed},
			{Index: 3, Status: StatusSkipped},
			{Index: 4, Status: StatusWarned},
			{Index: 5, Status: StatusErrored},
		},
	}

	r.ComputeSummary()

	if r.TotalSteps != 6 {
		t.Errorf("TotalSteps = %d, want 6", r.TotalSteps)
	}
	if r.PassedSteps != 2 {
		t.Errorf("PassedSteps = %d, want 2", r.PassedSteps)
	}
	if r.FailedSteps != 2 { // Failed + Errored
		t.Errorf("FailedSteps = %d, want 2", r.FailedSteps)
	}
	if r.SkippedSteps != 1 {
		t.Errorf("SkippedSteps = %d, want 1", r.SkippedSteps)
	}
	if r.WarnedSteps != 1 {
		t.Errorf("WarnedSteps = %d, want 1", r.WarnedSteps)
	}
	if r.FlakySteps != 1 {
		t.Errorf("FlakySteps = %d, want 1", r.FlakySteps)
	}
}

func TestScenarioResult_ComputeSummary_Empty(t *testing.T) {
	r := &ScenarioResult{Name: "empty"}
	r.ComputeSummary()

	if r.TotalSteps != 0 {
		t.Errorf("TotalSteps = %d, want 0", r.TotalSteps)
	}
}

func TestScenarioResult_AggregateStatus(t *testing.T) {
	tests := []struct {
		name   string
		result ScenarioResult
		want   StepStatus
	}{
		{
			name:   "all passed",
			result: ScenarioResult{Steps: []StepResult{{Status: StatusPassed}, {Status: StatusPassed}}},
			want:   StatusPassed,
		},
		{
			name:   "with warned",
			result: ScenarioResult{Steps: []StepResult{{Status: StatusPassed}, {Status: StatusWarned}}},
			want:   StatusWarned,
		},
		{
			name:   "with failed",
			result: ScenarioResult{Steps: []StepResult{{Status: StatusPassed}, {Status: StatusFailed}}},
			want:   StatusFailed,
		},
		{
			name: "before hook errored",
			result: ScenarioResult{
				Before: []StepResult{{Status: StatusErrored}},
				Steps:  []StepResult{{Status: StatusSkipped}},
			},
			want: StatusFailed,
		},
		{
			name: "after hook failed",
			result: ScenarioResult{
				Steps: []StepResult{{Status: StatusPassed}},
				After: []StepResult{{Status: StatusFailed}},
			},
			want: StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.AggregateStatus(); got != tt.want {
				t.Errorf("AggregateStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSuiteResult_ComputeSummary(t *testing.T) {
	s := &SuiteResult{
		Scenarios: []ScenarioResult{
			{Status: StatusPassed},
			{Status: StatusWarned, FlakySteps: 1},
			{Status: StatusFailed, Aborted: true},
			{Status: StatusSkipped},
		},
	}

	s.ComputeSummary()

	if s.TotalScenarios != 4 || s.PassedScenarios != 2 || s.FailedScenarios != 1 || s.SkippedScenarios != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.FlakyScenarios != 1 {
		t.Errorf("FlakyScenarios = %d, want 1", s.FlakyScenarios)
	}
	if !s.Aborted {
		t.Error("Aborted should propagate from scenarios")
	}
	if s.Success() {
		t.Error("Success() = true with a failed scenario")
	}
}

func TestSuiteResult_SuccessRequiresScenarios(t *testing.T) {
	s := &SuiteResult{}
	if s.Success() {
		t.Error("empty suite should not be a success")
	}
	s.Scenarios = []ScenarioResult{{Status: StatusPassed}, {Status: StatusWarned}}
	if !s.Success() {
		t.Error("passed + warned should be a success")
	}
}
