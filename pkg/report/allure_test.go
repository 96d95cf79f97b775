package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

func writeRun(t *testing.T, dir string, results ...core.ScenarioResult) *Index {
	t.Helper()
	w, err := NewWriter(dir, RunnerInfo{Version: "1.2.0", Driver: "playwright", Browser: "chromium", Headless: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range results {
		w.ScenarioStarted(i, len(results), results[i].Name, results[i].FilePath)
		w.ScenarioFinished(&results[i])
	}
	suite := &core.SuiteResult{StartTime: time.Now(), Duration: time.Second, Scenarios: results}
	suite.ComputeSummary()
	if err := w.Finish(suite); err != nil {
		t.Fatal(err)
	}
	index, _, err := ReadReport(dir)
	if err != nil {
		t.Fatal(err)
	}
	return index
}

func readAllure(t *testing.T, dir, id string) AllureResult {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "allure-results", id+"-result.json"))
	if err != nil {
		t.Fatalf("read allure result: %v", err)
	}
	var r AllureResult
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("parse allure result: %v", err)
	}
	return r
}

func TestGenerateAllurePassedScenario(t *testing.T) {
	dir := t.TempDir()
	index := writeRun(t, dir, passedScenario("footer", "scenarios/footer.yaml", time.Now()))

	if err := GenerateAllure(dir); err != nil {
		t.Fatalf("GenerateAllure() error = %v", err)
	}

	r := readAllure(t, dir, index.Scenarios[0].ID)
	if r.Status != "passed" || r.Name != "footer" || r.FullName != "scenarios/footer.yaml#footer" {
		t.Errorf("result = %+v", r)
	}
	if !r.StatusDetails.Flaky {
		t.Error("expected flaky status detail")
	}
	if r.HistoryID != fnv32aHash("footer:scenarios/footer.yaml") {
		t.Errorf("HistoryID = %q", r.HistoryID)
	}

	labels := map[string]string{}
	for _, l := range r.Labels {
		labels[l.Name] = l.Value
	}
	if labels["framework"] != "steadyhand" || labels["parentSuite"] != "footer.yaml" || labels["tag"] != "smoke" || labels["host"] != "chromium" {
		t.Errorf("labels = %v", r.Labels)
	}

	if len(r.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(r.Steps))
	}
	if r.Steps[0].Name != "before navigate: open https://example.test/" {
		t.Errorf("before step name = %q", r.Steps[0].Name)
	}
	click := r.Steps[1]
	if click.Name != "click: open twitter" || click.Stop-click.Start != 1000 {
		t.Errorf("click step = %+v", click)
	}
	params := map[string]string{}
	for _, p := range click.Parameters {
		params[p.Name] = p.Value
	}
	if params["window"] != "new_window" || params["attempts"] != "2/3" || params["locator"] != `linkText="Twitter"` {
		t.Errorf("params = %v", click.Parameters)
	}
	if click.StatusDetails.Trace != "stale element" {
		t.Errorf("trace = %q", click.StatusDetails.Trace)
	}

	for _, f := range []string{"categories.json", "environment.properties", "executor.json"} {
		if _, err := os.Stat(filepath.Join(dir, "allure-results", f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}
	env, err := os.ReadFile(filepath.Join(dir, "allure-results", "environment.properties"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"runner.driver=playwright", "browser.name=chromium", "browser.headless=true"} {
		if !strings.Contains(string(env), want) {
			t.Errorf("environment.properties missing %q:\n%s", want, env)
		}
	}
}

func TestGenerateAllureFailedAndBroken(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	failed := core.ScenarioResult{
		Name: "assert", StartTime: now, Status: core.StatusFailed, Error: "text mismatch",
		Steps: []core.StepResult{{Action: "assertText", Status: core.StatusFailed, Error: "text mismatch", StartTime: now}},
	}
	failed.ComputeSummary()
	lost := core.ScenarioResult{
		Name: "lost", StartTime: now, Status: core.StatusFailed, Error: "browser session lost", Aborted: true,
		Steps: []core.StepResult{{Action: "click", Status: core.StatusErrored, Error: "browser session lost", StartTime: now}},
	}
	lost.ComputeSummary()

	index := writeRun(t, dir, failed, lost)
	if err := GenerateAllure(dir); err != nil {
		t.Fatal(err)
	}

	if r := readAllure(t, dir, index.Scenarios[0].ID); r.Status != "failed" || r.StatusDetails.Message != "text mismatch" {
		t.Errorf("failed scenario = %+v", r)
	}
	r := readAllure(t, dir, index.Scenarios[1].ID)
	if r.Status != "broken" || r.Steps[0].Status != "broken" {
		t.Errorf("lost scenario status = %s, step = %s", r.Status, r.Steps[0].Status)
	}
}

func TestGenerateAllureNoReport(t *testing.T) {
	if err := GenerateAllure(t.TempDir()); err == nil {
		t.Error("expected error without report.json")
	}
}

func TestMapAllureStatus(t *testing.T) {
	msg := "invalid scenario"
	tests := []struct {
		status Status
		msg    *string
		want   string
	}{
		{StatusPassed, nil, "passed"},
		{StatusWarned, nil, "passed"},
		{StatusFailed, nil, "failed"},
		{StatusFailed, &msg, "broken"},
		{StatusSkipped, nil, "skipped"},
		{StatusPending, nil, "unknown"},
	}
	for _, tt := range tests {
		if got := mapAllureStatus(tt.status, tt.msg); got != tt.want {
			t.Errorf("mapAllureStatus(%s) = %s, want %s", tt.status, got, tt.want)
		}
	}
}
