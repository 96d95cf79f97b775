package scenario

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/steadyhand/pkg/config"
	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/locator"
	"github.com/devicelab-dev/steadyhand/pkg/pipeline"
	"github.com/devicelab-dev/steadyhand/pkg/retry"
)

func testDefaults() config.Defaults {
	cfg := config.Default()
	return cfg.Defaults
}

func replacer(pairs ...string) Expander {
	r := strings.NewReplacer(pairs...)
	return func(s string) (string, error) { return r.Replace(s), nil }
}

func TestMergeDefaults(t *testing.T) {
	base := testDefaults()
	got := MergeDefaults(base, config.Defaults{Timeout: 3 * time.Second, Backoff: "constant"})

	if got.Timeout != 3*time.Second || got.Backoff != "constant" {
		t.Errorf("overrides not applied: %+v", got)
	}
	if got.Poll != base.Poll || got.Attempts != base.Attempts || got.WindowTimeout != base.WindowTimeout {
		t.Errorf("zero fields should keep base values: %+v", got)
	}
}

func TestPolicy(t *testing.T) {
	p, err := Policy(config.Defaults{Attempts: 4, Backoff: "constant", BackoffBase: time.Millisecond})
	if err != nil {
		t.Fatalf("Policy() error = %v", err)
	}
	if p.MaxAttempts() != 4 || p.Kind() != retry.Constant {
		t.Errorf("policy = %d %s", p.MaxAttempts(), p.Kind())
	}

	p, err = Policy(config.Defaults{})
	if err != nil {
		t.Fatalf("Policy() error = %v", err)
	}
	if p.MaxAttempts() != 1 || p.Kind() != retry.None {
		t.Errorf("zero policy = %d %s", p.MaxAttempts(), p.Kind())
	}

	if _, err := Policy(config.Defaults{Backoff: "fibonacci"}); err == nil {
		t.Error("expected error for unknown backoff")
	}
}

func TestBuildNavigational(t *testing.T) {
	b := Builder{Defaults: testDefaults(), Expand: replacer("${DOMAIN}", "x.com")}
	spec := StepSpec{
		Label:        "open twitter",
		Locator:      []Candidate{{Candidate: locator.ByCSS("a.twitter")}, {Candidate: locator.ByLinkText("Twitter")}},
		Action:       "click",
		Navigational: true,
		ExpectDomain: "${DOMAIN}",
		Attempts:     5,
	}

	step, err := b.Build(spec)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if step.Action.Kind != pipeline.ActionClick {
		t.Errorf("Kind = %s", step.Action.Kind)
	}
	if len(step.Locator) != 2 || step.Locator[0] != locator.ByCSS("a.twitter") {
		t.Errorf("Locator = %v", step.Locator)
	}
	if step.Wait == nil {
		t.Error("click should default to a clickable wait")
	}
	if !step.Navigational || step.Expect.Domain != "x.com" {
		t.Errorf("Expect = %+v", step.Expect)
	}
	if step.Expect.Timeout != b.Defaults.WindowTimeout || step.Expect.VerifyTimeout != b.Defaults.VerifyTimeout {
		t.Errorf("Expect timeouts = %+v", step.Expect)
	}
	if step.Retry == nil || step.Retry.MaxAttempts() != 5 {
		t.Errorf("Retry = %v", step.Retry)
	}
}

func TestBuildExpandsValuesAndSelectors(t *testing.T) {
	b := Builder{Expand: replacer("$USER", "ann", "${FIELD}", "login")}
	step, err := b.Build(StepSpec{
		Locator: []Candidate{{Candidate: locator.ByID("${FIELD}")}},
		Action:  "type",
		Value:   "$USER",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if step.Action.Value != "ann" || step.Locator[0].Selector != "login" {
		t.Errorf("expansion not applied: %+v", step)
	}
	if step.Retry != nil {
		t.Error("steps without attempts should use the pipeline policy")
	}
}

func TestBuildWaits(t *testing.T) {
	b := Builder{}
	loc := []Candidate{{Candidate: locator.ByCSS("#x")}}

	tests := []struct {
		action  string
		wait    string
		hasWait bool
	}{
		{"click", "", true},
		{"assertText", "", true},
		{"click", "none", false},
		{"readText", "clickable", true},
		{"navigate", "", false},
	}
	for _, tt := range tests {
		spec := StepSpec{Action: tt.action, Wait: tt.wait, Value: "https://example.test/"}
		if tt.action != "navigate" {
			spec.Locator = loc
		}
		step, err := b.Build(spec)
		if err != nil {
			t.Fatalf("%s/%s: %v", tt.action, tt.wait, err)
		}
		if (step.Wait != nil) != tt.hasWait {
			t.Errorf("%s/%s: wait set = %v, want %v", tt.action, tt.wait, step.Wait != nil, tt.hasWait)
		}
	}
}

func TestBuildUntil(t *testing.T) {
	b := Builder{}
	step, err := b.Build(StepSpec{
		Action: "navigate",
		Value:  "https://example.test/",
		Until:  &Until{URLContains: "example", TitleContains: "Home"},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if step.After == nil {
		t.Fatal("expected post-condition")
	}
	desc := step.After.Describe()
	if !strings.Contains(desc, "example") || !strings.Contains(desc, "Home") {
		t.Errorf("Describe() = %q", desc)
	}

	single, err := b.Build(StepSpec{Action: "navigate", Value: "https://a/", Until: &Until{Gone: ".spinner"}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(single.After.Describe(), ".spinner") {
		t.Errorf("Describe() = %q", single.After.Describe())
	}
}

func TestBuildErrors(t *testing.T) {
	loc := []Candidate{{Candidate: locator.ByCSS("#x")}}
	tests := []struct {
		name string
		spec StepSpec
	}{
		{"unknown action", StepSpec{Action: "hover", Locator: loc}},
		{"custom action", StepSpec{Action: "custom"}},
		{"missing locator", StepSpec{Action: "click"}},
		{"unknown wait", StepSpec{Action: "click", Locator: loc, Wait: "eventually"}},
		{"domain without navigation", StepSpec{Action: "click", Locator: loc, ExpectDomain: "x.com"}},
		{"bad regexp", StepSpec{Action: "navigate", Value: "https://a/", Until: &Until{URLMatches: "("}}},
		{"bad backoff", StepSpec{Action: "click", Locator: loc, Backoff: "fibonacci"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.spec.Line = 7
			_, err := Builder{}.Build(tt.spec)
			if err == nil {
				t.Fatal("expected error")
			}
			var ee *core.ExecutionError
			if !errors.As(err, &ee) {
				t.Fatalf("expected ExecutionError, got %T", err)
			}
			if ee.Details["line"] != 7 {
				t.Errorf("line detail = %v", ee.Details["line"])
			}
		})
	}
}

func TestBuildExpandError(t *testing.T) {
	b := Builder{Expand: func(string) (string, error) { return "", errors.New("ReferenceError") }}
	_, err := b.Build(StepSpec{Action: "navigate", Value: "${nope}"})
	if core.CategoryOf(err) != core.ErrCategoryConfig {
		t.Errorf("category = %v, err = %v", core.CategoryOf(err), err)
	}
}
