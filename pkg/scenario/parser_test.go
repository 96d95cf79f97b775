package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

const footerScenario = `
name: footer links
url: https://example.test/
tags: [smoke]
env:
  DOMAIN: x.com
defaults:
  timeout: 5s
  poll: 100ms
  attempts: 3
  backoff: exponential
before:
  - action: navigate
    value: https://example.test/
steps:
  - label: open twitter
    locator:
      - css: a.twitter
      - linkText: Twitter
    wait: clickable
    action: click
    navigational: true
    expectDomain: ${DOMAIN}
  - label: search
    locator: [ { id: q } ]
    action: type
    value: shoes
    timeout: 2s
    until:
      urlContains: /results
    optional: true
after:
  - action: script
    value: "localStorage.clear()"
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(footerScenario), "footer.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if s.Name != "footer links" || s.URL != "https://example.test/" {
		t.Errorf("unexpected header: %+v", s)
	}
	if !reflect.DeepEqual(s.Tags, []string{"smoke"}) {
		t.Errorf("Tags = %v", s.Tags)
	}
	if s.Env["DOMAIN"] != "x.com" {
		t.Errorf("Env = %v", s.Env)
	}
	if s.Defaults.Timeout != 5*time.Second || s.Defaults.Poll != 100*time.Millisecond || s.Defaults.Attempts != 3 {
		t.Errorf("Defaults = %+v", s.Defaults)
	}
	if len(s.Before) != 1 || len(s.Steps) != 2 || len(s.After) != 1 {
		t.Fatalf("hooks/steps = %d/%d/%d", len(s.Before), len(s.Steps), len(s.After))
	}

	open := s.Steps[0]
	if len(open.Locator) != 2 {
		t.Fatalf("Locator = %v", open.Locator)
	}
	if open.Locator[0].Strategy != core.StrategyCSS || open.Locator[0].Selector != "a.twitter" {
		t.Errorf("first candidate = %+v", open.Locator[0])
	}
	if open.Locator[1].Strategy != core.StrategyLinkText || open.Locator[1].Selector != "Twitter" {
		t.Errorf("second candidate = %+v", open.Locator[1])
	}
	if !open.Navigational || open.ExpectDomain != "${DOMAIN}" {
		t.Errorf("navigation = %v %q", open.Navigational, open.ExpectDomain)
	}
	if open.Line == 0 {
		t.Error("expected step line to be recorded")
	}

	search := s.Steps[1]
	if search.Timeout != 2*time.Second || !search.Optional {
		t.Errorf("search = %+v", search)
	}
	if search.Until == nil || search.Until.URLContains != "/results" {
		t.Errorf("Until = %+v", search.Until)
	}
	if s.DisplayName() != "footer links" {
		t.Errorf("DisplayName() = %q", s.DisplayName())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "   \n"},
		{"not a mapping", "- action: click\n"},
		{"no steps", "name: nothing\n"},
		{"bad strategy", "steps:\n  - action: click\n    locator: [ { name: q } ]\n"},
		{"two keys", "steps:\n  - action: click\n    locator: [ { css: a, id: b } ]\n"},
		{"bad duration", "steps:\n  - action: click\n    timeout: soon\n"},
		{"broken yaml", "steps: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "bad.yaml")
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if pe.Path != "bad.yaml" {
				t.Errorf("Path = %q", pe.Path)
			}
		})
	}
}

func TestParseErrorString(t *testing.T) {
	e := &ParseError{Path: "a.yaml", Line: 3, Message: "boom"}
	if e.Error() != "a.yaml:3: boom" {
		t.Errorf("Error() = %q", e.Error())
	}
	e.Line = 0
	if e.Error() != "a.yaml: boom" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "footer.yaml")
	if err := os.WriteFile(path, []byte(footerScenario), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if s.SourcePath != path {
		t.Errorf("SourcePath = %q", s.SourcePath)
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) string {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("steps: []\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}
	b := write("b.yaml")
	a := write("nested/a.yml")
	write("steadyhand.yaml")
	write("notes.txt")
	write(".hidden/c.yaml")

	got, err := Discover([]string{dir, b})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	want := []string{b, a}
	if b > a {
		want = []string{a, b}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}

	if _, err := Discover([]string{filepath.Join(dir, "nope")}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestShouldInclude(t *testing.T) {
	s := &Scenario{Tags: []string{"smoke", "footer"}}
	tests := []struct {
		include, exclude []string
		want             bool
	}{
		{nil, nil, true},
		{[]string{"smoke"}, nil, true},
		{[]string{"checkout"}, nil, false},
		{nil, []string{"footer"}, false},
		{[]string{"smoke"}, []string{"footer"}, false},
	}
	for _, tt := range tests {
		if got := ShouldInclude(s, tt.include, tt.exclude); got != tt.want {
			t.Errorf("ShouldInclude(%v, %v) = %v, want %v", tt.include, tt.exclude, got, tt.want)
		}
	}
}
