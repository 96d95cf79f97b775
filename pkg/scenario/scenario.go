// Package scenario handles parsing and representation of YAML scenario files.
package scenario

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/steadyhand/pkg/config"
	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/locator"
)

// Scenario is a parsed scenario file.
type Scenario struct {
	SourcePath string            `yaml:"-"`
	Name       string            `yaml:"name"`
	URL        string            `yaml:"url"` // loaded before the first step
	Tags       []string          `yaml:"tags"`
	Env        map[string]string `yaml:"env"`
	Defaults   config.Defaults   `yaml:"defaults"`
	Before     []StepSpec        `yaml:"before"`
	Steps      []StepSpec        `yaml:"steps"`
	After      []StepSpec        `yaml:"after"`
}

// DisplayName returns the scenario name, falling back to its path.
func (s *Scenario) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.SourcePath
}

// StepSpec is one step as written in a scenario file.
type StepSpec struct {
	Label        string        `yaml:"label"`
	Locator      []Candidate   `yaml:"locator"`
	Wait         string        `yaml:"wait"` // visible, clickable, none
	Action       string        `yaml:"action"`
	Value        string        `yaml:"value"`
	Navigational bool          `yaml:"navigational"`
	ExpectDomain string        `yaml:"expectDomain"`
	Until        *Until        `yaml:"until"`
	Timeout      time.Duration `yaml:"timeout"`
	Poll         time.Duration `yaml:"poll"`
	Attempts     int           `yaml:"attempts"`
	Backoff      string        `yaml:"backoff"`
	Optional     bool          `yaml:"optional"`
	SaveAs       string        `yaml:"saveAs"` // variable receiving the step's data

	Line int `yaml:"-"`
}

// UnmarshalYAML records the step's line for error messages.
func (s *StepSpec) UnmarshalYAML(node *yaml.Node) error {
	type plain StepSpec
	if err := node.Decode((*plain)(s)); err != nil {
		return err
	}
	s.Line = node.Line
	return nil
}

// Candidate is one `{strategy: selector}` entry of a locator list.
type Candidate struct {
	locator.Candidate
	Line int
}

// UnmarshalYAML decodes a single-key mapping such as `css: a.twitter`.
func (c *Candidate) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: locator entry must be a single {strategy: selector} pair", node.Line)
	}
	strategy, err := core.ParseStrategy(node.Content[0].Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	c.Strategy = strategy
	c.Selector = node.Content[1].Value
	c.Line = node.Line
	return nil
}

// Until lists post-conditions; every non-empty field must hold.
type Until struct {
	URLContains   string `yaml:"urlContains"`
	URLMatches    string `yaml:"urlMatches"`
	TitleContains string `yaml:"titleContains"`
	Script        string `yaml:"script"`
	Present       string `yaml:"present"` // CSS selector
	Gone          string `yaml:"gone"`    // CSS selector
}

// Empty reports whether no condition is set.
func (u *Until) Empty() bool {
	return u == nil || *u == Until{}
}
