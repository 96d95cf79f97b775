// Package locator resolves ordered lists of selector candidates to elements.
package locator

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

// Candidate is one (strategy, selector) pair.
type Candidate struct {
	Strategy core.Strategy `json:"strategy" yaml:"strategy"`
	Selector string        `json:"selector" yaml:"selector"`
}

// ByID matches an element by its id attribute.
func ByID(id string) Candidate { return Candidate{core.StrategyID, id} }

// ByCSS matches a CSS selector.
func ByCSS(sel string) Candidate { return Candidate{core.StrategyCSS, sel} }

// ByLinkText matches anchors whose visible text equals text.
func ByLinkText(text string) Candidate { return Candidate{core.StrategyLinkText, text} }

// ByPartialLinkText matches anchors whose visible text contains text.
func ByPartialLinkText(text string) Candidate { return Candidate{core.StrategyPartialLinkText, text} }

// ByXPath matches an XPath expression.
func ByXPath(expr string) Candidate { return Candidate{core.StrategyXPath, expr} }

// String returns e.g. css="#b".
func (c Candidate) String() string {
	return fmt.Sprintf("%s=%q", c.Strategy, c.Selector)
}

// Spec is an ordered, non-empty list of candidates. Earlier candidates win.
type Spec []Candidate

// New builds a Spec, rejecting an empty list.
func New(candidates ...Candidate) (Spec, error) {
	s := Spec(candidates)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustNew is New that panics on error. For literals in tests and examples.
func MustNew(candidates ...Candidate) Spec {
	s, err := New(candidates...)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks that the spec is usable.
func (s Spec) Validate() error {
	if len(s) == 0 {
		return core.ErrInvalidConfig.WithMessage("locator needs at least one candidate")
	}
	for i, c := range s {
		if _, err := core.ParseStrategy(string(c.Strategy)); err != nil {
			return err
		}
		if strings.TrimSpace(c.Selector) == "" {
			return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("locator candidate %d has an empty selector", i))
		}
	}
	return nil
}

// String joins the candidates in order.
func (s Spec) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
