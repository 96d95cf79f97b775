package scenario

import (
	"fmt"
	"regexp"

	"github.com/devicelab-dev/steadyhand/pkg/config"
	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/locator"
	"github.com/devicelab-dev/steadyhand/pkg/pipeline"
	"github.com/devicelab-dev/steadyhand/pkg/retry"
	"github.com/devicelab-dev/steadyhand/pkg/wait"
)

// Expander rewrites a scenario value before it is used.
type Expander func(string) (string, error)

// Builder converts step specs into pipeline steps.
type Builder struct {
	Defaults config.Defaults
	Expand   Expander // nil leaves values untouched
}

// MergeDefaults overlays the non-zero fields of over onto base.
func MergeDefaults(base, over config.Defaults) config.Defaults {
	out := base
	if over.Timeout > 0 {
		out.Timeout = over.Timeout
	}
	if over.Poll > 0 {
		out.Poll = over.Poll
	}
	if over.Attempts > 0 {
		out.Attempts = over.Attempts
	}
	if over.Backoff != "" {
		out.Backoff = over.Backoff
	}
	if over.BackoffBase > 0 {
		out.BackoffBase = over.BackoffBase
	}
	if over.BackoffMax > 0 {
		out.BackoffMax = over.BackoffMax
	}
	if over.WindowTimeout > 0 {
		out.WindowTimeout = over.WindowTimeout
	}
	if over.VerifyTimeout > 0 {
		out.VerifyTimeout = over.VerifyTimeout
	}
	return out
}

// Policy builds the retry policy described by d.
func Policy(d config.Defaults, opts ...retry.PolicyOption) (*retry.Policy, error) {
	kind, err := retry.ParseKind(d.Backoff)
	if err != nil {
		return nil, err
	}
	attempts := d.Attempts
	if attempts < 1 {
		attempts = 1
	}
	opts = append([]retry.PolicyOption{retry.WithBackoff(kind, d.BackoffBase, d.BackoffMax)}, opts...)
	return retry.NewPolicy(attempts, opts...), nil
}

// Build converts spec into a pipeline step, expanding variables on the way.
func (b Builder) Build(spec StepSpec) (pipeline.Step, error) {
	step, err := b.build(spec)
	if err != nil {
		return pipeline.Step{}, stepError(spec, err)
	}
	return step, nil
}

func (b Builder) build(spec StepSpec) (pipeline.Step, error) {
	kind, err := pipeline.ParseActionKind(spec.Action)
	if err != nil {
		return pipeline.Step{}, err
	}
	if kind == pipeline.ActionCustom {
		return pipeline.Step{}, core.ErrInvalidConfig.WithMessage("custom actions are only available from Go code")
	}

	value, err := b.expand(spec.Value)
	if err != nil {
		return pipeline.Step{}, err
	}

	step := pipeline.Step{
		Label:        spec.Label,
		Action:       pipeline.Action{Kind: kind, Value: value},
		WaitOptions:  wait.Options{Timeout: spec.Timeout, Poll: spec.Poll},
		Navigational: spec.Navigational,
	}

	for _, c := range spec.Locator {
		sel, err := b.expand(c.Selector)
		if err != nil {
			return pipeline.Step{}, err
		}
		step.Locator = append(step.Locator, locator.Candidate{Strategy: c.Strategy, Selector: sel})
	}

	if step.Wait, err = waitFor(spec.Wait, kind); err != nil {
		return pipeline.Step{}, err
	}

	if spec.Navigational {
		domain, err := b.expand(spec.ExpectDomain)
		if err != nil {
			return pipeline.Step{}, err
		}
		step.Expect.Domain = domain
		step.Expect.Timeout = b.Defaults.WindowTimeout
		step.Expect.VerifyTimeout = b.Defaults.VerifyTimeout
		step.Expect.Poll = spec.Poll
	} else if spec.ExpectDomain != "" {
		return pipeline.Step{}, core.ErrInvalidConfig.WithMessage("expectDomain requires navigational: true")
	}

	if !spec.Until.Empty() {
		if step.After, err = b.until(spec.Until); err != nil {
			return pipeline.Step{}, err
		}
	}

	if spec.Attempts > 0 || spec.Backoff != "" {
		d := b.Defaults
		if spec.Attempts > 0 {
			d.Attempts = spec.Attempts
		}
		if spec.Backoff != "" {
			d.Backoff = spec.Backoff
		}
		if step.Retry, err = Policy(d); err != nil {
			return pipeline.Step{}, err
		}
	}

	if err := step.Validate(); err != nil {
		return pipeline.Step{}, err
	}
	return step, nil
}

func (b Builder) expand(s string) (string, error) {
	if b.Expand == nil || s == "" {
		return s, nil
	}
	out, err := b.Expand(s)
	if err != nil {
		return "", core.ErrInvalidConfig.WithCause(err).WithMessage(fmt.Sprintf("cannot expand %q", s))
	}
	return out, nil
}

// waitFor picks the actionability wait. An empty name selects the natural
// wait for the action.
func waitFor(name string, kind pipeline.ActionKind) (pipeline.WaitFor, error) {
	switch name {
	case "visible":
		return pipeline.ForVisible, nil
	case "clickable":
		return pipeline.ForClickable, nil
	case "none":
		return nil, nil
	case "":
		switch kind {
		case pipeline.ActionClick, pipeline.ActionType, pipeline.ActionClear, pipeline.ActionSubmit:
			return pipeline.ForClickable, nil
		case pipeline.ActionReadText, pipeline.ActionAssertText, pipeline.ActionAssertVisible:
			return pipeline.ForVisible, nil
		}
		return nil, nil
	}
	return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown wait %q (want visible, clickable or none)", name))
}

func (b Builder) until(u *Until) (wait.Condition, error) {
	var conds []wait.Condition
	add := func(raw string, mk func(string) (wait.Condition, error)) error {
		if raw == "" {
			return nil
		}
		v, err := b.expand(raw)
		if err != nil {
			return err
		}
		c, err := mk(v)
		if err != nil {
			return err
		}
		conds = append(conds, c)
		return nil
	}

	steps := []struct {
		raw string
		mk  func(string) (wait.Condition, error)
	}{
		{u.URLContains, func(v string) (wait.Condition, error) { return wait.URLContains(v), nil }},
		{u.URLMatches, func(v string) (wait.Condition, error) {
			re, err := regexp.Compile(v)
			if err != nil {
				return nil, core.ErrInvalidConfig.WithCause(err).WithMessage("invalid urlMatches pattern")
			}
			return wait.URLMatches(re), nil
		}},
		{u.TitleContains, func(v string) (wait.Condition, error) { return wait.TitleContains(v), nil }},
		{u.Script, func(v string) (wait.Condition, error) { return wait.ScriptTrue(v), nil }},
		{u.Present, func(v string) (wait.Condition, error) { return wait.Present(core.StrategyCSS, v), nil }},
		{u.Gone, func(v string) (wait.Condition, error) { return wait.Not(wait.Present(core.StrategyCSS, v)), nil }},
	}
	for _, s := range steps {
		if err := add(s.raw, s.mk); err != nil {
			return nil, err
		}
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return wait.All(conds...), nil
}

// stepError attaches the step's position to err.
func stepError(spec StepSpec, err error) error {
	details := map[string]interface{}{"action": spec.Action}
	if spec.Line > 0 {
		details["line"] = spec.Line
	}
	if spec.Label != "" {
		details["label"] = spec.Label
	}
	if ee, ok := err.(*core.ExecutionError); ok {
		return ee.WithDetails(details)
	}
	return core.ErrInvalidConfig.WithCause(err).WithDetails(details)
}
