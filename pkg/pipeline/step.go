// Package pipeline composes locator resolution, condition waits, window
// coordination and retries into one interaction.
package pipeline

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/locator"
	"github.com/devicelab-dev/steadyhand/pkg/retry"
	"github.com/devicelab-dev/steadyhand/pkg/wait"
	"github.com/devicelab-dev/steadyhand/pkg/window"
)

// ActionKind names a built-in interaction.
type ActionKind string

// Built-in actions.
const (
	ActionClick         ActionKind = "click"
	ActionType          ActionKind = "type"
	ActionClear         ActionKind = "clear"
	ActionSubmit        ActionKind = "submit"
	ActionReadText      ActionKind = "readText"
	ActionAssertText    ActionKind = "assertText"
	ActionAssertVisible ActionKind = "assertVisible"
	ActionScript        ActionKind = "script"
	ActionNavigate      ActionKind = "navigate"
	ActionAssertURL     ActionKind = "assertURL"
	ActionCustom        ActionKind = "custom"
)

// ActionKinds lists the built-in actions.
var ActionKinds = []ActionKind{
	ActionClick, ActionType, ActionClear, ActionSubmit, ActionReadText,
	ActionAssertText, ActionAssertVisible, ActionScript, ActionNavigate,
	ActionAssertURL, ActionCustom,
}

// needsElement reports whether the action operates on a resolved element.
func (k ActionKind) needsElement() bool {
	switch k {
	case ActionClick, ActionType, ActionClear, ActionSubmit, ActionReadText,
		ActionAssertText, ActionAssertVisible:
		return true
	}
	return false
}

// ParseActionKind converts a scenario value into an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	for _, k := range ActionKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown action %q", s))
}

// ActionFunc performs a custom interaction. h is nil for steps without a
// locator. The returned value is stored in StepResult.Data.
type ActionFunc func(ctx context.Context, d core.Driver, h *locator.Handle) (interface{}, error)

// Action is what a step does once its target is ready.
type Action struct {
	Kind  ActionKind
	Value string // text to type, expected text/URL, script body, URL to load
	Fn    ActionFunc
}

// WaitFor builds the actionability condition for a resolved element.
type WaitFor func(h *locator.Handle) wait.Condition

// ForVisible waits until the element is displayed.
func ForVisible(h *locator.Handle) wait.Condition { return wait.Visible(h.Ref) }

// ForClickable waits until the element is displayed and enabled.
func ForClickable(h *locator.Handle) wait.Condition { return wait.Clickable(h.Ref) }

// Step is one unit of scenario work.
type Step struct {
	Label   string
	Locator locator.Spec // empty for navigate/assertURL/script
	Wait    WaitFor      // nil skips the actionability wait

	// WaitOptions bounds resolution and the actionability wait. Zero fields
	// fall back to the pipeline defaults.
	WaitOptions wait.Options

	Action Action

	// Navigational steps run the action through the window coordinator.
	Navigational bool
	Expect       window.Expectation

	// After must hold once the action is done.
	After wait.Condition

	// Retry overrides the pipeline's default policy.
	Retry *retry.Policy
}

// Validate checks that the step can run.
func (s Step) Validate() error {
	if s.Action.Kind == "" {
		return core.ErrMissingRequired.WithMessage("step has no action")
	}
	if _, err := ParseActionKind(string(s.Action.Kind)); err != nil {
		return err
	}
	if s.Action.Kind == ActionCustom && s.Action.Fn == nil {
		return core.ErrMissingRequired.WithMessage("custom action needs a function")
	}
	if s.Action.Kind.needsElement() && len(s.Locator) == 0 {
		return core.ErrMissingRequired.WithMessage(fmt.Sprintf("action %s needs a locator", s.Action.Kind))
	}
	if len(s.Locator) > 0 {
		if err := s.Locator.Validate(); err != nil {
			return err
		}
	}
	if s.Action.Kind == ActionNavigate && s.Action.Value == "" {
		return core.ErrMissingRequired.WithMessage("navigate needs a URL")
	}
	return nil
}

// Describe returns the label, or a generated description.
func (s Step) Describe() string {
	if s.Label != "" {
		return s.Label
	}
	if len(s.Locator) > 0 {
		return fmt.Sprintf("%s %s", s.Action.Kind, s.Locator)
	}
	if s.Action.Value != "" {
		return fmt.Sprintf("%s %q", s.Action.Kind, s.Action.Value)
	}
	return string(s.Action.Kind)
}
