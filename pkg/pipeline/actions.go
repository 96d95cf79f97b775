package pipeline

import (
	"context"
	"strings"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/locator"
)

// enterKey is the W3C key code for Enter.
const enterKey = "\uE007"

// perform runs the step's action. h is nil for steps without a locator.
func perform(ctx context.Context, d core.Driver, a Action, h *locator.Handle) (interface{}, error) {
	switch a.Kind {
	case ActionClick:
		return nil, d.Click(ctx, h.Ref)

	case ActionType:
		if err := d.Clear(ctx, h.Ref); err != nil {
			return nil, err
		}
		return nil, d.SendKeys(ctx, h.Ref, a.Value)

	case ActionClear:
		return nil, d.Clear(ctx, h.Ref)

	case ActionSubmit:
		return nil, d.SendKeys(ctx, h.Ref, enterKey)

	case ActionReadText:
		return d.Text(ctx, h.Ref)

	case ActionAssertText:
		text, err := d.Text(ctx, h.Ref)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) != strings.TrimSpace(a.Value) {
			return text, core.ErrTextMismatch.WithDetails(map[string]interface{}{
				"expected":  a.Value,
				"actual":    text,
				"candidate": h.Candidate().String(),
			})
		}
		return text, nil

	case ActionAssertVisible:
		shown, err := d.Displayed(ctx, h.Ref)
		if err != nil {
			return nil, err
		}
		if !shown {
			return nil, core.ErrElementNotVisible.WithDetails(map[string]interface{}{
				"candidate": h.Candidate().String(),
			})
		}
		return nil, nil

	case ActionScript:
		var args []interface{}
		if h != nil {
			args = append(args, h.Ref)
		}
		return d.ExecuteScript(ctx, a.Value, args...)

	case ActionNavigate:
		return nil, d.Navigate(ctx, a.Value)

	case ActionAssertURL:
		url, err := d.CurrentURL(ctx)
		if err != nil {
			return nil, err
		}
		if !strings.Contains(url, a.Value) {
			return url, core.ErrURLMismatch.WithDetails(map[string]interface{}{
				"expected": a.Value,
				"actual":   url,
			})
		}
		return url, nil

	case ActionCustom:
		return a.Fn(ctx, d, h)
	}
	return nil, core.ErrInvalidConfig.WithMessage("unknown action " + string(a.Kind))
}
