package wait

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

// Func adapts a function to Condition.
type Func struct {
	Name string
	Fn   func(ctx context.Context, d core.Driver) (bool, error)
}

// Describe implements Condition.
func (f Func) Describe() string { return f.Name }

// Check implements Condition.
func (f Func) Check(ctx context.Context, d core.Driver) (bool, error) { return f.Fn(ctx, d) }

// Predicate builds a named Condition from fn.
func Predicate(name string, fn func(ctx context.Context, d core.Driver) (bool, error)) Condition {
	return Func{Name: name, Fn: fn}
}

// Visible holds once el is displayed.
func Visible(el core.ElementRef) Condition {
	return Predicate("visible", func(ctx context.Context, d core.Driver) (bool, error) {
		return d.Displayed(ctx, el)
	})
}

// Clickable holds once el is displayed and enabled.
func Clickable(el core.ElementRef) Condition {
	return Predicate("clickable", func(ctx context.Context, d core.Driver) (bool, error) {
		shown, err := d.Displayed(ctx, el)
		if err != nil || !shown {
			return false, err
		}
		return d.Enabled(ctx, el)
	})
}

// CountAtLeast holds once selector matches n or more elements.
func CountAtLeast(strategy core.Strategy, selector string, n int) Condition {
	return Predicate(fmt.Sprintf("count(%s=%q)>=%d", strategy, selector, n), func(ctx context.Context, d core.Driver) (bool, error) {
		refs, err := d.FindElements(ctx, strategy, selector)
		if err != nil {
			return false, err
		}
		return len(refs) >= n, nil
	})
}

// Present holds once selector matches at least one element.
func Present(strategy core.Strategy, selector string) Condition {
	return CountAtLeast(strategy, selector, 1)
}

// StalenessOf holds once el is detached from the document.
func StalenessOf(el core.ElementRef) Condition {
	return Predicate("staleness-of", func(ctx context.Context, d core.Driver) (bool, error) {
		_, err := d.Enabled(ctx, el)
		if err == nil {
			return false, nil
		}
		if core.CategoryOf(err) == core.ErrCategoryStaleReference {
			return true, nil
		}
		return false, err
	})
}

// URLContains holds once the current URL contains substr.
func URLContains(substr string) Condition {
	return Predicate(fmt.Sprintf("url-contains(%q)", substr), func(ctx context.Context, d core.Driver) (bool, error) {
		u, err := d.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(u, substr), nil
	})
}

// URLMatches holds once the current URL matches re.
func URLMatches(re *regexp.Regexp) Condition {
	return Predicate(fmt.Sprintf("url-matches(%s)", re), func(ctx context.Context, d core.Driver) (bool, error) {
		u, err := d.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return re.MatchString(u), nil
	})
}

// URLChangedFrom holds once the current URL differs from prior.
func URLChangedFrom(prior string) Condition {
	return Predicate("url-changed", func(ctx context.Context, d core.Driver) (bool, error) {
		u, err := d.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return u != prior, nil
	})
}

// TitleContains holds once the document title contains substr.
func TitleContains(substr string) Condition {
	return Predicate(fmt.Sprintf("title-contains(%q)", substr), func(ctx context.Context, d core.Driver) (bool, error) {
		title, err := d.Title(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(title, substr), nil
	})
}

// ScriptTrue holds once script returns a truthy value.
func ScriptTrue(script string, args ...interface{}) Condition {
	return Predicate("script-true", func(ctx context.Context, d core.Driver) (bool, error) {
		v, err := d.ExecuteScript(ctx, script, args...)
		if err != nil {
			return false, err
		}
		return truthy(v), nil
	})
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	}
	return true
}

// NewWindow holds once a handle outside baseline exists.
func NewWindow(baseline []string) Condition {
	known := make(map[string]bool, len(baseline))
	for _, h := range baseline {
		known[h] = true
	}
	return Predicate(fmt.Sprintf("new-window(>%d)", len(baseline)), func(ctx context.Context, d core.Driver) (bool, error) {
		handles, err := d.WindowHandles(ctx)
		if err != nil {
			return false, err
		}
		for _, h := range handles {
			if !known[h] {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not negates c. Errors from c still count as "not yet".
func Not(c Condition) Condition {
	return Predicate("not("+c.Describe()+")", func(ctx context.Context, d core.Driver) (bool, error) {
		ok, err := c.Check(ctx, d)
		if err != nil {
			return false, err
		}
		return !ok, nil
	})
}

// All holds once every condition holds in the same poll.
func All(conds ...Condition) Condition {
	names := make([]string, len(conds))
	for i, c := range conds {
		names[i] = c.Describe()
	}
	return Predicate("all("+strings.Join(names, ", ")+")", func(ctx context.Context, d core.Driver) (bool, error) {
		for _, c := range conds {
			ok, err := c.Check(ctx, d)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Any holds once one of the conditions holds. Errors are ignored unless no
// condition holds, in which case the first is returned.
func Any(conds ...Condition) Condition {
	names := make([]string, len(conds))
	for i, c := range conds {
		names[i] = c.Describe()
	}
	return Predicate("any("+strings.Join(names, ", ")+")", func(ctx context.Context, d core.Driver) (bool, error) {
		var firstErr error
		for _, c := range conds {
			ok, err := c.Check(ctx, d)
			if err != nil {
				if core.IsFatal(err) {
					return false, err
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if ok {
				return true, nil
			}
		}
		return false, firstErr
	})
}
