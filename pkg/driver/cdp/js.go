package cdp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp/kb"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/driver/internal/query"
)

const (
	jsText = `function() {
	if (this.tagName === 'INPUT' || this.tagName === 'TEXTAREA') { return this.value; }
	return this.innerText || this.textContent || '';
}`

	jsDisplayed = `function() {
	if (!this.isConnected) { return false; }
	const style = window.getComputedStyle(this);
	if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') { return false; }
	return this.getClientRects().length > 0;
}`

	jsEnabled = `function() { return !this.disabled; }`

	jsInteractable = `function() {
	if (this.disabled) { return false; }
	const style = window.getComputedStyle(this);
	if (style.display === 'none' || style.visibility === 'hidden') { return false; }
	return this.getClientRects().length > 0;
}`

	jsClear = `function() {
	this.value = '';
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
}`
)

// webdriverEnter is the W3C key code the pipeline uses for Enter.
const webdriverEnter = "\uE007"

// translateKeys maps W3C key codes onto chromedp key names.
func translateKeys(text string) string {
	return strings.ReplaceAll(text, webdriverEnter, kb.Enter)
}

type domQuery struct {
	sel   string
	xpath bool
}

// queryFor maps a locator strategy onto a DOM query. Link text strategies
// become XPath expressions over anchors.
func queryFor(strategy core.Strategy, selector string) (domQuery, error) {
	switch strategy {
	case core.StrategyID:
		return domQuery{sel: query.IDSelector(selector)}, nil
	case core.StrategyCSS:
		return domQuery{sel: selector}, nil
	case core.StrategyLinkText:
		return domQuery{sel: query.LinkText(selector), xpath: true}, nil
	case core.StrategyPartialLinkText:
		return domQuery{sel: query.PartialLinkText(selector), xpath: true}, nil
	case core.StrategyXPath:
		return domQuery{sel: selector, xpath: true}, nil
	}
	return domQuery{}, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unsupported strategy %q", strategy))
}

// scriptSource wraps a script body into a function declaration. Element
// arguments become parameters of the declaration, in order; every other
// argument is inlined as JSON.
func scriptSource(body string, args []interface{}) (string, []core.ElementRef, error) {
	var params, values []string
	var elems []core.ElementRef
	for _, a := range args {
		if el, ok := a.(core.ElementRef); ok {
			name := fmt.Sprintf("e%d", len(elems))
			elems = append(elems, el)
			params = append(params, name)
			values = append(values, name)
			continue
		}
		b, err := json.Marshal(a)
		if err != nil {
			return "", nil, core.ErrInvalidConfig.WithCause(err).WithMessage("script argument is not serializable")
		}
		values = append(values, string(b))
	}
	src := fmt.Sprintf("function(%s) {\n\tconst r = (function() {\n%s\n\t}).apply(null, [%s]);\n\treturn r === undefined ? null : r;\n}",
		strings.Join(params, ", "), body, strings.Join(values, ", "))
	return src, elems, nil
}
