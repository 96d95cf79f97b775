package mock

import (
	"strings"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

// matches reports whether el matches selector. CSS support covers simple
// compound selectors (tag, #id, .class); xpath matches Element.XPath or the
// //tag[@id='x'] form.
func matches(el Element, strategy core.Strategy, selector string) bool {
	switch strategy {
	case core.StrategyID:
		return el.ID != "" && el.ID == selector
	case core.StrategyCSS:
		for _, part := range strings.Split(selector, ",") {
			if matchCompound(el, strings.TrimSpace(part)) {
				return true
			}
		}
		return false
	case core.StrategyLinkText:
		return el.Tag == "a" && strings.TrimSpace(el.Text) == selector
	case core.StrategyPartialLinkText:
		return el.Tag == "a" && selector != "" && strings.Contains(el.Text, selector)
	case core.StrategyXPath:
		if el.XPath != "" && el.XPath == selector {
			return true
		}
		return matchXPathID(el, selector)
	}
	return false
}

func matchCompound(el Element, sel string) bool {
	if sel == "" {
		return false
	}
	tag, rest := splitTag(sel)
	if tag != "" && tag != "*" && tag != el.Tag {
		return false
	}
	for rest != "" {
		kind := rest[0]
		rest = rest[1:]
		end := strings.IndexAny(rest, "#.")
		name := rest
		if end >= 0 {
			name, rest = rest[:end], rest[end:]
		} else {
			rest = ""
		}
		switch kind {
		case '#':
			if el.ID != name {
				return false
			}
		case '.':
			if !hasClass(el, name) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func splitTag(sel string) (string, string) {
	i := strings.IndexAny(sel, "#.")
	if i < 0 {
		return sel, ""
	}
	return sel[:i], sel[i:]
}

func hasClass(el Element, name string) bool {
	for _, c := range el.Classes {
		if c == name {
			return true
		}
	}
	return false
}

// matchXPathID handles //tag[@id='x'] and //*[@id="x"].
func matchXPathID(el Element, sel string) bool {
	if !strings.HasPrefix(sel, "//") || !strings.HasSuffix(sel, "]") {
		return false
	}
	open := strings.Index(sel, "[@id=")
	if open < 0 {
		return false
	}
	tag := sel[2:open]
	id := strings.Trim(sel[open+len("[@id="):len(sel)-1], `'"`)
	if tag != "*" && tag != el.Tag {
		return false
	}
	return el.ID == id
}
