// Package query translates locator strategies into the selector dialects
// browser backends understand natively.
package query

import "strings"

// IDSelector returns a CSS attribute selector matching id exactly.
func IDSelector(id string) string {
	return `[id="` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(id) + `"]`
}

// LinkText returns an XPath matching anchors whose normalized text equals text.
func LinkText(text string) string {
	return "//a[normalize-space(string(.))=" + Literal(strings.TrimSpace(text)) + "]"
}

// PartialLinkText returns an XPath matching anchors whose text contains text.
func PartialLinkText(text string) string {
	return "//a[contains(string(.)," + Literal(text) + ")]"
}

// Literal quotes s for use inside an XPath expression.
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}
