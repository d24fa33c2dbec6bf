// internal/dom/rules.go
package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// TabIndex returns the parsed tabindex attribute.
func TabIndex(n *html.Node) (int, bool) {
	v, ok := Attr(n, "tabindex")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

// IsNativelyFocusable reports whether n can receive focus by its tag and
// attributes alone, mirroring the interactive element discovery rules.
func IsNativelyFocusable(n *html.Node) bool {
	if !IsElement(n) {
		return false
	}
	if _, ok := TabIndex(n); ok {
		return true
	}
	switch strings.ToLower(n.Data) {
	case "a", "area":
		return HasAttr(n, "href")
	case "button", "select", "textarea", "iframe":
		return true
	case "input":
		t, _ := Attr(n, "type")
		return !strings.EqualFold(strings.TrimSpace(t), "hidden")
	case "summary":
		p := ParentElement(n)
		return p != nil && strings.EqualFold(p.Data, "details")
	}
	if ce, ok := Attr(n, "contenteditable"); ok {
		ce = strings.ToLower(strings.TrimSpace(ce))
		return ce == "" || ce == "true"
	}
	return false
}

// IsTabbable reports whether n takes part in sequential (Tab) navigation.
func IsTabbable(n *html.Node) bool {
	if !IsNativelyFocusable(n) {
		return false
	}
	if ti, ok := TabIndex(n); ok && ti < 0 {
		return false
	}
	return true
}

var disableableTags = map[string]bool{
	"button": true, "input": true, "select": true, "textarea": true, "fieldset": true, "optgroup": true, "option": true,
}

// IsDisabled reports whether n is disabled, either directly, through a disabled
// fieldset, or by aria-disabled="true" when ariaDisabled is honored.
func IsDisabled(n *html.Node, honorAriaDisabled bool) bool {
	if !IsElement(n) {
		return false
	}
	if disableableTags[strings.ToLower(n.Data)] && HasAttr(n, "disabled") {
		return true
	}
	if honorAriaDisabled {
		if v, _ := Attr(n, "aria-disabled"); strings.EqualFold(v, "true") {
			return true
		}
	}
	for p := ParentElement(n); p != nil; p = ParentElement(p) {
		if strings.EqualFold(p.Data, "fieldset") && HasAttr(p, "disabled") {
			return disableableTags[strings.ToLower(n.Data)]
		}
	}
	return false
}

// IsHidden reports whether n or any ancestor is hidden by markup:
// the hidden attribute, or an inline display:none, visibility:hidden or opacity:0.
func IsHidden(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if HasAttr(cur, "hidden") {
			return true
		}
		if strings.EqualFold(cur.Data, "input") {
			if t, _ := Attr(cur, "type"); cur == n && strings.EqualFold(t, "hidden") {
				return true
			}
		}
		style, ok := Attr(cur, "style")
		if !ok {
			continue
		}
		decls := ParseInlineStyle(style)
		if decls["display"] == "none" {
			return true
		}
		if v := decls["visibility"]; v == "hidden" || v == "collapse" {
			return true
		}
		if v, ok := decls["opacity"]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f <= 0 {
				return true
			}
		}
	}
	return false
}

// IsInert reports whether n or an ancestor is removed from interaction with
// the inert attribute or aria-hidden="true".
func IsInert(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if HasAttr(cur, "inert") {
			return true
		}
		if v, _ := Attr(cur, "aria-hidden"); strings.EqualFold(strings.TrimSpace(v), "true") {
			return true
		}
	}
	return false
}

var textInputTypes = map[string]bool{
	"": true, "text": true, "search": true, "email": true, "url": true, "password": true, "tel": true, "number": true,
}

// IsTextEntry reports whether arrow keys inside n belong to the element itself.
func IsTextEntry(n *html.Node) bool {
	if !IsElement(n) {
		return false
	}
	switch strings.ToLower(n.Data) {
	case "textarea":
		return true
	case "input":
		t, _ := Attr(n, "type")
		return textInputTypes[strings.ToLower(strings.TrimSpace(t))]
	}
	for cur := n; cur != nil; cur = ParentElement(cur) {
		if ce, ok := Attr(cur, "contenteditable"); ok {
			ce = strings.ToLower(strings.TrimSpace(ce))
			return ce == "" || ce == "true"
		}
	}
	return false
}

// IsRTL resolves the writing direction of n from the nearest dir attribute.
func IsRTL(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if dir, ok := Attr(cur, "dir"); ok {
			dir = strings.ToLower(strings.TrimSpace(dir))
			if dir == "rtl" {
				return true
			}
			if dir == "ltr" {
				return false
			}
		}
	}
	return false
}

// ParseInlineStyle splits a style attribute into lower-cased property/value pairs.
// !important markers are dropped; later declarations win.
func ParseInlineStyle(styleAttr string) map[string]string {
	decls := make(map[string]string)
	for _, part := range strings.Split(styleAttr, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.ToLower(strings.TrimSpace(kv[1]))
		val = strings.TrimSpace(strings.TrimSuffix(val, "!important"))
		decls[prop] = val
	}
	return decls
}
