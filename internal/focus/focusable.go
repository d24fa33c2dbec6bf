// internal/focus/focusable.go
package focus

import (
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/internal/dom"
)

// FindOptions scopes a focusable search.
type FindOptions struct {
	// Container bounds the search; it is never returned itself. Defaults to <body>.
	Container *html.Node
	// From is the exclusive anchor of FindNext and FindPrev.
	From *html.Node
	// IncludeProgrammatic admits elements reachable only by script (tabindex="-1").
	IncludeProgrammatic bool
	IgnoreGroupper      bool
	IgnoreModalizer     bool
	IgnoreVisibility    bool
	IgnoreAccessibility bool
	Filter              func(*html.Node) bool
}

// Focusables answers focusability questions and runs ordered searches.
type Focusables struct {
	inst *Instance
}

// IsFocusable reports whether el can take focus right now, programmatically or by Tab.
func (f *Focusables) IsFocusable(el *html.Node) bool {
	return f.isFocusable(el, FindOptions{IncludeProgrammatic: true})
}

// IsTabbable reports whether el is a sequential navigation stop right now.
func (f *Focusables) IsTabbable(el *html.Node) bool {
	return f.isFocusable(el, FindOptions{})
}

func (f *Focusables) isFocusable(el *html.Node, opts FindOptions) bool {
	if !dom.IsElement(el) {
		return false
	}
	if opts.IncludeProgrammatic {
		if !dom.IsNativelyFocusable(el) {
			return false
		}
	} else if !dom.IsTabbable(el) {
		return false
	}
	if !opts.IgnoreVisibility && !f.IsVisible(el) {
		return false
	}
	if !opts.IgnoreAccessibility && !f.IsAccessible(el) {
		return false
	}
	return true
}

// IsVisible reports whether el has a non-empty layout box and is not hidden by markup.
func (f *Focusables) IsVisible(el *html.Node) bool {
	if dom.IsHidden(el) {
		return false
	}
	box, ok := f.inst.host.BoundingBox(el)
	return ok && !box.IsEmpty()
}

// IsAccessible reports whether el is outside inert or aria-hidden subtrees and not disabled.
func (f *Focusables) IsAccessible(el *html.Node) bool {
	if dom.IsInert(el) {
		return false
	}
	props := f.inst.focusableProps(el)
	return !dom.IsDisabled(el, !props.IgnoreAriaDisabled)
}

// FindFirst returns the first match in the container.
func (f *Focusables) FindFirst(opts FindOptions) *html.Node {
	opts.From = nil
	return f.find(opts, false)
}

// FindLast returns the last match in the container.
func (f *Focusables) FindLast(opts FindOptions) *html.Node {
	opts.From = nil
	return f.find(opts, true)
}

// FindNext returns the first match after opts.From.
func (f *Focusables) FindNext(opts FindOptions) *html.Node {
	return f.find(opts, false)
}

// FindPrev returns the last match before opts.From.
func (f *Focusables) FindPrev(opts FindOptions) *html.Node {
	return f.find(opts, true)
}

// FindDefault returns the first focusable in container flagged as default.
func (f *Focusables) FindDefault(container *html.Node) *html.Node {
	return f.find(FindOptions{
		Container:           container,
		IncludeProgrammatic: true,
		Filter: func(n *html.Node) bool {
			return f.inst.focusableProps(n).IsDefault
		},
	}, false)
}

// FindAll returns every match in document order.
func (f *Focusables) FindAll(opts FindOptions) []*html.Node {
	container := f.container(opts)
	if container == nil {
		return nil
	}
	var out []*html.Node
	for cur := dom.FirstElement(container); cur != nil; cur = dom.NextElement(cur, container) {
		if f.accept(cur, container, opts) {
			out = append(out, cur)
		}
	}
	return out
}

func (f *Focusables) container(opts FindOptions) *html.Node {
	if opts.Container != nil {
		return opts.Container
	}
	return f.inst.doc.Body()
}

func (f *Focusables) find(opts FindOptions, backward bool) *html.Node {
	container := f.container(opts)
	if container == nil {
		return nil
	}

	var cur *html.Node
	switch {
	case opts.From != nil && dom.Contains(container, opts.From):
		cur = f.step(opts.From, container, backward)
	case opts.From != nil:
		// An anchor outside the container searches from the container's matching edge.
		cur = f.edge(container, dom.Compare(opts.From, container) > 0 == backward, backward)
	default:
		cur = f.edge(container, true, backward)
	}

	for ; cur != nil; cur = f.step(cur, container, backward) {
		if f.accept(cur, container, opts) {
			return cur
		}
	}
	return nil
}

// edge returns the element a search starts at, or nil when from the anchor's
// position nothing in the container lies in the search direction.
func (f *Focusables) edge(container *html.Node, reachable, backward bool) *html.Node {
	if !reachable {
		return nil
	}
	if backward {
		return dom.LastElement(container)
	}
	return dom.FirstElement(container)
}

func (f *Focusables) step(n, container *html.Node, backward bool) *html.Node {
	if backward {
		return dom.PrevElement(n, container)
	}
	return dom.NextElement(n, container)
}

// accept applies focusability, caller filter, modalizer scope and the
// single-tab-stop rules of limited grouppers and arrow-key movers.
func (f *Focusables) accept(c, container *html.Node, opts FindOptions) bool {
	if !f.isFocusable(c, opts) {
		return false
	}
	if opts.Filter != nil && !opts.Filter(c) {
		return false
	}
	if !opts.IgnoreModalizer && !f.inst.Modalizer.allows(c) {
		return false
	}
	if opts.IgnoreGroupper {
		return true
	}
	for a := c; a != nil && a != container; a = a.Parent {
		if a.Type != html.ElementNode {
			continue
		}
		if g := f.inst.GroupperOf(a); g != nil && g.IsLimited() && !g.unlimited {
			if c != g.EntryElement() {
				return false
			}
		}
		if m := f.inst.MoverOf(a); m != nil && m.isSingleTabStop() && !dom.Contains(a, opts.From) {
			if c != m.EntryElement() {
				return false
			}
		}
	}
	return true
}
