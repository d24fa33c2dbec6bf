// internal/focus/groupper.go
package focus

import (
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/dom"
)

// Groupper is a focus island. A limited groupper is a single tab stop until
// it is entered, after which Tab moves among its own focusables.
type Groupper struct {
	inst  *Instance
	el    *html.Node
	uid   string
	props schemas.GroupperProps
	uber  *UberGroupper

	focused   bool
	unlimited bool
}

// GroupperState is derived from the bookkeeping of a groupper and its siblings.
type GroupperState struct {
	IsCurrent  bool
	IsPrevious bool
	IsNext     bool
	IsFirst    bool
	IsLast     bool
	IsVisible  bool
	HasFocus   bool
	IsLimited  bool
}

func newGroupper(inst *Instance, el *html.Node, props schemas.GroupperProps) *Groupper {
	g := &Groupper{inst: inst, el: el, uid: inst.reg.UID(el), props: props}
	g.attach()
	return g
}

func (g *Groupper) attach() {
	parent := dom.ParentElement(g.el)
	if parent == nil {
		return
	}
	g.uber = g.inst.uberFor(parent)
	g.uber.add(g)
}

// rehome moves the groupper to the UberGroupper of its current parent after a move in the tree.
func (g *Groupper) rehome() {
	parent := dom.ParentElement(g.el)
	if g.uber != nil && g.uber.el == parent {
		return
	}
	if g.uber != nil {
		g.uber.remove(g)
		g.uber = nil
	}
	g.attach()
}

func (g *Groupper) dispose() {
	if g.uber != nil {
		g.uber.remove(g)
		g.uber = nil
	}
	g.focused = false
	g.unlimited = false
}

func (g *Groupper) Element() *html.Node               { return g.el }
func (g *Groupper) Props() schemas.GroupperProps      { return g.props }
func (g *Groupper) UberGroupper() *UberGroupper       { return g.uber }
func (g *Groupper) IsLimited() bool                   { return g.props.TabbableLimit != schemas.Unlimited }
func (g *Groupper) IsEntered() bool                   { return g.unlimited }
func (g *Groupper) HasFocus() bool                    { return g.focused }
func (g *Groupper) Limit() schemas.GroupperFocusLimit { return g.props.TabbableLimit }

// SetUnlimited releases (true) or restores (false) the single tab stop of a limited groupper.
func (g *Groupper) SetUnlimited(unlimited bool) {
	g.unlimited = unlimited
}

// EntryElement is where focus lands when the groupper is reached as one tab
// stop: the groupper element when it is focusable, else its first focusable descendant.
func (g *Groupper) EntryElement() *html.Node {
	if g.inst.Focusables.IsFocusable(g.el) {
		return g.el
	}
	return g.firstDescendant()
}

func (g *Groupper) firstDescendant() *html.Node {
	return g.inst.Focusables.FindFirst(FindOptions{Container: g.el, IgnoreGroupper: true, IgnoreModalizer: true})
}

// isEntryPoint reports whether focus on el counts as sitting at the door of the groupper.
func (g *Groupper) isEntryPoint(el *html.Node) bool {
	return el == g.el || el == g.firstDescendant()
}

// MakeCurrent marks g and every groupper above it current at their level.
func (g *Groupper) MakeCurrent() {
	for cur := g; cur != nil; cur = g.inst.nearestGroupper(cur.el) {
		if cur.uber != nil {
			cur.uber.setCurrent(cur)
		}
	}
}

// State derives the current state of the groupper.
func (g *Groupper) State() GroupperState {
	st := GroupperState{HasFocus: g.focused, IsLimited: g.IsLimited()}
	if g.uber == nil {
		st.IsCurrent, st.IsFirst, st.IsLast = true, true, true
		st.IsVisible = g.inst.Focusables.IsVisible(g.el)
		return st
	}
	siblings := g.uber.Grouppers()
	current := g.uber.Current()
	idx, curIdx := -1, -1
	for n, s := range siblings {
		if s == g {
			idx = n
		}
		if s == current {
			curIdx = n
		}
	}
	st.IsCurrent = g == current
	st.IsFirst = idx == 0
	st.IsLast = idx == len(siblings)-1
	if curIdx >= 0 {
		st.IsPrevious = idx == curIdx-1
		st.IsNext = idx == curIdx+1
	}
	st.IsVisible = g.uber.visibility(g) != dom.Invisible
	return st
}

// updateGrouppers applies the enter and leave transitions for a focus move to el.
func (i *Instance) updateGrouppers(el *html.Node) {
	now := i.groupperAncestors(el)
	inNow := make(map[*Groupper]bool, len(now))
	for _, g := range now {
		inNow[g] = true
	}

	for _, g := range i.grouppers {
		if g.focused && !inNow[g] {
			g.focused = false
			g.unlimited = false
			if g.uber != nil && g.uber.focused == g {
				g.uber.focused = nil
			}
		}
	}

	for _, g := range now {
		if g.focused {
			continue
		}
		g.focused = true
		if g.uber != nil {
			g.uber.focused = g
			g.uber.setCurrent(g)
		}
		if g.IsLimited() && !g.isEntryPoint(el) {
			g.unlimited = true
		}
	}
}
