// internal/focus/keys.go
package focus

import (
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/dom"
)

func isArrow(key string) bool {
	switch key {
	case kb.ArrowUp, kb.ArrowDown, kb.ArrowLeft, kb.ArrowRight:
		return true
	}
	return false
}

// HandleKeyDown runs the navigation decision for one key press and reports
// whether the key was consumed. An unhandled key keeps its default action.
func (i *Instance) HandleKeyDown(ev schemas.KeyEventData) bool {
	if i.disposed {
		return false
	}
	s := i.Focused
	if s.inKeyDown || ev.HasCommandModifier() {
		return false
	}
	s.inKeyDown = true
	defer func() { s.inKeyDown = false }()

	cur := s.Element()
	if cur == nil {
		return false
	}
	ctx := i.ResolveContext(cur, ResolveOptions{CheckRtl: true})
	if ctx == nil {
		return false
	}

	var handled bool
	switch key := ev.Key; {
	case key == kb.Tab:
		handled = i.moveStructural(cur, ctx, ev)
		i.Keyboard.Set(true)
	case isArrow(key) || key == kb.Home || key == kb.End:
		if dom.IsTextEntry(cur) {
			return false
		}
		if ctx.Mover != nil && !ctx.IsGroupperFirst {
			handled = i.moveStructural(cur, ctx, ev)
		} else if ctx.Groupper != nil {
			handled = i.moveAmongGrouppers(cur, ctx, ev)
		}
	case key == kb.PageUp || key == kb.PageDown:
		if ctx.Groupper != nil && !dom.IsTextEntry(cur) {
			handled = i.moveAmongGrouppers(cur, ctx, ev)
		}
	case key == kb.Enter:
		if ctx.Groupper != nil {
			handled = i.enterGroupper(cur, ctx.Groupper)
		}
	case key == kb.Escape:
		if ctx.Groupper != nil {
			handled = i.escapeGroupper(cur, ctx.Groupper)
		}
	}

	if handled {
		i.Keyboard.Set(true)
	}
	i.logger.Debug("Key dispatched.",
		zap.Stringer("key", ev),
		zap.String("from", dom.Describe(cur)),
		zap.Bool("handled", handled))
	return handled
}

// moveStructural handles Tab everywhere and arrows inside an engaged mover.
func (i *Instance) moveStructural(cur *html.Node, ctx *Context, ev schemas.KeyEventData) bool {
	var (
		next   *html.Node
		isPrev bool
	)

	if ev.Key == kb.Tab {
		isPrev = ev.Shift()
		anchor := cur
		if m := ctx.Mover; m != nil && m.isSingleTabStop() && !i.insideEnteredGroupper(ctx) {
			if isPrev {
				anchor = m.el
			} else if last := dom.LastElement(m.el); last != nil {
				anchor = last
			}
		}
		opts := FindOptions{Container: ctx.Root.el, From: anchor}
		if isPrev {
			next = i.Focusables.FindPrev(opts)
		} else {
			next = i.Focusables.FindNext(opts)
		}
	} else {
		var handled bool
		next, handled = ctx.Mover.move(cur, ev.Key, ctx.IsRtl)
		if !handled {
			return false
		}
		if next == nil {
			// Non-cyclic mover at its edge: focus stays, default action suppressed.
			return true
		}
		return i.commit(cur, ctx, next)
	}

	if g := i.enteredLimitedGroupper(cur); g != nil && (next == nil || next == g.el || !dom.Contains(g.el, next)) {
		if g.props.TabbableLimit != schemas.LimitedTrapFocus {
			return true
		}
		wrap := FindOptions{Container: g.el}
		if isPrev {
			next = i.Focusables.FindLast(wrap)
		} else {
			next = i.Focusables.FindFirst(wrap)
		}
		if next == nil {
			return true
		}
	}

	if next == nil && ctx.Mover != nil && ctx.Mover.props.Cyclic {
		wrap := FindOptions{Container: ctx.Mover.el}
		if isPrev {
			next = i.Focusables.FindLast(wrap)
		} else {
			next = i.Focusables.FindFirst(wrap)
		}
	}

	if next == nil {
		if m := i.Modalizer.active; m != nil && m.traps() && dom.Contains(m.el, cur) {
			wrap := FindOptions{Container: m.el}
			if isPrev {
				next = i.Focusables.FindLast(wrap)
			} else {
				next = i.Focusables.FindFirst(wrap)
			}
		} else {
			var handled bool
			next, handled = ctx.Root.movedOut(cur, isPrev)
			if next == nil {
				return handled
			}
		}
		if next == nil {
			return true
		}
	}
	return i.commit(cur, ctx, next)
}

// commit checks the modalizer veto and moves focus to next.
func (i *Instance) commit(cur *html.Node, ctx *Context, next *html.Node) bool {
	if next == cur {
		return true
	}
	if m := ctx.Modalizer; m != nil && !dom.Contains(m.el, next) && i.Modalizer.vetoFocusOut(m, next) {
		i.logger.Debug("Modalizer vetoed focus leaving it.", zap.String("id", m.props.ID))
		return true
	}
	i.Focused.focusByKey(next)
	return true
}

// insideEnteredGroupper reports whether focus sits in an entered limited
// groupper that is nearer than the mover.
func (i *Instance) insideEnteredGroupper(ctx *Context) bool {
	g := ctx.Groupper
	return ctx.IsGroupperFirst && g != nil && g.IsLimited() && g.unlimited
}

// enteredLimitedGroupper returns the innermost limited groupper around el
// that has been entered and does not have el as its own element.
func (i *Instance) enteredLimitedGroupper(el *html.Node) *Groupper {
	for _, g := range i.groupperAncestors(el) {
		if g.IsLimited() && g.unlimited && g.el != el {
			return g
		}
	}
	return nil
}

// enterGroupper releases a limited groupper and steps inside it.
func (i *Instance) enterGroupper(cur *html.Node, g *Groupper) bool {
	if !g.IsLimited() || g.unlimited || !g.isEntryPoint(cur) {
		return false
	}
	g.SetUnlimited(true)
	next := i.Focusables.FindNext(FindOptions{Container: g.el, From: cur})
	if next == nil {
		return true
	}
	i.Focused.focusByKey(next)
	return true
}

// escapeGroupper restores the tab stop of the groupper around focus, or of its
// parent when focus already sits on the groupper's entry.
func (i *Instance) escapeGroupper(cur *html.Node, g *Groupper) bool {
	if g.IsLimited() {
		entry := g.EntryElement()
		if entry != nil && cur != entry {
			g.SetUnlimited(false)
			g.MakeCurrent()
			i.Focused.focusByKey(entry)
			return true
		}
		if g.unlimited {
			g.SetUnlimited(false)
			return true
		}
	}

	parent := i.nearestGroupper(g.el)
	if parent == nil {
		return false
	}
	parent.SetUnlimited(false)
	entry := parent.EntryElement()
	if entry == nil {
		return false
	}
	parent.MakeCurrent()
	if entry != cur {
		i.Focused.focusByKey(entry)
	}
	return true
}

// moveAmongGrouppers navigates between sibling grouppers while focus sits on
// a groupper's entry.
func (i *Instance) moveAmongGrouppers(cur *html.Node, ctx *Context, ev schemas.KeyEventData) bool {
	g := ctx.Groupper
	if g.uber == nil || g.unlimited || !g.isEntryPoint(cur) {
		return false
	}
	siblings := g.uber.Grouppers()
	if len(siblings) < 2 {
		return false
	}
	elems := make([]*html.Node, len(siblings))
	for n, s := range siblings {
		elems[n] = s.el
	}

	var dest *html.Node
	switch ev.Key {
	case kb.PageUp, kb.PageDown:
		dest = i.pageAmong(elems, g.el, ev.Key == kb.PageDown)
	default:
		dir := groupperKeyDirection(ev.Key, ctx.IsRtl)
		dest = pickDirectional(i.host, elems, g.el, dir)
	}
	if dest == nil || dest == g.el {
		return false
	}
	target := i.GroupperOf(dest)
	entry := target.EntryElement()
	if entry == nil {
		return false
	}
	target.MakeCurrent()
	i.Focused.focusByKey(entry)
	return true
}

func groupperKeyDirection(key string, rtl bool) direction {
	switch key {
	case kb.Home:
		return dirFirst
	case kb.End:
		return dirLast
	case kb.ArrowUp:
		return dirPrev
	case kb.ArrowDown:
		return dirNext
	case kb.ArrowLeft:
		if rtl {
			return dirNext
		}
		return dirPrev
	case kb.ArrowRight:
		if rtl {
			return dirPrev
		}
		return dirNext
	}
	return dirNone
}

// pageAmong walks siblings from the current one while the next stays
// vertically visible. When the immediate neighbour is already out of view it
// is scrolled in and becomes the destination.
func (i *Instance) pageAmong(elems []*html.Node, from *html.Node, down bool) *html.Node {
	idx := -1
	for n, el := range elems {
		if el == from {
			idx = n
		}
	}
	if idx < 0 {
		return nil
	}
	step := 1
	if !down {
		step = -1
	}
	viewport := i.host.Viewport()
	var dest *html.Node
	for n := idx + step; n >= 0 && n < len(elems); n += step {
		box, ok := i.host.BoundingBox(elems[n])
		if !ok {
			continue
		}
		if !box.VerticallyVisibleIn(viewport) {
			if dest == nil {
				i.host.ScrollIntoView(elems[n])
				dest = elems[n]
			}
			break
		}
		dest = elems[n]
	}
	return dest
}
