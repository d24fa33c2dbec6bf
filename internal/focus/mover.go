// internal/focus/mover.go
package focus

import (
	"math"

	"github.com/chromedp/chromedp/kb"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/dom"
)

// Mover turns its focusable descendants into one list or grid navigated with arrow keys.
type Mover struct {
	inst    *Instance
	el      *html.Node
	props   schemas.MoverProps
	current dom.WeakElement
}

func newMover(inst *Instance, el *html.Node, props schemas.MoverProps) *Mover {
	return &Mover{inst: inst, el: el, props: props}
}

func (m *Mover) Element() *html.Node       { return m.el }
func (m *Mover) Props() schemas.MoverProps { return m.props }
func (m *Mover) isSingleTabStop() bool     { return m.props.Keys == schemas.MoverKeysArrows }
func (m *Mover) remember(el *html.Node)    { m.current = dom.MakeWeak(m.inst.reg, el) }

// EntryElement is where Tab lands when entering the mover from outside: the
// remembered item when memorizing, else the default item, else the first one.
func (m *Mover) EntryElement() *html.Node {
	if m.props.Memorize {
		if el := m.current.Deref(m.inst.doc); el != nil && dom.Contains(m.el, el) && m.inst.Focusables.IsTabbable(el) {
			return el
		}
	}
	if el := m.inst.Focusables.FindDefault(m.el); el != nil && m.inst.Focusables.IsTabbable(el) {
		return el
	}
	return m.inst.Focusables.FindFirst(FindOptions{Container: m.el})
}

// Items lists the elements arrow keys move between, in document order.
func (m *Mover) Items() []*html.Node {
	return m.inst.Focusables.FindAll(FindOptions{Container: m.el})
}

// direction is the logical movement a key asks for.
type direction int

const (
	dirNone direction = iota
	dirPrev
	dirNext
	dirUp
	dirDown
	dirFirst
	dirLast
)

func (d direction) isBackward() bool {
	return d == dirPrev || d == dirUp || d == dirFirst
}

// keyDirection maps a key to a movement under the mover's axis rules.
func (m *Mover) keyDirection(key string, rtl bool) direction {
	left, right := dirPrev, dirNext
	if rtl {
		left, right = dirNext, dirPrev
	}
	switch key {
	case kb.Home:
		return dirFirst
	case kb.End:
		return dirLast
	}
	switch m.props.Direction {
	case schemas.MoverVertical:
		switch key {
		case kb.ArrowUp:
			return dirPrev
		case kb.ArrowDown:
			return dirNext
		}
	case schemas.MoverHorizontal:
		switch key {
		case kb.ArrowLeft:
			return left
		case kb.ArrowRight:
			return right
		}
	case schemas.MoverGrid:
		switch key {
		case kb.ArrowLeft:
			return left
		case kb.ArrowRight:
			return right
		case kb.ArrowUp:
			return dirUp
		case kb.ArrowDown:
			return dirDown
		}
	default:
		switch key {
		case kb.ArrowLeft:
			return left
		case kb.ArrowRight:
			return right
		case kb.ArrowUp:
			return dirPrev
		case kb.ArrowDown:
			return dirNext
		}
	}
	return dirNone
}

// move computes the arrow-key destination inside the mover. handled is false
// when the key does not apply to this mover's axis. A nil destination with
// handled set means focus stays where it is.
func (m *Mover) move(from *html.Node, key string, rtl bool) (next *html.Node, handled bool) {
	dir := m.keyDirection(key, rtl)
	if dir == dirNone {
		return nil, false
	}
	items := m.Items()
	next = pickDirectional(m.inst.host, items, from, dir)
	if next == nil && m.props.Cyclic && len(items) > 0 {
		if dir.isBackward() {
			next = items[len(items)-1]
		} else {
			next = items[0]
		}
	}
	if next == from {
		next = nil
	}
	return next, true
}

// pickDirectional chooses the element of items, which must be in document
// order, reached from anchor by dir. It returns nil at an edge.
func pickDirectional(host boxer, items []*html.Node, anchor *html.Node, dir direction) *html.Node {
	if len(items) == 0 {
		return nil
	}
	switch dir {
	case dirFirst:
		return items[0]
	case dirLast:
		return items[len(items)-1]
	case dirPrev:
		for n := len(items) - 1; n >= 0; n-- {
			if dom.Compare(items[n], anchor) < 0 {
				return items[n]
			}
		}
		return nil
	case dirNext:
		for _, it := range items {
			if dom.Compare(it, anchor) > 0 {
				return it
			}
		}
		return nil
	case dirUp, dirDown:
		return pickRow(host, items, anchor, dir == dirDown)
	}
	return nil
}

type boxer interface {
	BoundingBox(n *html.Node) (dom.Rect, bool)
}

// pickRow scans from anchor in document order until the first candidate whose
// top edge leaves the anchor's row, then takes the candidate of that row whose
// horizontal centre is nearest the anchor's.
func pickRow(host boxer, items []*html.Node, anchor *html.Node, down bool) *html.Node {
	from, ok := host.BoundingBox(anchor)
	if !ok {
		return nil
	}

	ordered := items
	if !down {
		ordered = make([]*html.Node, len(items))
		for n, it := range items {
			ordered[len(items)-1-n] = it
		}
	}

	var (
		best     *html.Node
		bestDist = math.Inf(1)
		rowTop   float64
		inRow    bool
	)
	for _, it := range ordered {
		cmp := dom.Compare(it, anchor)
		if (down && cmp <= 0) || (!down && cmp >= 0) {
			continue
		}
		box, ok := host.BoundingBox(it)
		if !ok {
			continue
		}
		if !inRow {
			if box.Top() == from.Top() {
				continue
			}
			inRow = true
			rowTop = box.Top()
		} else if box.Top() != rowTop {
			break
		}
		if d := math.Abs(box.CenterX() - from.CenterX()); d < bestDist {
			best, bestDist = it, d
		}
	}
	return best
}

// moverAncestors lists the movers containing el, nearest first, el's own included.
func (i *Instance) moverAncestors(el *html.Node) []*Mover {
	var out []*Mover
	for cur := el; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if m := i.MoverOf(cur); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// memorizeMovers records el as the current item of every mover containing it.
func (i *Instance) memorizeMovers(el *html.Node) {
	for _, m := range i.moverAncestors(el) {
		if m.el != el {
			m.remember(el)
		}
	}
}
