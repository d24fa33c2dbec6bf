// internal/focus/deloser.go
package focus

import (
	"slices"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/dom"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

const deloserStackSize = 10

type deloserItem struct {
	ref   dom.WeakElement
	xpath string
}

// Deloser remembers recently focused elements of its container so focus can
// be put back when the focused element disappears.
type Deloser struct {
	inst  *Instance
	el    *html.Node
	uid   string
	props schemas.DeloserProps

	snapshot int
	stacks   [][]deloserItem
}

func newDeloser(inst *Instance, el *html.Node, props schemas.DeloserProps) *Deloser {
	return &Deloser{inst: inst, el: el, uid: inst.reg.UID(el), props: props, stacks: make([][]deloserItem, 1)}
}

func (d *Deloser) Element() *html.Node         { return d.el }
func (d *Deloser) Props() schemas.DeloserProps { return d.props }
func (d *Deloser) Snapshot() int               { return d.snapshot }

// SetSnapshot switches to the history of snapshot index, creating it if needed.
func (d *Deloser) SetSnapshot(index int) {
	if index < 0 {
		return
	}
	for len(d.stacks) <= index {
		d.stacks = append(d.stacks, nil)
	}
	d.snapshot = index
}

// ResetSnapshots drops every snapshot's history.
func (d *Deloser) ResetSnapshots() {
	d.stacks = make([][]deloserItem, 1)
	d.snapshot = 0
}

// push records el as the most recent element, once.
func (d *Deloser) push(el *html.Node) {
	uid := d.inst.reg.UID(el)
	stack := d.stacks[d.snapshot]
	if len(stack) > 0 && stack[0].ref.UID() == uid {
		return
	}
	stack = slices.DeleteFunc(stack, func(it deloserItem) bool { return it.ref.UID() == uid })
	stack = slices.Insert(stack, 0, deloserItem{ref: dom.MakeWeak(d.inst.reg, el), xpath: dom.GenerateUniqueXPath(el)})
	if len(stack) > deloserStackSize {
		stack = stack[:deloserStackSize]
	}
	d.stacks[d.snapshot] = stack
}

// History returns the live elements of the current snapshot, most recent first.
func (d *Deloser) History() []*html.Node {
	var out []*html.Node
	for _, it := range d.stacks[d.snapshot] {
		if el := it.ref.Deref(d.inst.doc); el != nil {
			out = append(out, el)
		}
	}
	return out
}

// HistoryLen counts the entries of the current snapshot, live or not.
func (d *Deloser) HistoryLen() int { return len(d.stacks[d.snapshot]) }

// fromHistory returns the most recent entry that can take focus again. A
// removed element is looked up by its selector in case it was re-created.
func (d *Deloser) fromHistory() *html.Node {
	f := d.inst.Focusables
	for _, it := range d.stacks[d.snapshot] {
		if el := it.ref.Deref(d.inst.doc); el != nil {
			if dom.Contains(d.el, el) && f.IsFocusable(el) {
				return el
			}
			continue
		}
		if it.xpath == "" {
			continue
		}
		if el := dom.FindByXPath(d.inst.doc.Root(), it.xpath); el != nil && dom.Contains(d.el, el) && f.IsFocusable(el) {
			return el
		}
	}
	return nil
}

func (d *Deloser) defaultElement() *html.Node {
	return d.inst.Focusables.FindDefault(d.el)
}

func (d *Deloser) firstElement() *html.Node {
	return d.inst.Focusables.FindFirst(FindOptions{Container: d.el})
}

// rootHistory is the MRU list of delosers used inside one root.
type rootHistory struct {
	root     *Root
	delosers []*Deloser
}

func (h *rootHistory) touch(d *Deloser) {
	h.delosers = slices.DeleteFunc(h.delosers, func(x *Deloser) bool { return x == d })
	h.delosers = slices.Insert(h.delosers, 0, d)
	if len(h.delosers) > deloserStackSize {
		h.delosers = h.delosers[:deloserStackSize]
	}
}

// RestoreOptions tunes one restoration.
type RestoreOptions struct {
	// Force restores even while something is focused.
	Force bool
	// Order overrides every configured restore order.
	Order schemas.RestoreFocusOrder
}

// DeloserAPI keeps the focus history of every root and restores focus after loss.
type DeloserAPI struct {
	inst    *Instance
	history []*rootHistory

	pending  *scheduler.Debouncer
	lostEl   *html.Node
	force    bool
	failed   listeners[*html.Node]
	restored listeners[*html.Node]
}

func newDeloserAPI(inst *Instance) *DeloserAPI {
	a := &DeloserAPI{inst: inst}
	a.pending = scheduler.NewDebouncer(inst.sched, inst.cfg.DeloserRestoreDelay, func() {
		force := a.force
		a.force = false
		a.Restore(RestoreOptions{Force: force})
	})
	return a
}

func (a *DeloserAPI) dispose() {
	a.pending.Cancel()
	a.history = nil
	a.lostEl = nil
	a.failed.clear()
	a.restored.clear()
}

// OnRestoreFailed registers fn for restorations that found no local candidate.
// fn receives the element whose loss triggered the attempt, if known.
func (a *DeloserAPI) OnRestoreFailed(fn func(lost *html.Node)) (unsubscribe func()) {
	return a.failed.add(fn)
}

// OnRestored registers fn for successful restorations.
func (a *DeloserAPI) OnRestored(fn func(el *html.Node)) (unsubscribe func()) {
	return a.restored.add(fn)
}

// Pending reports whether a restoration is scheduled.
func (a *DeloserAPI) Pending() bool { return a.pending.Pending() }

// deloserFor returns the innermost deloser holding el.
func (a *DeloserAPI) deloserFor(el *html.Node) *Deloser {
	for cur := el; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if d := a.inst.DeloserOf(cur); d != nil {
			return d
		}
	}
	return nil
}

func (a *DeloserAPI) handleFocus(el *html.Node) {
	a.pending.Cancel()
	a.force = false

	d := a.deloserFor(el)
	if d == nil {
		return
	}
	if m := a.inst.Modalizer.active; m != nil && !dom.Contains(m.el, el) {
		return
	}
	ctx := a.inst.ResolveContext(el, ResolveOptions{})
	if ctx == nil {
		return
	}
	h := a.rootHistory(ctx.Root)
	h.touch(d)
	d.push(el)
}

// rootHistory returns the history of root, moving it to the front.
func (a *DeloserAPI) rootHistory(root *Root) *rootHistory {
	idx := slices.IndexFunc(a.history, func(h *rootHistory) bool { return h.root.el == root.el })
	var h *rootHistory
	if idx >= 0 {
		h = a.history[idx]
		h.root = root
		a.history = slices.Delete(a.history, idx, idx+1)
	} else {
		h = &rootHistory{root: root}
	}
	a.history = slices.Insert(a.history, 0, h)
	if len(a.history) > a.inst.cfg.DeloserHistorySize {
		a.history = a.history[:a.inst.cfg.DeloserHistorySize]
	}
	return h
}

func (a *DeloserAPI) remove(d *Deloser) {
	delete(a.inst.delosers, d.uid)
	for _, h := range a.history {
		h.delosers = slices.DeleteFunc(h.delosers, func(x *Deloser) bool { return x == d })
	}
	a.history = slices.DeleteFunc(a.history, func(h *rootHistory) bool { return len(h.delosers) == 0 })
}

// onFocusLost schedules a restoration after the focused element disappeared.
func (a *DeloserAPI) onFocusLost(el *html.Node) {
	a.lostEl = el
	a.pending.Trigger()
}

// ScheduleRestore queues a debounced restoration. A forced one runs even if
// the lost element still exists.
func (a *DeloserAPI) ScheduleRestore(force bool) {
	a.force = a.force || force
	a.pending.Trigger()
}

// Restore puts focus back on the best remaining candidate and reports success.
func (a *DeloserAPI) Restore(opts RestoreOptions) bool {
	if !a.inst.alive("Restore") {
		return false
	}
	lost := a.lostEl
	a.lostEl = nil

	if !opts.Force {
		if a.inst.Focused.Element() != nil {
			return false
		}
		if lost != nil && a.inst.doc.IsAttached(lost) && a.inst.Focusables.IsFocusable(lost) {
			// Focus was dropped on purpose; the element is still there.
			return false
		}
	}

	kbd := a.inst.Keyboard.IsNavigatingWithKeyboard()
	for _, h := range slices.Clone(a.history) {
		if !a.inst.doc.IsAttached(h.root.el) {
			continue
		}
		for _, d := range slices.Clone(h.delosers) {
			if !a.inst.doc.IsAttached(d.el) {
				continue
			}
			order := a.order(opts.Order, h.root, d)
			for _, next := range a.candidates(order, h.root, d, kbd) {
				el := next()
				if el == nil {
					continue
				}
				if a.inst.Focused.focusWith(el, false, true) {
					a.inst.logger.Debug("Focus restored.",
						zap.String("element", dom.Describe(el)),
						zap.Stringer("order", order))
					a.restored.emit(el)
					return true
				}
			}
		}
	}

	a.inst.logger.Debug("No local candidate to restore focus to.")
	a.failed.emit(lost)
	return false
}

// order resolves the restore order: explicit override, then root, then deloser.
func (a *DeloserAPI) order(override schemas.RestoreFocusOrder, root *Root, d *Deloser) schemas.RestoreFocusOrder {
	for _, o := range []schemas.RestoreFocusOrder{override, root.props.RestoreFocusOrder, d.props.RestoreFocusOrder} {
		if o != schemas.RestoreUnset {
			return o
		}
	}
	return schemas.RestoreDeloserDefault
}

// candidates lists the restoration lookups in priority order.
func (a *DeloserAPI) candidates(order schemas.RestoreFocusOrder, root *Root, d *Deloser, kbd bool) []func() *html.Node {
	f := a.inst.Focusables
	history := d.fromHistory
	def := d.defaultElement
	first := func() *html.Node {
		if !kbd {
			return nil
		}
		return d.firstElement()
	}
	firstAlways := d.firstElement
	rootDefault := func() *html.Node { return f.FindDefault(root.el) }
	rootFirst := func() *html.Node { return f.FindFirst(FindOptions{Container: root.el}) }

	switch order {
	case schemas.RestoreHistory:
		return []func() *html.Node{history, def, first, rootDefault}
	case schemas.RestoreDeloserFirst:
		return []func() *html.Node{firstAlways, history, def}
	case schemas.RestoreRootDefault:
		return []func() *html.Node{rootDefault, rootFirst, history}
	case schemas.RestoreRootFirst:
		return []func() *html.Node{rootFirst, rootDefault, history}
	}
	return []func() *html.Node{def, history, first, rootDefault}
}
