// internal/focus/modalizer.go
package focus

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/dom"
)

// Modalizer is a focus trap. While active, everything outside it is hidden
// from assistive technology and unreachable by keyboard.
type Modalizer struct {
	inst  *Instance
	el    *html.Node
	uid   string
	props schemas.ModalizerProps

	isActive  bool
	isFocused bool
}

func (m *Modalizer) ID() string                    { return m.props.ID }
func (m *Modalizer) Element() *html.Node           { return m.el }
func (m *Modalizer) Props() schemas.ModalizerProps { return m.props }
func (m *Modalizer) IsActive() bool                { return m.isActive }
func (m *Modalizer) IsFocused() bool               { return m.isFocused }

// traps reports whether m keeps focus inside while active.
func (m *Modalizer) traps() bool { return !m.props.IsOthersAccessible }

type ariaSnapshot struct {
	el    *html.Node
	value string
	had   bool
}

// ModalizerAPI owns the single active modalizer and the aria-hidden marks it placed.
type ModalizerAPI struct {
	inst    *Instance
	active  *Modalizer
	focused *Modalizer
	hidden  map[string]ariaSnapshot

	focusIn        listeners[*Modalizer]
	focusOut       listeners[*Modalizer]
	beforeFocusOut []func(m *Modalizer, next *html.Node) bool

	activations   int
	deactivations int
}

func newModalizerAPI(inst *Instance) *ModalizerAPI {
	return &ModalizerAPI{inst: inst, hidden: make(map[string]ariaSnapshot)}
}

// Active returns the active modalizer or nil.
func (a *ModalizerAPI) Active() *Modalizer { return a.active }

// ByID finds a live modalizer by its identifier.
func (a *ModalizerAPI) ByID(id string) *Modalizer {
	for _, m := range a.inst.modalizers {
		if m.props.ID == id {
			return m
		}
	}
	return nil
}

// OnFocusIn registers a hook fired once each time focus enters a modalizer.
func (a *ModalizerAPI) OnFocusIn(fn func(*Modalizer)) (unsubscribe func()) {
	return a.focusIn.add(fn)
}

// OnFocusOut registers a hook fired when focus leaves a modalizer.
func (a *ModalizerAPI) OnFocusOut(fn func(*Modalizer)) (unsubscribe func()) {
	return a.focusOut.add(fn)
}

// OnBeforeFocusOut registers a hook consulted before keyboard navigation
// leaves a modalizer. Returning true vetoes the move.
func (a *ModalizerAPI) OnBeforeFocusOut(fn func(m *Modalizer, next *html.Node) bool) {
	a.beforeFocusOut = append(a.beforeFocusOut, fn)
}

// Transitions reports how many times a modalizer was activated and deactivated.
func (a *ModalizerAPI) Transitions() (activations, deactivations int) {
	return a.activations, a.deactivations
}

func (a *ModalizerAPI) vetoFocusOut(m *Modalizer, next *html.Node) bool {
	for _, fn := range a.beforeFocusOut {
		if fn(m, next) {
			return true
		}
	}
	return false
}

func (a *ModalizerAPI) upsert(el *html.Node, uid string, props schemas.ModalizerProps) {
	existing := a.inst.modalizers[uid]
	if strings.TrimSpace(props.ID) == "" {
		a.inst.diag.Report(DiagModalizerMissingID, "modalizer declared without an id", dom.Describe(el))
		if existing != nil {
			a.remove(existing)
		}
		return
	}
	if other := a.ByID(props.ID); other != nil && other.uid != uid {
		a.inst.diag.Report(DiagModalizerDuplicateID,
			fmt.Sprintf("modalizer id %q is already used by %s", props.ID, dom.Describe(other.el)),
			dom.Describe(el))
		return
	}

	if existing != nil {
		changed := existing.props != props
		existing.props = props
		if changed && existing.isActive {
			// Re-apply marks for the new accessibility flags.
			a.SetActive(nil)
			a.SetActive(existing)
		}
		return
	}
	a.inst.modalizers[uid] = &Modalizer{inst: a.inst, el: el, uid: uid, props: props}
}

func (a *ModalizerAPI) remove(m *Modalizer) {
	if a.active == m {
		a.SetActive(nil)
	}
	if a.focused == m {
		a.focused = nil
	}
	delete(a.inst.modalizers, m.uid)
}

// SetActive makes m the active modalizer, deactivating and unmarking the
// previous one first. A nil m deactivates.
func (a *ModalizerAPI) SetActive(m *Modalizer) {
	if a.active == m {
		return
	}
	if prev := a.active; prev != nil {
		a.restoreMarks()
		prev.isActive = false
		a.active = nil
		a.deactivations++
		a.inst.logger.Debug("Modalizer deactivated.", zap.String("id", prev.props.ID))
	}
	if m == nil {
		return
	}
	m.isActive = true
	a.active = m
	a.activations++
	if m.traps() {
		if body := a.inst.doc.Body(); body != nil {
			a.markOthers(body, m)
		}
	}
	a.inst.logger.Debug("Modalizer activated.", zap.String("id", m.props.ID), zap.Int("hidden", len(a.hidden)))
}

// markOthers hides every subtree under parent that holds neither the active
// modalizer nor an always-accessible one.
func (a *ModalizerAPI) markOthers(parent *html.Node, active *Modalizer) {
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch strings.ToLower(c.Data) {
		case "script", "style", "template":
			continue
		}
		if a.keepsVisible(c, active) {
			continue
		}
		if a.holdsVisible(c, active) {
			a.markOthers(c, active)
			continue
		}
		a.hide(c)
	}
}

func (a *ModalizerAPI) keepsVisible(n *html.Node, active *Modalizer) bool {
	if n == active.el {
		return true
	}
	m := a.inst.ModalizerOf(n)
	return m != nil && m.props.IsAlwaysAccessible
}

func (a *ModalizerAPI) holdsVisible(n *html.Node, active *Modalizer) bool {
	if dom.Contains(n, active.el) {
		return true
	}
	for _, m := range a.inst.modalizers {
		if m.props.IsAlwaysAccessible && dom.Contains(n, m.el) {
			return true
		}
	}
	return false
}

func (a *ModalizerAPI) hide(n *html.Node) {
	uid := a.inst.reg.UID(n)
	if _, done := a.hidden[uid]; !done {
		v, had := dom.Attr(n, "aria-hidden")
		a.hidden[uid] = ariaSnapshot{el: n, value: v, had: had}
	}
	dom.SetAttr(n, "aria-hidden", "true")
}

func (a *ModalizerAPI) restoreMarks() {
	for _, s := range a.hidden {
		if s.had {
			dom.SetAttr(s.el, "aria-hidden", s.value)
		} else {
			dom.RemoveAttr(s.el, "aria-hidden")
		}
	}
	a.hidden = make(map[string]ariaSnapshot)
}

// HiddenCount reports how many elements the active modalizer marked.
func (a *ModalizerAPI) HiddenCount() int { return len(a.hidden) }

// allows reports whether el is reachable under the active modalizer.
func (a *ModalizerAPI) allows(el *html.Node) bool {
	m := a.active
	if m == nil || !m.traps() || dom.Contains(m.el, el) {
		return true
	}
	for cur := el; cur != nil; cur = cur.Parent {
		if mm := a.inst.ModalizerOf(cur); mm != nil && mm.props.IsAlwaysAccessible {
			return true
		}
	}
	return false
}

// containing returns the innermost modalizer holding el.
func (a *ModalizerAPI) containing(el *html.Node) *Modalizer {
	for cur := el; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if m := a.inst.ModalizerOf(cur); m != nil {
			return m
		}
	}
	return nil
}

// correction returns where focus must go when el lies outside the active
// trap, or nil when el is acceptable.
func (a *ModalizerAPI) correction(el *html.Node) *html.Node {
	m := a.active
	if m == nil || !m.traps() || a.allows(el) {
		return nil
	}
	opts := FindOptions{Container: m.el}
	first := a.inst.Focusables.FindFirst(opts)
	last := a.inst.Focusables.FindLast(opts)
	if first != nil && last == nil {
		panic(fmt.Sprintf("focus: modalizer %q has a first focusable but no last one", m.props.ID))
	}
	if dom.Compare(el, m.el) > 0 {
		return last
	}
	return first
}

// handleFocus updates activation and fires the in/out hooks for a focus move to el.
func (a *ModalizerAPI) handleFocus(el *html.Node) {
	var target *Modalizer
	if el != nil {
		target = a.containing(el)
	}

	if prev := a.focused; prev != nil && prev != target {
		prev.isFocused = false
		a.focused = nil
		a.focusOut.emit(prev)
	}

	switch {
	case target != nil:
		if target != a.active && !(target.props.IsAlwaysAccessible && a.active != nil) {
			a.SetActive(target)
		}
		if !target.isFocused {
			target.isFocused = true
			a.focused = target
			a.focusIn.emit(target)
		}
	case el != nil && a.active != nil && !a.active.traps():
		a.SetActive(nil)
	}
}
