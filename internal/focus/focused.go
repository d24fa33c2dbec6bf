// internal/focus/focused.go
package focus

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/internal/dom"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

// FocusedElementDetails describes one change of the focused element.
type FocusedElementDetails struct {
	RelatedTarget *html.Node
	// IsFocusedProgrammatically is set when the change came from an explicit Focus request.
	IsFocusedProgrammatically bool
	// IsByKey is set when the change came from key navigation.
	IsByKey bool
}

// FocusOptions tunes an explicit focus request.
type FocusOptions struct {
	PreventScroll bool
	// IgnoreAccessibility focuses elements that are inert or disabled for the keyboard.
	IgnoreAccessibility bool
}

type focusChange struct {
	el      *html.Node
	details FocusedElementDetails
}

// FocusedElementState is the single source of truth for the focused element.
type FocusedElementState struct {
	inst *Instance

	current   *html.Node
	details   FocusedElementDetails
	changedAt time.Time

	subs listeners[focusChange]

	queue     []focusChange
	notifying bool

	requested *html.Node
	byKey     bool
	inKeyDown bool

	blurTimer scheduler.Timer
}

func newFocusedElementState(inst *Instance) *FocusedElementState {
	return &FocusedElementState{inst: inst}
}

func (s *FocusedElementState) dispose() {
	s.cancelBlur()
	s.subs.clear()
	s.queue = nil
	s.current = nil
}

// Element returns the focused element, or nil when nothing is focused or the
// element left the tree.
func (s *FocusedElementState) Element() *html.Node {
	if s.current == nil || !s.inst.doc.IsAttached(s.current) {
		return nil
	}
	return s.current
}

// Details returns the metadata of the last change.
func (s *FocusedElementState) Details() FocusedElementDetails { return s.details }

// ChangedAt is the scheduler time of the last change.
func (s *FocusedElementState) ChangedAt() time.Time { return s.changedAt }

// Subscribe registers fn for every settled change of the focused element.
func (s *FocusedElementState) Subscribe(fn func(el *html.Node, d FocusedElementDetails)) (unsubscribe func()) {
	return s.subs.add(func(c focusChange) { fn(c.el, c.details) })
}

// Focus asks the host to focus el and reports whether it took.
func (s *FocusedElementState) Focus(el *html.Node, opts FocusOptions) bool {
	if !s.inst.alive("Focus") || !dom.IsElement(el) {
		return false
	}
	if !s.inst.doc.IsAttached(el) {
		s.inst.diag.Report(DiagDetachedElement, "focus requested for a detached element", dom.Describe(el))
		return false
	}
	if !opts.IgnoreAccessibility && !s.inst.Focusables.IsFocusable(el) {
		return false
	}
	return s.focusWith(el, false, opts.PreventScroll)
}

// FocusDefault focuses the default element of container.
func (s *FocusedElementState) FocusDefault(container *html.Node) bool {
	el := s.inst.Focusables.FindDefault(container)
	return el != nil && s.Focus(el, FocusOptions{})
}

// FocusFirst focuses the first tabbable element of container.
func (s *FocusedElementState) FocusFirst(container *html.Node) bool {
	el := s.inst.Focusables.FindFirst(FindOptions{Container: container})
	return el != nil && s.Focus(el, FocusOptions{})
}

// FocusLast focuses the last tabbable element of container.
func (s *FocusedElementState) FocusLast(container *html.Node) bool {
	el := s.inst.Focusables.FindLast(FindOptions{Container: container})
	return el != nil && s.Focus(el, FocusOptions{})
}

// ResetFocus moves focus to container itself, giving it a temporary
// tabindex when it cannot take focus on its own.
func (s *FocusedElementState) ResetFocus(container *html.Node) bool {
	if !s.inst.alive("ResetFocus") || !dom.IsElement(container) {
		return false
	}
	if dom.IsNativelyFocusable(container) {
		return s.Focus(container, FocusOptions{IgnoreAccessibility: true})
	}
	dom.SetAttr(container, "tabindex", "-1")
	ok := s.focusWith(container, false, true)
	dom.RemoveAttr(container, "tabindex")
	return ok
}

// focusByKey moves focus as the result of key navigation.
func (s *FocusedElementState) focusByKey(el *html.Node) bool {
	return s.focusWith(el, true, false)
}

func (s *FocusedElementState) focusWith(el *html.Node, byKey, preventScroll bool) bool {
	prevReq, prevKey := s.requested, s.byKey
	s.requested, s.byKey = el, byKey
	defer func() { s.requested, s.byKey = prevReq, prevKey }()

	if !s.inst.host.Focus(el) {
		return false
	}
	if !preventScroll {
		s.inst.host.ScrollIntoView(el)
	}
	return true
}

// HandleFocusIn is the host notification that target received focus.
func (i *Instance) HandleFocusIn(target, related *html.Node) {
	if i.disposed {
		return
	}
	i.Focused.handleFocusIn(target, related)
}

// HandleFocusOut is the host notification that target lost focus. A nil
// related element means focus went nowhere.
func (i *Instance) HandleFocusOut(target, related *html.Node) {
	if i.disposed {
		return
	}
	i.Focused.handleFocusOut(target, related)
}

func (s *FocusedElementState) handleFocusIn(target, related *html.Node) {
	s.cancelBlur()

	if redirect := s.inst.Modalizer.correction(target); redirect != nil && redirect != target {
		s.inst.logger.Debug("Focus escaped the active modalizer; redirecting.",
			zap.String("target", dom.Describe(target)),
			zap.String("redirect", dom.Describe(redirect)))
		if s.focusWith(redirect, s.byKey, true) {
			return
		}
	}

	s.setVal(target, FocusedElementDetails{
		RelatedTarget:             related,
		IsFocusedProgrammatically: target == s.requested && !s.byKey,
		IsByKey:                   target == s.requested && s.byKey,
	})
}

func (s *FocusedElementState) handleFocusOut(target, related *html.Node) {
	if related != nil {
		// A focus-in follows.
		return
	}
	s.cancelBlur()
	s.blurTimer = s.inst.sched.AfterFunc(s.inst.cfg.BlurConfirmDelay, func() {
		s.blurTimer = nil
		if s.inst.disposed || s.inst.host.ActiveElement() != nil {
			return
		}
		s.lost(target)
	})
}

// lost records that focus went nowhere after being on el.
func (s *FocusedElementState) lost(el *html.Node) {
	if s.current == nil {
		return
	}
	s.setVal(nil, FocusedElementDetails{RelatedTarget: el})
	s.inst.Deloser.onFocusLost(el)
}

func (s *FocusedElementState) cancelBlur() {
	if s.blurTimer != nil {
		s.blurTimer.Stop()
		s.blurTimer = nil
	}
}

// setVal queues a change. Changes made by handlers or subscribers while a
// change is being delivered run after it, before the outermost call returns.
func (s *FocusedElementState) setVal(el *html.Node, d FocusedElementDetails) {
	s.queue = append(s.queue, focusChange{el: el, details: d})
	if s.notifying {
		return
	}
	s.notifying = true
	defer func() { s.notifying = false }()

	for len(s.queue) > 0 {
		c := s.queue[0]
		s.queue = s.queue[1:]
		s.apply(c)
	}
}

func (s *FocusedElementState) apply(c focusChange) {
	if c.el == s.current {
		return
	}
	s.current = c.el
	s.details = c.details
	s.changedAt = s.inst.sched.Now()

	i := s.inst
	i.Modalizer.handleFocus(c.el)
	i.updateGrouppers(c.el)
	if c.el != nil {
		i.memorizeMovers(c.el)
		i.Deloser.handleFocus(c.el)
	}
	i.Outline.handleFocus(c.el, c.details)

	s.subs.emit(c)
}
