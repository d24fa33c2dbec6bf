// internal/focus/keyboard.go
package focus

import (
	"golang.org/x/net/html"
)

// KeyboardNavigationState tracks whether the user is driving focus with the keyboard.
type KeyboardNavigationState struct {
	inst       *Instance
	navigating bool
	subs       listeners[bool]
}

func newKeyboardNavigationState(inst *Instance) *KeyboardNavigationState {
	return &KeyboardNavigationState{inst: inst}
}

func (k *KeyboardNavigationState) IsNavigatingWithKeyboard() bool { return k.navigating }

// Set changes the state and notifies subscribers on change.
func (k *KeyboardNavigationState) Set(navigating bool) {
	if k.navigating == navigating {
		return
	}
	k.navigating = navigating
	k.subs.emit(navigating)
}

func (k *KeyboardNavigationState) Subscribe(fn func(bool)) (unsubscribe func()) {
	return k.subs.add(fn)
}

// OutlineState tracks the element that should show a keyboard focus outline.
type OutlineState struct {
	inst     *Instance
	outlined *html.Node
	subs     listeners[*html.Node]
}

func newOutlineState(inst *Instance) *OutlineState {
	return &OutlineState{inst: inst}
}

// Outlined returns the outlined element or nil.
func (o *OutlineState) Outlined() *html.Node { return o.outlined }

func (o *OutlineState) Subscribe(fn func(*html.Node)) (unsubscribe func()) {
	return o.subs.add(fn)
}

func (o *OutlineState) handleFocus(el *html.Node, d FocusedElementDetails) {
	var next *html.Node
	if el != nil && (d.IsByKey || o.inst.Keyboard.navigating) && !o.inst.outlineIgnored(el) {
		next = el
	}
	o.set(next)
}

func (o *OutlineState) set(el *html.Node) {
	if o.outlined == el {
		return
	}
	o.outlined = el
	o.subs.emit(el)
}

// HandlePointerDown reports pointer input on el: keyboard mode ends, the
// outline goes away and the groupper under the pointer becomes current.
func (i *Instance) HandlePointerDown(el *html.Node) {
	if i.disposed {
		return
	}
	i.Keyboard.Set(false)
	i.Outline.set(nil)
	if gs := i.groupperAncestors(el); len(gs) > 0 {
		gs[0].MakeCurrent()
	}
}

// HandleScroll reports that the viewport moved; groupper visibility is
// recomputed once per burst.
func (i *Instance) HandleScroll() {
	if i.disposed {
		return
	}
	for _, u := range i.ubers {
		u.scheduleVisibility()
	}
}
