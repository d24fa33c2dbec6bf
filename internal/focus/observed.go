// internal/focus/observed.go
package focus

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/dom"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

// ObservedChange reports an observed name appearing or going away.
type ObservedChange struct {
	Name    string
	Element *html.Node
	Added   bool
}

type observedEntry struct {
	el   *html.Node
	name string
}

type observedWaiter struct {
	name  string
	cb    func(*html.Node)
	timer scheduler.Timer
	done  bool
}

// ObservedAPI lets callers wait for elements by logical name.
type ObservedAPI struct {
	inst    *Instance
	entries map[string]observedEntry
	waiters map[string][]*observedWaiter
	changes listeners[ObservedChange]
}

func newObservedAPI(inst *Instance) *ObservedAPI {
	return &ObservedAPI{
		inst:    inst,
		entries: make(map[string]observedEntry),
		waiters: make(map[string][]*observedWaiter),
	}
}

func (a *ObservedAPI) count() int { return len(a.entries) }

// OnChange registers fn for observed names appearing and disappearing.
func (a *ObservedAPI) OnChange(fn func(ObservedChange)) (unsubscribe func()) {
	return a.changes.add(fn)
}

// Element returns the attached element observed under name, first in document order.
func (a *ObservedAPI) Element(name string) *html.Node {
	var best *html.Node
	for _, e := range a.entries {
		if e.name != name || !a.inst.doc.IsAttached(e.el) {
			continue
		}
		if best == nil || dom.Compare(e.el, best) < 0 {
			best = e.el
		}
	}
	return best
}

// Names lists the observed names currently present.
func (a *ObservedAPI) Names() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range a.entries {
		if !seen[e.name] {
			seen[e.name] = true
			out = append(out, e.name)
		}
	}
	return out
}

// WaitElement calls cb with the element observed under name as soon as it
// exists, or with nil once timeout passes. A non-positive timeout uses the
// configured default. cb always runs on the scheduler, exactly once.
func (a *ObservedAPI) WaitElement(name string, timeout time.Duration, cb func(*html.Node)) {
	if !a.inst.alive("WaitElement") {
		a.inst.sched.Post(func() { cb(nil) })
		return
	}
	if el := a.Element(name); el != nil {
		a.inst.sched.Post(func() { cb(el) })
		return
	}
	if timeout <= 0 {
		timeout = a.inst.cfg.ObservedWaitTimeout
	}
	w := &observedWaiter{name: name, cb: cb}
	w.timer = a.inst.sched.AfterFunc(timeout, func() {
		if w.done {
			return
		}
		w.done = true
		a.dropWaiter(w)
		a.inst.logger.Debug("Timed out waiting for observed element.", zap.String("name", name))
		cb(nil)
	})
	a.waiters[name] = append(a.waiters[name], w)
}

// RequestFocus waits for the element observed under name and focuses it.
// cb, when given, receives whether focus moved.
func (a *ObservedAPI) RequestFocus(name string, timeout time.Duration, cb func(bool)) {
	a.WaitElement(name, timeout, func(el *html.Node) {
		ok := el != nil && a.inst.Focused.Focus(el, FocusOptions{})
		if cb != nil {
			cb(ok)
		}
	})
}

func (a *ObservedAPI) dropWaiter(w *observedWaiter) {
	list := a.waiters[w.name]
	for n, x := range list {
		if x == w {
			list = append(list[:n:n], list[n+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(a.waiters, w.name)
	} else {
		a.waiters[w.name] = list
	}
}

func (a *ObservedAPI) upsert(el *html.Node, uid string, props schemas.ObservedProps) {
	if prev, ok := a.entries[uid]; ok {
		if prev.name == props.Name {
			return
		}
		a.remove(uid)
	}
	a.entries[uid] = observedEntry{el: el, name: props.Name}
	a.changes.emit(ObservedChange{Name: props.Name, Element: el, Added: true})
	a.resolve(props.Name, el)
}

func (a *ObservedAPI) remove(uid string) {
	e, ok := a.entries[uid]
	if !ok {
		return
	}
	delete(a.entries, uid)
	a.changes.emit(ObservedChange{Name: e.name, Element: e.el})
}

func (a *ObservedAPI) resolve(name string, el *html.Node) {
	list := a.waiters[name]
	delete(a.waiters, name)
	for _, w := range list {
		if w.done {
			continue
		}
		w.done = true
		w.timer.Stop()
		cb := w.cb
		a.inst.sched.Post(func() { cb(el) })
	}
}

func (a *ObservedAPI) pruneDetached() {
	for uid, e := range a.entries {
		if !a.inst.doc.IsAttached(e.el) {
			a.remove(uid)
		}
	}
}

func (a *ObservedAPI) dispose() {
	for _, list := range a.waiters {
		for _, w := range list {
			w.done = true
			w.timer.Stop()
		}
	}
	a.waiters = make(map[string][]*observedWaiter)
	a.entries = make(map[string]observedEntry)
	a.changes.clear()
}
