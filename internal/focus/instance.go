// internal/focus/instance.go
package focus

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/config"
	"github.com/xkilldash9x/keynav/internal/dom"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

// Instance is the focus engine of one frame. Every method must be called from
// the frame's scheduler.
type Instance struct {
	cfg    config.EngineConfig
	doc    *dom.Document
	host   dom.Host
	sched  scheduler.Scheduler
	logger *zap.Logger
	reg    *dom.Registry
	diag   *Diagnostics

	roots      map[string]*Root
	grouppers  map[string]*Groupper
	ubers      map[string]*UberGroupper
	movers     map[string]*Mover
	modalizers map[string]*Modalizer
	delosers   map[string]*Deloser
	autoRoot   *Root

	movedOut []func(from *html.Node, isBackward bool)

	Focusables *Focusables
	Focused    *FocusedElementState
	Keyboard   *KeyboardNavigationState
	Outline    *OutlineState
	Modalizer  *ModalizerAPI
	Deloser    *DeloserAPI
	Observed   *ObservedAPI

	disposed bool
}

// Option customizes an Instance.
type Option func(*Instance)

// WithRegistry shares an existing registry, e.g. one filled by a declaration layer.
func WithRegistry(reg *dom.Registry) Option {
	return func(i *Instance) { i.reg = reg }
}

// New creates the focus engine for doc. When host accepts a FocusSink, the
// instance registers itself to receive native focus changes.
func New(doc *dom.Document, host dom.Host, sched scheduler.Scheduler, cfg config.EngineConfig, logger *zap.Logger, opts ...Option) *Instance {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Instance{
		cfg:        cfg,
		doc:        doc,
		host:       host,
		sched:      sched,
		logger:     logger.Named("focus"),
		roots:      make(map[string]*Root),
		grouppers:  make(map[string]*Groupper),
		ubers:      make(map[string]*UberGroupper),
		movers:     make(map[string]*Mover),
		modalizers: make(map[string]*Modalizer),
		delosers:   make(map[string]*Deloser),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.reg == nil {
		i.reg = dom.NewRegistry("e")
	}
	if i.cfg.DeloserHistorySize <= 0 {
		i.cfg.DeloserHistorySize = 10
	}
	i.diag = newDiagnostics(i.logger)

	i.Focusables = &Focusables{inst: i}
	i.Keyboard = newKeyboardNavigationState(i)
	i.Outline = newOutlineState(i)
	i.Modalizer = newModalizerAPI(i)
	i.Deloser = newDeloserAPI(i)
	i.Observed = newObservedAPI(i)
	i.Focused = newFocusedElementState(i)

	if s, ok := host.(interface{ SetSink(dom.FocusSink) }); ok {
		s.SetSink(i)
	}

	// Pick up declarations made before the engine existed.
	for _, n := range i.reg.Configured() {
		if i.doc.IsAttached(n) {
			i.syncBehaviors(n)
		}
	}
	return i
}

// Dispose tears down every behavior and timer. The instance is unusable afterwards.
func (i *Instance) Dispose() {
	if i.disposed {
		return
	}
	i.Modalizer.SetActive(nil)
	i.Deloser.dispose()
	i.Observed.dispose()
	i.Focused.dispose()
	for _, u := range i.ubers {
		u.dispose()
	}
	i.disposed = true
	i.roots = map[string]*Root{}
	i.grouppers = map[string]*Groupper{}
	i.ubers = map[string]*UberGroupper{}
	i.movers = map[string]*Mover{}
	i.modalizers = map[string]*Modalizer{}
	i.delosers = map[string]*Deloser{}
	i.autoRoot = nil
	if s, ok := i.host.(interface{ SetSink(dom.FocusSink) }); ok {
		s.SetSink(nil)
	}
	i.logger.Debug("Focus instance disposed.")
}

// IsDisposed reports whether Dispose was called.
func (i *Instance) IsDisposed() bool { return i.disposed }

// Document returns the managed tree.
func (i *Instance) Document() *dom.Document { return i.doc }

// Registry returns the element registry.
func (i *Instance) Registry() *dom.Registry { return i.reg }

// Host returns the embedding host.
func (i *Instance) Host() dom.Host { return i.host }

// Scheduler returns the frame scheduler.
func (i *Instance) Scheduler() scheduler.Scheduler { return i.sched }

// Diagnostics returns the misuse channel.
func (i *Instance) Diagnostics() *Diagnostics { return i.diag }

// Logger returns the instance logger.
func (i *Instance) Logger() *zap.Logger { return i.logger }

func (i *Instance) alive(op string) bool {
	if i.disposed {
		i.diag.Report(DiagDisposed, fmt.Sprintf("%s called on a disposed instance", op), "")
		return false
	}
	return true
}

// OnMovedOut registers a listener for Tab presses that leave the outermost root.
func (i *Instance) OnMovedOut(fn func(from *html.Node, isBackward bool)) {
	i.movedOut = append(i.movedOut, fn)
}

func (i *Instance) emitMovedOut(from *html.Node, isBackward bool) {
	for _, fn := range i.movedOut {
		fn(from, isBackward)
	}
}

// SetBehavior merges patch into the declaration of el, drops the kinds listed in
// remove, and brings the live behavior objects in line.
func (i *Instance) SetBehavior(el *html.Node, patch schemas.BehaviorConfig, remove ...schemas.BehaviorKind) {
	if !i.alive("SetBehavior") || !dom.IsElement(el) {
		return
	}
	i.reg.SetConfig(el, patch, remove...)
	if !i.doc.IsAttached(el) {
		// Behaviors materialize when the element is added.
		return
	}
	i.syncBehaviors(el)
}

// AddGroupper attaches a groupper to el. Attaching a second one to the same
// element is a programming error and panics.
func (i *Instance) AddGroupper(el *html.Node, props schemas.GroupperProps) *Groupper {
	if uid, ok := i.reg.PeekUID(el); ok {
		if _, exists := i.grouppers[uid]; exists {
			panic(fmt.Sprintf("focus: groupper already attached to %s", dom.Describe(el)))
		}
	}
	i.SetBehavior(el, schemas.BehaviorConfig{Groupper: &props})
	return i.GroupperOf(el)
}

// syncBehaviors creates, updates and disposes behavior objects for el from its declaration.
func (i *Instance) syncBehaviors(el *html.Node) {
	uid := i.reg.UID(el)
	cfg, _ := i.reg.Config(el)

	if cfg.Root != nil {
		if r, ok := i.roots[uid]; ok {
			r.props = *cfg.Root
		} else {
			i.roots[uid] = newRoot(i, el, *cfg.Root)
		}
	} else if _, ok := i.roots[uid]; ok {
		delete(i.roots, uid)
	}

	if cfg.Groupper != nil {
		if g, ok := i.grouppers[uid]; ok {
			g.props = *cfg.Groupper
		} else {
			i.grouppers[uid] = newGroupper(i, el, *cfg.Groupper)
		}
	} else if g, ok := i.grouppers[uid]; ok {
		g.dispose()
		delete(i.grouppers, uid)
	}

	if cfg.Mover != nil {
		if m, ok := i.movers[uid]; ok {
			m.props = *cfg.Mover
		} else {
			i.movers[uid] = newMover(i, el, *cfg.Mover)
		}
	} else if _, ok := i.movers[uid]; ok {
		delete(i.movers, uid)
	}

	if cfg.Modalizer != nil {
		i.Modalizer.upsert(el, uid, *cfg.Modalizer)
	} else if m, ok := i.modalizers[uid]; ok {
		i.Modalizer.remove(m)
	}

	if cfg.Deloser != nil {
		if d, ok := i.delosers[uid]; ok {
			d.props = *cfg.Deloser
		} else {
			i.delosers[uid] = newDeloser(i, el, *cfg.Deloser)
		}
	} else if d, ok := i.delosers[uid]; ok {
		i.Deloser.remove(d)
	}

	if cfg.Observed != nil {
		i.Observed.upsert(el, uid, *cfg.Observed)
	} else {
		i.Observed.remove(uid)
	}
}

// disposeDetached drops every behavior whose element left the tree.
func (i *Instance) disposeDetached() {
	for uid, r := range i.roots {
		if !i.doc.IsAttached(r.el) {
			delete(i.roots, uid)
		}
	}
	if i.autoRoot != nil && !i.doc.IsAttached(i.autoRoot.el) {
		i.autoRoot = nil
	}
	for uid, g := range i.grouppers {
		if !i.doc.IsAttached(g.el) {
			g.dispose()
			delete(i.grouppers, uid)
		}
	}
	for uid, m := range i.movers {
		if !i.doc.IsAttached(m.el) {
			delete(i.movers, uid)
		}
	}
	for _, m := range i.modalizers {
		if !i.doc.IsAttached(m.el) {
			i.Modalizer.remove(m)
		}
	}
	for _, d := range i.delosers {
		if !i.doc.IsAttached(d.el) {
			i.Deloser.remove(d)
		}
	}
	i.Observed.pruneDetached()
}

// behavior lookups by element

func (i *Instance) lookup(el *html.Node) (string, bool) {
	return i.reg.PeekUID(el)
}

// RootOf returns the root attached to el itself.
func (i *Instance) RootOf(el *html.Node) *Root {
	if uid, ok := i.lookup(el); ok {
		return i.roots[uid]
	}
	return nil
}

// GroupperOf returns the groupper attached to el itself.
func (i *Instance) GroupperOf(el *html.Node) *Groupper {
	if uid, ok := i.lookup(el); ok {
		return i.grouppers[uid]
	}
	return nil
}

// MoverOf returns the mover attached to el itself.
func (i *Instance) MoverOf(el *html.Node) *Mover {
	if uid, ok := i.lookup(el); ok {
		return i.movers[uid]
	}
	return nil
}

// ModalizerOf returns the modalizer attached to el itself.
func (i *Instance) ModalizerOf(el *html.Node) *Modalizer {
	if uid, ok := i.lookup(el); ok {
		return i.modalizers[uid]
	}
	return nil
}

// DeloserOf returns the deloser attached to el itself.
func (i *Instance) DeloserOf(el *html.Node) *Deloser {
	if uid, ok := i.lookup(el); ok {
		return i.delosers[uid]
	}
	return nil
}

// focusableProps returns the FocusableProps declared on el, if any.
func (i *Instance) focusableProps(el *html.Node) schemas.FocusableProps {
	if cfg, ok := i.reg.Config(el); ok && cfg.Focusable != nil {
		return *cfg.Focusable
	}
	return schemas.FocusableProps{}
}

// outlineIgnored reports whether an ancestor opted out of outlines.
func (i *Instance) outlineIgnored(el *html.Node) bool {
	for cur := el; cur != nil; cur = cur.Parent {
		if cfg, ok := i.reg.Config(cur); ok && cfg.Outline != nil && cfg.Outline.IsIgnored {
			return true
		}
	}
	return false
}

// Stats is a snapshot of live behavior counts.
type Stats struct {
	Roots         int
	Grouppers     int
	UberGrouppers int
	Movers        int
	Modalizers    int
	Delosers      int
	Observed      int
}

// Stats returns live behavior counts.
func (i *Instance) Stats() Stats {
	return Stats{
		Roots:         len(i.roots),
		Grouppers:     len(i.grouppers),
		UberGrouppers: len(i.ubers),
		Movers:        len(i.movers),
		Modalizers:    len(i.modalizers),
		Delosers:      len(i.delosers),
		Observed:      i.Observed.count(),
	}
}
