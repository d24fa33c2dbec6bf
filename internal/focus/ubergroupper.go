// internal/focus/ubergroupper.go
package focus

import (
	"slices"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/internal/dom"
	"github.com/xkilldash9x/keynav/internal/scheduler"
)

// UberGroupper tracks the sibling grouppers under one parent element.
type UberGroupper struct {
	inst *Instance
	el   *html.Node
	uid  string

	grouppers map[string]*Groupper
	current   *Groupper
	focused   *Groupper

	vis       map[string]dom.Visibility
	visUpdate *scheduler.Debouncer
}

// uberFor returns the UberGroupper of parent, creating it on first use.
func (i *Instance) uberFor(parent *html.Node) *UberGroupper {
	uid := i.reg.UID(parent)
	if u, ok := i.ubers[uid]; ok {
		return u
	}
	u := &UberGroupper{
		inst:      i,
		el:        parent,
		uid:       uid,
		grouppers: make(map[string]*Groupper),
		vis:       make(map[string]dom.Visibility),
	}
	u.visUpdate = scheduler.NewDebouncer(i.sched, i.cfg.GroupperVisibilityDelay, u.updateVisibility)
	i.ubers[uid] = u
	return u
}

func (u *UberGroupper) Element() *html.Node { return u.el }

func (u *UberGroupper) add(g *Groupper) {
	u.grouppers[g.uid] = g
	u.visUpdate.Trigger()
}

func (u *UberGroupper) remove(g *Groupper) {
	delete(u.grouppers, g.uid)
	delete(u.vis, g.uid)
	if u.current == g {
		u.current = nil
	}
	if u.focused == g {
		u.focused = nil
	}
	if len(u.grouppers) == 0 {
		u.dispose()
		delete(u.inst.ubers, u.uid)
		u.inst.logger.Debug("UberGroupper destroyed with its last groupper.", zap.String("parent", dom.Describe(u.el)))
	}
}

func (u *UberGroupper) dispose() {
	u.visUpdate.Cancel()
	u.current = nil
	u.focused = nil
}

// Grouppers returns the siblings in document order.
func (u *UberGroupper) Grouppers() []*Groupper {
	out := make([]*Groupper, 0, len(u.grouppers))
	for _, g := range u.grouppers {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b *Groupper) int { return dom.Compare(a.el, b.el) })
	return out
}

func (u *UberGroupper) setCurrent(g *Groupper) {
	u.current = g
}

// Focused returns the sibling holding focus, if any.
func (u *UberGroupper) Focused() *Groupper { return u.focused }

// Current returns the explicitly current sibling, or else the first fully
// visible one, the first partially visible one, or the first sibling.
func (u *UberGroupper) Current() *Groupper {
	if u.current != nil && u.inst.doc.IsAttached(u.current.el) {
		return u.current
	}
	siblings := u.Grouppers()
	if len(siblings) == 0 {
		return nil
	}
	var partial *Groupper
	for _, g := range siblings {
		switch u.visibility(g) {
		case dom.Visible:
			return g
		case dom.PartiallyVisible:
			if partial == nil {
				partial = g
			}
		}
	}
	if partial != nil {
		return partial
	}
	return siblings[0]
}

// scheduleVisibility queues one recompute for a burst of scroll events.
func (u *UberGroupper) scheduleVisibility() {
	u.visUpdate.Trigger()
}

func (u *UberGroupper) updateVisibility() {
	viewport := u.inst.host.Viewport()
	for uid, g := range u.grouppers {
		u.vis[uid] = u.measure(g, viewport)
	}
}

func (u *UberGroupper) visibility(g *Groupper) dom.Visibility {
	if v, ok := u.vis[g.uid]; ok {
		return v
	}
	v := u.measure(g, u.inst.host.Viewport())
	u.vis[g.uid] = v
	return v
}

func (u *UberGroupper) measure(g *Groupper, viewport dom.Rect) dom.Visibility {
	box, ok := u.inst.host.BoundingBox(g.el)
	if !ok {
		return dom.Invisible
	}
	return box.VisibilityIn(viewport)
}
