// internal/focus/resolver.go
package focus

import (
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/dom"
)

// Context is the behavior configuration that applies to one element. It is
// computed fresh for every query and must not be kept across ticks.
type Context struct {
	Root      *Root
	Modalizer *Modalizer
	Groupper  *Groupper
	// Mover is the nearest mover, set only when it reacts to arrow keys.
	Mover        *Mover
	MoverOptions *schemas.MoverProps
	// IsGroupperFirst is true when the nearest groupper is closer than the nearest mover.
	IsGroupperFirst bool
	IsRtl           bool
}

// ResolveOptions tunes ResolveContext.
type ResolveOptions struct {
	CheckRtl bool
}

// ResolveContext walks the ancestry of el and returns the nearest root,
// modalizer, groupper and arrow-key mover. It returns nil when el belongs to no root.
func (i *Instance) ResolveContext(el *html.Node, opts ResolveOptions) *Context {
	if el == nil || i.disposed {
		return nil
	}

	ctx := &Context{}
	moverSeen := false
	for cur := el; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		uid, ok := i.lookup(cur)
		if !ok {
			continue
		}

		if ctx.Modalizer == nil {
			ctx.Modalizer = i.modalizers[uid]
		}
		if g := i.grouppers[uid]; g != nil && ctx.Groupper == nil {
			ctx.Groupper = g
			if !moverSeen {
				ctx.IsGroupperFirst = true
			}
		}
		// Only the nearest mover counts; a Tab-only one shadows outer arrow movers.
		if m := i.movers[uid]; m != nil && !moverSeen {
			moverSeen = true
			props := m.props
			ctx.MoverOptions = &props
			if props.Keys.HasArrows() {
				ctx.Mover = m
			}
		}
		if r := i.roots[uid]; r != nil {
			ctx.Root = r
			break
		}
	}

	if ctx.Root == nil {
		ctx.Root = i.ensureAutoRoot(el)
		if ctx.Root == nil {
			return nil
		}
	}
	if opts.CheckRtl {
		ctx.IsRtl = dom.IsRTL(el)
	}
	return ctx
}

// ensureAutoRoot returns the synthetic root on <body> for el when auto roots are enabled.
func (i *Instance) ensureAutoRoot(el *html.Node) *Root {
	if !i.cfg.AutoRoot {
		return nil
	}
	body := i.doc.Body()
	if body == nil || !dom.Contains(body, el) {
		return nil
	}
	if i.autoRoot == nil || i.autoRoot.el != body {
		i.autoRoot = newRoot(i, body, schemas.RootProps{})
		i.autoRoot.synthetic = true
		i.logger.Debug("Created automatic root.")
	}
	return i.autoRoot
}

// groupperAncestors lists the grouppers containing el, nearest first, el's own included.
func (i *Instance) groupperAncestors(el *html.Node) []*Groupper {
	var out []*Groupper
	for cur := el; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if uid, ok := i.lookup(cur); ok {
			if g := i.grouppers[uid]; g != nil {
				out = append(out, g)
			}
		}
	}
	return out
}

// nearestGroupper returns the closest groupper strictly above el.
func (i *Instance) nearestGroupper(el *html.Node) *Groupper {
	if el == nil {
		return nil
	}
	for cur := el.Parent; cur != nil; cur = cur.Parent {
		if g := i.GroupperOf(cur); g != nil {
			return g
		}
	}
	return nil
}
