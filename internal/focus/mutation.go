// internal/focus/mutation.go
package focus

import (
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/internal/dom"
)

// MutationKind classifies a tree change reported by the mutation watcher.
type MutationKind int

const (
	NodeAdded MutationKind = iota
	NodeRemoved
	AttributeChanged
)

func (k MutationKind) String() string {
	switch k {
	case NodeAdded:
		return "added"
	case NodeRemoved:
		return "removed"
	case AttributeChanged:
		return "attribute"
	}
	return "unknown"
}

// MutationEvent is one discrete tree change. For NodeRemoved the node has
// already been detached.
type MutationEvent struct {
	Kind MutationKind
	Node *html.Node
	Attr string
}

// HandleMutation brings behaviors in line with a tree change.
func (i *Instance) HandleMutation(ev MutationEvent) {
	if !i.alive("HandleMutation") || ev.Node == nil {
		return
	}
	i.logger.Debug("Tree mutation.",
		zap.Stringer("kind", ev.Kind),
		zap.String("node", dom.Describe(ev.Node)))

	switch ev.Kind {
	case NodeAdded:
		if !i.doc.IsAttached(ev.Node) {
			return
		}
		i.syncSubtree(ev.Node)
	case NodeRemoved:
		i.disposeDetached()
		if cur := i.Focused.current; cur != nil && !i.doc.IsAttached(cur) {
			i.Focused.cancelBlur()
			i.Focused.lost(cur)
		}
	case AttributeChanged:
		if _, ok := i.reg.Config(ev.Node); ok && i.doc.IsAttached(ev.Node) {
			i.syncBehaviors(ev.Node)
		}
	}
	i.HandleScroll()
}

// syncSubtree materializes declarations on n and its descendants, and moves
// grouppers whose parent changed.
func (i *Instance) syncSubtree(n *html.Node) {
	nodes := append([]*html.Node{n}, dom.Elements(n)...)
	for _, el := range nodes {
		if !dom.IsElement(el) {
			continue
		}
		if _, ok := i.reg.Config(el); ok {
			i.syncBehaviors(el)
		}
		if g := i.GroupperOf(el); g != nil {
			g.rehome()
		}
	}
}
