// internal/focus/root.go
package focus

import (
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/keynav/api/schemas"
	"github.com/xkilldash9x/keynav/internal/dom"
)

// Root bounds the subtree in which navigation behaviors apply.
type Root struct {
	inst      *Instance
	el        *html.Node
	props     schemas.RootProps
	synthetic bool
}

func newRoot(inst *Instance, el *html.Node, props schemas.RootProps) *Root {
	return &Root{inst: inst, el: el, props: props}
}

func (r *Root) Element() *html.Node      { return r.el }
func (r *Root) Props() schemas.RootProps { return r.props }
func (r *Root) IsSynthetic() bool        { return r.synthetic }

// movedOut runs when a structural search from `from` finds nothing inside the
// root. A cycling root wraps; otherwise listeners are told focus is leaving and
// the key is left to the host.
func (r *Root) movedOut(from *html.Node, isBackward bool) (*html.Node, bool) {
	if r.props.Cycle {
		opts := FindOptions{Container: r.el}
		var next *html.Node
		if isBackward {
			next = r.inst.Focusables.FindLast(opts)
		} else {
			next = r.inst.Focusables.FindFirst(opts)
		}
		if next != nil && next != from {
			return next, true
		}
		// A single focusable in a cycling root keeps focus where it is.
		return nil, next != nil
	}

	r.inst.logger.Debug("Focus moved out of root.",
		zap.String("root", dom.Describe(r.el)),
		zap.Bool("backward", isBackward))
	r.inst.emitMovedOut(from, isBackward)
	return nil, false
}
