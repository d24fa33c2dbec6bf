// internal/dom/host.go
package dom

import (
	"sync"

	"golang.org/x/net/html"
)

// Host is the embedding environment: it owns layout and native focus.
type Host interface {
	// BoundingBox returns the layout box of n; false means n has no box.
	BoundingBox(n *html.Node) (Rect, bool)
	// Viewport is the currently visible area.
	Viewport() Rect
	// Focus moves native focus to n and reports whether it took.
	// The host reports the move back through its FocusSink.
	Focus(n *html.Node) bool
	// Blur drops native focus from n.
	Blur(n *html.Node)
	ScrollIntoView(n *html.Node)
	ActiveElement() *html.Node
}

// FocusSink receives native focus changes from a Host.
type FocusSink interface {
	HandleFocusIn(target, related *html.Node)
	HandleFocusOut(target, related *html.Node)
}

// StaticHost is a Host with explicit geometry and synchronous focus delivery.
// Elements without an explicit box get one row each, stacked in document order,
// when AutoLayout is on.
type StaticHost struct {
	mu         sync.Mutex
	doc        *Document
	boxes      map[*html.Node]Rect
	viewport   Rect
	active     *html.Node
	sink       FocusSink
	autoLayout bool
	rowHeight  float64
}

// StaticHostOption configures a StaticHost.
type StaticHostOption func(*StaticHost)

// WithViewport sets the initial viewport.
func WithViewport(r Rect) StaticHostOption {
	return func(h *StaticHost) { h.viewport = r }
}

// WithAutoLayout stacks elements without explicit boxes in rows of rowHeight.
func WithAutoLayout(rowHeight float64) StaticHostOption {
	return func(h *StaticHost) {
		h.autoLayout = true
		h.rowHeight = rowHeight
	}
}

// NewStaticHost creates a host for doc.
func NewStaticHost(doc *Document, opts ...StaticHostOption) *StaticHost {
	h := &StaticHost{
		doc:      doc,
		boxes:    make(map[*html.Node]Rect),
		viewport: Rect{Width: 1024, Height: 768},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetSink connects the host to the component consuming focus events.
func (h *StaticHost) SetSink(sink FocusSink) {
	h.mu.Lock()
	h.sink = sink
	h.mu.Unlock()
}

// SetBox assigns an explicit layout box to n.
func (h *StaticHost) SetBox(n *html.Node, r Rect) {
	h.mu.Lock()
	h.boxes[n] = r
	h.mu.Unlock()
}

// SetViewport moves or resizes the viewport.
func (h *StaticHost) SetViewport(r Rect) {
	h.mu.Lock()
	h.viewport = r
	h.mu.Unlock()
}

func (h *StaticHost) BoundingBox(n *html.Node) (Rect, bool) {
	if !IsElement(n) || IsHidden(n) {
		return Rect{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.boxes[n]; ok {
		return r, true
	}
	if !h.autoLayout || !h.doc.IsAttached(n) {
		return Rect{}, false
	}
	row := 0
	for cur := FirstElement(h.doc.Root()); cur != nil && cur != n; cur = NextElement(cur, h.doc.Root()) {
		row++
	}
	return Rect{X: 0, Y: float64(row) * h.rowHeight, Width: 100, Height: h.rowHeight}, true
}

func (h *StaticHost) Viewport() Rect {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewport
}

// Focus mimics native focus: only focusable, enabled, rendered elements accept it.
func (h *StaticHost) Focus(n *html.Node) bool {
	if !IsNativelyFocusable(n) || IsDisabled(n, false) || IsHidden(n) || HasInertAncestor(n) {
		return false
	}
	if _, ok := h.BoundingBox(n); !ok {
		return false
	}

	h.mu.Lock()
	prev := h.active
	if prev == n {
		h.mu.Unlock()
		return true
	}
	h.active = n
	sink := h.sink
	h.mu.Unlock()

	if sink != nil {
		if prev != nil {
			sink.HandleFocusOut(prev, n)
		}
		sink.HandleFocusIn(n, prev)
	}
	return true
}

func (h *StaticHost) Blur(n *html.Node) {
	h.mu.Lock()
	if h.active == nil || h.active != n {
		h.mu.Unlock()
		return
	}
	h.active = nil
	sink := h.sink
	h.mu.Unlock()

	if sink != nil {
		sink.HandleFocusOut(n, nil)
	}
}

// ScrollIntoView moves the viewport vertically until n's box is inside it.
func (h *StaticHost) ScrollIntoView(n *html.Node) {
	box, ok := h.BoundingBox(n)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	vp := h.viewport
	switch {
	case box.Top() < vp.Top():
		vp.Y = box.Top()
	case box.Bottom() > vp.Bottom():
		vp.Y = box.Bottom() - vp.Height
	}
	h.viewport = vp
}

func (h *StaticHost) ActiveElement() *html.Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Detach removes n from the tree the way a re-render would. If focus was
// inside n, it is dropped and the sink sees a focus-out to nothing.
func (h *StaticHost) Detach(n *html.Node) {
	h.mu.Lock()
	active := h.active
	lost := active != nil && Contains(n, active)
	if lost {
		h.active = nil
	}
	sink := h.sink
	h.mu.Unlock()

	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	if lost && sink != nil {
		sink.HandleFocusOut(active, nil)
	}
}

// HasInertAncestor reports whether n sits under an inert element. aria-hidden
// does not block native focus, only the inert attribute does.
func HasInertAncestor(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && HasAttr(cur, "inert") {
			return true
		}
	}
	return false
}
