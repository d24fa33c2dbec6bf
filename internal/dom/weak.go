// internal/dom/weak.go
package dom

import (
	"weak"

	"golang.org/x/net/html"
)

// WeakElement refers to an element without keeping it alive. Uses across
// asynchronous boundaries go through Deref, which also rejects detached nodes.
type WeakElement struct {
	uid string
	ptr weak.Pointer[html.Node]
}

// MakeWeak creates a weak reference to n, registering its uid.
func MakeWeak(reg *Registry, n *html.Node) WeakElement {
	if n == nil {
		return WeakElement{}
	}
	return WeakElement{uid: reg.UID(n), ptr: weak.Make(n)}
}

// UID is the registry id of the referenced element.
func (w WeakElement) UID() string { return w.uid }

// IsZero reports whether w refers to nothing.
func (w WeakElement) IsZero() bool { return w.uid == "" }

// Get returns the element if it is still alive, attached or not.
func (w WeakElement) Get() *html.Node {
	if w.uid == "" {
		return nil
	}
	return w.ptr.Value()
}

// Deref returns the element only while it is alive and attached to doc.
func (w WeakElement) Deref(doc *Document) *html.Node {
	n := w.Get()
	if n == nil || !doc.IsAttached(n) {
		return nil
	}
	return n
}
