// internal/dom/tree.go
package dom

import "golang.org/x/net/html"

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// ParentElement returns the closest element ancestor of n.
func ParentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// Contains reports whether n is ancestor or ancestor's descendant. It is inclusive.
func Contains(ancestor, n *html.Node) bool {
	if ancestor == nil {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// nextNode is a pre-order successor limited to the subtree of scope.
func nextNode(n, scope *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for cur := n; cur != nil && cur != scope; cur = cur.Parent {
		if cur.NextSibling != nil {
			return cur.NextSibling
		}
	}
	return nil
}

// prevNode is the pre-order predecessor limited to the subtree of scope.
// scope itself is never returned.
func prevNode(n, scope *html.Node) *html.Node {
	if n == scope {
		return nil
	}
	if n.PrevSibling != nil {
		cur := n.PrevSibling
		for cur.LastChild != nil {
			cur = cur.LastChild
		}
		return cur
	}
	if n.Parent == scope {
		return nil
	}
	return n.Parent
}

// NextElement returns the element following n in document order inside scope.
// A nil scope means the whole tree.
func NextElement(n, scope *html.Node) *html.Node {
	for cur := nextNode(n, scope); cur != nil; cur = nextNode(cur, scope) {
		if cur.Type == html.ElementNode {
			return cur
		}
	}
	return nil
}

// PrevElement returns the element preceding n in document order inside scope.
func PrevElement(n, scope *html.Node) *html.Node {
	for cur := prevNode(n, scope); cur != nil; cur = prevNode(cur, scope) {
		if cur.Type == html.ElementNode {
			return cur
		}
	}
	return nil
}

// FirstElement returns the first element descendant of scope.
func FirstElement(scope *html.Node) *html.Node {
	return NextElement(scope, scope)
}

// LastElement returns the last element descendant of scope in document order.
func LastElement(scope *html.Node) *html.Node {
	cur := scope
	for cur.LastChild != nil {
		cur = cur.LastChild
	}
	if cur == scope {
		return nil
	}
	if cur.Type == html.ElementNode {
		return cur
	}
	return PrevElement(cur, scope)
}

// ancestry lists n and its ancestors, outermost first.
func ancestry(n *html.Node) []*html.Node {
	var chain []*html.Node
	for cur := n; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Compare orders a and b in document order: -1 when a precedes b, 1 when it
// follows, 0 when they are the same node or live in different trees.
// An ancestor precedes its descendants.
func Compare(a, b *html.Node) int {
	if a == b || a == nil || b == nil {
		return 0
	}
	ca, cb := ancestry(a), ancestry(b)
	if ca[0] != cb[0] {
		return 0
	}
	i := 0
	for i < len(ca) && i < len(cb) && ca[i] == cb[i] {
		i++
	}
	switch {
	case i == len(ca):
		return -1
	case i == len(cb):
		return 1
	}
	for s := ca[i].NextSibling; s != nil; s = s.NextSibling {
		if s == cb[i] {
			return -1
		}
	}
	return 1
}

// Elements lists the element descendants of scope in document order.
func Elements(scope *html.Node) []*html.Node {
	var out []*html.Node
	for cur := FirstElement(scope); cur != nil; cur = NextElement(cur, scope) {
		out = append(out, cur)
	}
	return out
}
