// internal/dom/geometry.go
package dom

import "math"

// Rect is an axis aligned box in viewport coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) Left() float64    { return r.X }
func (r Rect) Top() float64     { return r.Y }
func (r Rect) Right() float64   { return r.X + r.Width }
func (r Rect) Bottom() float64  { return r.Y + r.Height }
func (r Rect) CenterX() float64 { return r.X + r.Width/2 }
func (r Rect) CenterY() float64 { return r.Y + r.Height/2 }

// IsEmpty reports whether the box has no area to show.
func (r Rect) IsEmpty() bool { return r.Width <= 0 && r.Height <= 0 }

// Intersect returns the overlap of r and o, or the zero Rect.
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.Left(), o.Left())
	y0 := math.Max(r.Top(), o.Top())
	x1 := math.Min(r.Right(), o.Right())
	y1 := math.Min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Visibility is how much of an element the viewport shows.
type Visibility int

const (
	Invisible Visibility = iota
	PartiallyVisible
	Visible
)

func (v Visibility) String() string {
	switch v {
	case Visible:
		return "visible"
	case PartiallyVisible:
		return "partially-visible"
	}
	return "invisible"
}

// VisibilityIn classifies r against viewport.
func (r Rect) VisibilityIn(viewport Rect) Visibility {
	if r.IsEmpty() {
		return Invisible
	}
	overlap := r.Intersect(viewport)
	if overlap == (Rect{}) {
		return Invisible
	}
	if overlap.Width >= r.Width && overlap.Height >= r.Height {
		return Visible
	}
	return PartiallyVisible
}

// VerticallyVisibleIn reports whether r lies fully inside the viewport's vertical span.
func (r Rect) VerticallyVisibleIn(viewport Rect) bool {
	return r.Top() >= viewport.Top() && r.Bottom() <= viewport.Bottom()
}
