// Package geom holds the pixel geometry shared by layout, visibility and
// the media lifecycle: card rectangles, the scrolled viewport, and the
// distance metrics used to rank cards against the viewport center.
package geom

import "math"

// Rect is an axis-aligned rectangle in pixels.
type Rect struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"width" yaml:"width"`
	H float64 `json:"height" yaml:"height"`
}

func (r Rect) Right() float64  { return r.X + r.W }
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Center returns the midpoint of r.
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Translate returns r moved by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	r.X += dx
	r.Y += dy
	return r
}

// Intersects reports strict overlap. Rectangles that only share an edge
// do not intersect, and an empty rectangle never intersects anything.
func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.Right() && r.Right() > o.X && r.Y < o.Bottom() && r.Bottom() > o.Y
}

// Viewport is the visible window onto the scrollable content.
type Viewport struct {
	Width   float64
	Height  float64
	ScrollX float64
	ScrollY float64
}

// Visible returns the viewport rectangle in viewport coordinates.
func (v Viewport) Visible() Rect {
	return Rect{W: v.Width, H: v.Height}
}

// Zone returns the viewport expanded by buffer on all four sides, in
// viewport coordinates.
func (v Viewport) Zone(buffer float64) Rect {
	return Rect{X: -buffer, Y: -buffer, W: v.Width + 2*buffer, H: v.Height + 2*buffer}
}

// ToViewport converts a content rectangle into viewport coordinates.
func (v Viewport) ToViewport(r Rect) Rect {
	return r.Translate(-v.ScrollX, -v.ScrollY)
}

// InZone reports whether the content rectangle r intersects the viewport
// expanded by buffer.
func (v Viewport) InZone(r Rect, buffer float64) bool {
	return v.ToViewport(r).Intersects(v.Zone(buffer))
}

// InView reports whether the content rectangle r intersects the strict
// viewport.
func (v Viewport) InView(r Rect) bool {
	return v.ToViewport(r).Intersects(v.Visible())
}

// WeightedDistance is the overflow-trim ranking metric: vertical offset
// from the viewport center counts twice as much as horizontal offset.
func (v Viewport) WeightedDistance(r Rect) float64 {
	dx, dy := v.offset(r)
	return 2*math.Abs(dy) + math.Abs(dx)
}

// VerticalDistance is the distance between the vertical centers of r and
// the viewport.
func (v Viewport) VerticalDistance(r Rect) float64 {
	_, dy := v.offset(r)
	return math.Abs(dy)
}

func (v Viewport) offset(r Rect) (float64, float64) {
	cx, cy := v.ToViewport(r).Center()
	return cx - v.Width/2, cy - v.Height/2
}
