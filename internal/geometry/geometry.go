// Package geometry holds the canvas math shared by layout, selection and
// rendering hosts: points, rectangles, connection curves and handle anchors.
package geometry

import (
	"math"
	"strconv"
	"strings"
)

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns p translated by d.
func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y}
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// RectAt builds the rectangle a node of the given size occupies at p.
func RectAt(p Point, s Size) Rect {
	return Rect{X: p.X, Y: p.Y, Width: s.Width, Height: s.Height}
}

// RectFromCorners normalizes two arbitrary corners (e.g. a drag start and end)
// into a rectangle with non-negative size.
func RectFromCorners(a, b Point) Rect {
	minX, maxX := math.Min(a.X, b.X), math.Max(a.X, b.X)
	minY, maxY := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Center returns the midpoint of r.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Overlaps reports strict intersection: rectangles that only touch along an
// edge do not overlap.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.Right() && r.Right() > o.X && r.Y < o.Bottom() && r.Bottom() > o.Y
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// Union returns the smallest rectangle covering r and o.
func (r Rect) Union(o Rect) Rect {
	minX, minY := math.Min(r.X, o.X), math.Min(r.Y, o.Y)
	maxX, maxY := math.Max(r.Right(), o.Right()), math.Max(r.Bottom(), o.Bottom())
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Inflate grows r by pad on every side.
func (r Rect) Inflate(pad float64) Rect {
	return Rect{X: r.X - pad, Y: r.Y - pad, Width: r.Width + 2*pad, Height: r.Height + 2*pad}
}

// Bounds returns the union of all rects, false when rects is empty.
func Bounds(rects []Rect) (Rect, bool) {
	if len(rects) == 0 {
		return Rect{}, false
	}
	out := rects[0]
	for _, r := range rects[1:] {
		out = out.Union(r)
	}
	return out, true
}

// Distance is the euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// BezierPath renders the SVG path of a horizontal cubic connection from src
// to dst. Both control points sit on the vertical through the midpoint.
func BezierPath(src, dst Point) string {
	cx := (src.X + dst.X) / 2
	var b strings.Builder
	b.WriteString("M ")
	writePair(&b, src.X, src.Y)
	b.WriteString(" C ")
	writePair(&b, cx, src.Y)
	b.WriteByte(' ')
	writePair(&b, cx, dst.Y)
	b.WriteByte(' ')
	writePair(&b, dst.X, dst.Y)
	return b.String()
}

func writePair(b *strings.Builder, x, y float64) {
	b.WriteString(strconv.FormatFloat(x, 'f', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(y, 'f', -1, 64))
}

// LabelPosition is where a connection label is drawn.
func LabelPosition(src, dst Point) Point {
	return Point{X: (src.X + dst.X) / 2, Y: (src.Y + dst.Y) / 2}
}

// DefaultHitThreshold is the pick radius used for connections.
const DefaultHitThreshold = 10

// IsPointNearBezier is a cheap pick test against the curve midpoint.
func IsPointNearBezier(p, src, dst Point, threshold float64) bool {
	return Distance(p, LabelPosition(src, dst)) < threshold
}

// Handle identifies a connection anchor on a node.
type Handle string

const (
	HandleSource Handle = "source"
	HandleTarget Handle = "target"
)

// HandlePosition returns the anchor of h for a node at pos: outputs leave from
// the middle of the right side, inputs arrive at the middle of the left side.
func HandlePosition(pos Point, size Size, h Handle) Point {
	if h == HandleSource {
		return Point{X: pos.X + size.Width, Y: pos.Y + size.Height/2}
	}
	return Point{X: pos.X, Y: pos.Y + size.Height/2}
}
