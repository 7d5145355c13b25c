package layout

import (
	"math"

	"github.com/AaronLay10/FlowEngine/internal/geometry"
	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// MinZoom keeps a tiny viewport from producing a zero or negative zoom.
const MinZoom = 0.05

// Viewport is the zoom and pan that frames content on screen.
type Viewport struct {
	Zoom float64        `json:"zoom"`
	Pan  geometry.Point `json:"pan"`
}

// Bounds returns the box covering every node.
func Bounds(nodes []graph.Node, size geometry.Size) (geometry.Rect, bool) {
	rects := make([]geometry.Rect, len(nodes))
	for i, n := range nodes {
		rects[i] = geometry.RectAt(n.Position, size)
	}
	return geometry.Bounds(rects)
}

// FitToView frames all nodes in a viewport of vw×vh, never zooming past 1.
func FitToView(nodes []graph.Node, vw, vh float64, size geometry.Size, padding float64) Viewport {
	box, ok := Bounds(nodes, size)
	if !ok {
		return Viewport{Zoom: 1}
	}

	zoom := 1.0
	if box.Width > 0 {
		zoom = math.Min(zoom, (vw-2*padding)/box.Width)
	}
	if box.Height > 0 {
		zoom = math.Min(zoom, (vh-2*padding)/box.Height)
	}
	if zoom < MinZoom {
		zoom = MinZoom
	}

	c := box.Center()
	return Viewport{
		Zoom: zoom,
		Pan:  geometry.Point{X: vw/2 - c.X*zoom, Y: vh/2 - c.Y*zoom},
	}
}
