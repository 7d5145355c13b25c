package layout

import (
	"sort"

	"github.com/AaronLay10/FlowEngine/internal/geometry"
	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// Alignment is the reference line nodes snap to.
type Alignment string

const (
	AlignLeft    Alignment = "left"
	AlignRight   Alignment = "right"
	AlignTop     Alignment = "top"
	AlignBottom  Alignment = "bottom"
	AlignCenterH Alignment = "center-h"
	AlignCenterV Alignment = "center-v"
)

// Axis is the direction nodes are distributed along.
type Axis string

const (
	Horizontal Axis = "horizontal"
	Vertical   Axis = "vertical"
)

func selectedSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// AlignNodes snaps the selected nodes to a common edge or center. Fewer than
// two selected nodes, or an unknown alignment, leave the input unchanged.
func AlignNodes(nodes []graph.Node, selected []string, dir Alignment, size geometry.Size) []graph.Node {
	sel := selectedSet(selected)
	var picked []graph.Node
	for _, n := range nodes {
		if sel[n.ID] {
			picked = append(picked, n)
		}
	}
	if len(picked) < 2 {
		return nodes
	}

	var ref float64
	horizontal := true
	switch dir {
	case AlignLeft:
		ref = picked[0].Position.X
		for _, n := range picked {
			ref = min(ref, n.Position.X)
		}
	case AlignRight:
		ref = picked[0].Position.X + size.Width
		for _, n := range picked {
			ref = max(ref, n.Position.X+size.Width)
		}
		ref -= size.Width
	case AlignCenterH:
		for _, n := range picked {
			ref += n.Position.X + size.Width/2
		}
		ref = ref/float64(len(picked)) - size.Width/2
	case AlignTop:
		horizontal = false
		ref = picked[0].Position.Y
		for _, n := range picked {
			ref = min(ref, n.Position.Y)
		}
	case AlignBottom:
		horizontal = false
		ref = picked[0].Position.Y + size.Height
		for _, n := range picked {
			ref = max(ref, n.Position.Y+size.Height)
		}
		ref -= size.Height
	case AlignCenterV:
		horizontal = false
		for _, n := range picked {
			ref += n.Position.Y + size.Height/2
		}
		ref = ref/float64(len(picked)) - size.Height/2
	default:
		return nodes
	}

	out := graph.CloneNodes(nodes)
	for i := range out {
		if !sel[out[i].ID] {
			continue
		}
		if horizontal {
			out[i].Position.X = ref
		} else {
			out[i].Position.Y = ref
		}
	}
	return out
}

// DistributeNodes spaces the selected nodes evenly between the first and
// last along the axis. Fewer than three selected nodes leave the input
// unchanged.
func DistributeNodes(nodes []graph.Node, selected []string, axis Axis) []graph.Node {
	if axis != Horizontal && axis != Vertical {
		return nodes
	}
	sel := selectedSet(selected)
	coord := func(n graph.Node) float64 {
		if axis == Horizontal {
			return n.Position.X
		}
		return n.Position.Y
	}

	var picked []graph.Node
	for _, n := range nodes {
		if sel[n.ID] {
			picked = append(picked, n)
		}
	}
	if len(picked) < 3 {
		return nodes
	}
	sort.SliceStable(picked, func(a, b int) bool { return coord(picked[a]) < coord(picked[b]) })

	first, last := coord(picked[0]), coord(picked[len(picked)-1])
	step := (last - first) / float64(len(picked)-1)
	target := make(map[string]float64, len(picked))
	for i, n := range picked {
		target[n.ID] = first + float64(i)*step
	}

	out := graph.CloneNodes(nodes)
	for i := range out {
		v, ok := target[out[i].ID]
		if !ok {
			continue
		}
		if axis == Horizontal {
			out[i].Position.X = v
		} else {
			out[i].Position.Y = v
		}
	}
	return out
}
