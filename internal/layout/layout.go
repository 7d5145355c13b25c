// Package layout positions workflow nodes on the canvas: layered
// auto-layout, fit-to-view, alignment and distribution.
package layout

import (
	"sort"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// Defaults for layered layout and node boxes.
const (
	HorizontalSpacing = 250
	VerticalSpacing   = 120
	LayerStartX       = 100
	LayerStartY       = 100
	CrossingPasses    = 3

	DefaultNodeWidth  = 200
	DefaultNodeHeight = 80
	DefaultPadding    = 50
)

// Options tunes AutoLayout.
type Options struct {
	HorizontalSpacing float64 `yaml:"horizontal_spacing"`
	VerticalSpacing   float64 `yaml:"vertical_spacing"`
	StartX            float64 `yaml:"start_x"`
	StartY            float64 `yaml:"start_y"`
	CrossingPasses    int     `yaml:"crossing_passes"`
}

// DefaultOptions returns the standard spacing.
func DefaultOptions() Options {
	return Options{
		HorizontalSpacing: HorizontalSpacing,
		VerticalSpacing:   VerticalSpacing,
		StartX:            LayerStartX,
		StartY:            LayerStartY,
		CrossingPasses:    CrossingPasses,
	}
}

// Layering is the rank assignment of a graph.
type Layering struct {
	// Layers holds node ids per layer, in their final in-layer order.
	Layers [][]string
	// Rank maps a node id to its layer index.
	Rank map[string]int
	// BackEdges were ignored because they close a cycle.
	BackEdges []graph.Edge
}

// Assign ranks the nodes and orders every layer to reduce crossings.
//
// Reachable nodes get the longest-path rank over forward edges, so every
// edge of a DAG points to a strictly higher layer. Nodes no start can reach
// share one extra trailing layer.
func Assign(nodes []graph.Node, edges []graph.Edge, passes int) Layering {
	s := graph.Snapshot{Nodes: nodes, Edges: edges}
	tr := graph.Walk(s)

	rank := make(map[string]int, len(nodes))
	maxRank := -1
	for _, id := range tr.Order {
		if !tr.Reachable[id] {
			continue
		}
		r := rank[id]
		if r > maxRank {
			maxRank = r
		}
		for _, e := range tr.Forward[id] {
			if rank[e.Target] < r+1 {
				rank[e.Target] = r + 1
			}
		}
	}

	layers := make([][]string, maxRank+1)
	var orphans []string
	for _, n := range nodes {
		if !tr.Reachable[n.ID] {
			orphans = append(orphans, n.ID)
			continue
		}
		layers[rank[n.ID]] = append(layers[rank[n.ID]], n.ID)
	}
	if len(orphans) > 0 {
		for _, id := range orphans {
			rank[id] = len(layers)
		}
		layers = append(layers, orphans)
	}

	reduceCrossings(layers, tr, passes)
	return Layering{Layers: layers, Rank: rank, BackEdges: tr.BackEdges}
}

// reduceCrossings reorders each layer by the barycenter of its predecessors
// in the previous layer. Nodes without such predecessors keep their index.
func reduceCrossings(layers [][]string, tr graph.Traversal, passes int) {
	preds := make(map[string][]string)
	for src, edges := range tr.Forward {
		for _, e := range edges {
			preds[e.Target] = append(preds[e.Target], src)
		}
	}

	for pass := 0; pass < passes; pass++ {
		for l := 1; l < len(layers); l++ {
			prev := make(map[string]int, len(layers[l-1]))
			for i, id := range layers[l-1] {
				prev[id] = i
			}
			bary := make(map[string]float64, len(layers[l]))
			for i, id := range layers[l] {
				sum, count := 0.0, 0
				for _, p := range preds[id] {
					if idx, ok := prev[p]; ok {
						sum += float64(idx)
						count++
					}
				}
				if count == 0 {
					bary[id] = float64(i)
				} else {
					bary[id] = sum / float64(count)
				}
			}
			layer := layers[l]
			sort.SliceStable(layer, func(a, b int) bool {
				return bary[layer[a]] < bary[layer[b]]
			})
		}
	}
}

// AutoLayout returns nodes (in their original order) with positions assigned
// from a layered layout. The input slice is not modified.
func AutoLayout(nodes []graph.Node, edges []graph.Edge, opts Options) ([]graph.Node, Layering) {
	lay := Assign(nodes, edges, opts.CrossingPasses)

	pos := make(map[string]graph.Position, len(nodes))
	for l, layer := range lay.Layers {
		x := opts.StartX + float64(l)*opts.HorizontalSpacing
		startY := opts.StartY - float64(len(layer))*opts.VerticalSpacing/2
		for i, id := range layer {
			pos[id] = graph.Position{X: x, Y: startY + float64(i)*opts.VerticalSpacing}
		}
	}

	out := graph.CloneNodes(nodes)
	for i := range out {
		if p, ok := pos[out[i].ID]; ok {
			out[i].Position = p
		}
	}
	return out, lay
}
