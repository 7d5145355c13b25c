package layout

import (
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/AaronLay10/FlowEngine/internal/geometry"
	"github.com/AaronLay10/FlowEngine/internal/graph"
)

var nodeSize = geometry.Size{Width: DefaultNodeWidth, Height: DefaultNodeHeight}

func node(id string, x, y float64) graph.Node {
	return graph.Node{ID: id, Type: graph.KindTransform, Position: graph.Position{X: x, Y: y}}
}

func edge(src, dst string) graph.Edge {
	return graph.Edge{ID: graph.EdgeID(src, dst), Source: src, Target: dst}
}

func TestAutoLayoutChain(t *testing.T) {
	nodes := []graph.Node{node("A", 0, 0), node("B", 300, 0), node("C", 600, 0)}
	edges := []graph.Edge{edge("A", "B"), edge("B", "C")}

	out, lay := AutoLayout(nodes, edges, DefaultOptions())

	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 2}, lay.Rank)
	assert.Equal(t, graph.Position{X: 100, Y: 40}, out[0].Position)
	assert.Equal(t, graph.Position{X: 350, Y: 40}, out[1].Position)
	assert.Equal(t, graph.Position{X: 600, Y: 40}, out[2].Position)
	assert.Equal(t, graph.Position{X: 0, Y: 0}, nodes[0].Position, "input untouched")
}

func TestAutoLayoutDiamondUsesLongestPath(t *testing.T) {
	nodes := []graph.Node{node("A", 0, 0), node("B", 0, 0), node("C", 0, 0), node("D", 0, 0)}
	edges := []graph.Edge{edge("A", "B"), edge("B", "C"), edge("A", "D"), edge("C", "D")}

	lay := Assign(nodes, edges, CrossingPasses)
	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 2, "D": 3}, lay.Rank)
}

func TestAutoLayoutStacksLayerSymmetrically(t *testing.T) {
	nodes := []graph.Node{node("root", 0, 0), node("x", 0, 0), node("y", 0, 0), node("z", 0, 0)}
	edges := []graph.Edge{edge("root", "x"), edge("root", "y"), edge("root", "z")}

	out, lay := AutoLayout(nodes, edges, DefaultOptions())
	require.Equal(t, [][]string{{"root"}, {"x", "y", "z"}}, lay.Layers)

	assert.Equal(t, -80.0, out[1].Position.Y)
	assert.Equal(t, 40.0, out[2].Position.Y)
	assert.Equal(t, 160.0, out[3].Position.Y)
	for _, n := range out[1:] {
		assert.Equal(t, 350.0, n.Position.X)
	}
}

func TestAutoLayoutCycleDropsBackEdge(t *testing.T) {
	nodes := []graph.Node{node("A", 0, 0), node("B", 0, 0), node("C", 0, 0)}
	edges := []graph.Edge{edge("A", "B"), edge("B", "C"), edge("C", "B")}

	lay := Assign(nodes, edges, CrossingPasses)
	require.Len(t, lay.BackEdges, 1)
	assert.Equal(t, "edge-C-B", lay.BackEdges[0].ID)
	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 2}, lay.Rank)
}

func TestAutoLayoutUnreachableNodesFormLastLayer(t *testing.T) {
	nodes := []graph.Node{node("A", 0, 0), node("B", 0, 0), node("P", 0, 0), node("Q", 0, 0)}
	edges := []graph.Edge{edge("A", "B"), edge("P", "Q"), edge("Q", "P")}

	lay := Assign(nodes, edges, CrossingPasses)
	assert.Equal(t, [][]string{{"A"}, {"B"}, {"P", "Q"}}, lay.Layers)
	assert.Equal(t, 2, lay.Rank["Q"])
}

func TestCrossingReductionFollowsParents(t *testing.T) {
	nodes := []graph.Node{
		node("a", 0, 0), node("b", 0, 0),
		node("kb", 0, 0), node("ka", 0, 0),
	}
	edges := []graph.Edge{edge("a", "ka"), edge("b", "kb")}

	lay := Assign(nodes, edges, CrossingPasses)
	assert.Equal(t, []string{"a", "b"}, lay.Layers[0])
	assert.Equal(t, []string{"ka", "kb"}, lay.Layers[1])
}

func TestAutoLayoutEmpty(t *testing.T) {
	out, lay := AutoLayout(nil, nil, DefaultOptions())
	assert.Empty(t, out)
	assert.Empty(t, lay.Layers)
}

func TestPropertyDAGLayersIncreaseAlongEdges(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 14).Draw(rt, "n")
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
		}
		var edges []graph.Edge
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rapid.Bool().Draw(rt, fmt.Sprintf("e%d_%d", i, j)) {
					edges = append(edges, edge(ids[i], ids[j]))
				}
			}
		}
		order := rapid.Permutation(ids).Draw(rt, "order")
		nodes := make([]graph.Node, n)
		for i, id := range order {
			nodes[i] = node(id, 0, 0)
		}

		lay := Assign(nodes, edges, CrossingPasses)
		if len(lay.BackEdges) != 0 {
			rt.Fatalf("DAG reported back edges: %v", lay.BackEdges)
		}
		for _, e := range edges {
			if lay.Rank[e.Target] <= lay.Rank[e.Source] {
				rt.Fatalf("edge %s: rank %d -> %d", e.ID, lay.Rank[e.Source], lay.Rank[e.Target])
			}
		}
		placed := 0
		for _, l := range lay.Layers {
			placed += len(l)
		}
		if placed != n {
			rt.Fatalf("placed %d of %d nodes", placed, n)
		}
	})
}

func TestFitToViewEmpty(t *testing.T) {
	vp := FitToView(nil, 800, 600, nodeSize, DefaultPadding)
	assert.Equal(t, Viewport{Zoom: 1}, vp)
}

func TestFitToViewSmallContentKeepsZoomOne(t *testing.T) {
	vp := FitToView([]graph.Node{node("a", 0, 0)}, 1000, 800, nodeSize, DefaultPadding)
	assert.Equal(t, 1.0, vp.Zoom)
	assert.Equal(t, geometry.Point{X: 400, Y: 360}, vp.Pan)
}

func TestPropertyFitToViewCentersContent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("zoom never exceeds 1 and pan centers the bounding box", prop.ForAll(
		func(xs []float64, vw, vh float64) bool {
			nodes := make([]graph.Node, len(xs))
			for i, x := range xs {
				nodes[i] = node(fmt.Sprintf("n%d", i), x, -x/2)
			}
			vp := FitToView(nodes, vw, vh, nodeSize, DefaultPadding)
			if vp.Zoom > 1 || vp.Zoom <= 0 {
				return false
			}
			box, _ := Bounds(nodes, nodeSize)
			c := box.Center()
			return math.Abs(c.X*vp.Zoom+vp.Pan.X-vw/2) < 1e-6 &&
				math.Abs(c.Y*vp.Zoom+vp.Pan.Y-vh/2) < 1e-6
		},
		gen.SliceOfN(5, gen.Float64Range(-5000, 5000)),
		gen.Float64Range(200, 4000),
		gen.Float64Range(200, 4000),
	))

	properties.TestingRun(t)
}

func TestAlignNodes(t *testing.T) {
	nodes := []graph.Node{node("a", 10, 5), node("b", 50, 100), node("c", 400, 400)}
	sel := []string{"a", "b"}

	cases := []struct {
		dir  Alignment
		want [2]graph.Position
	}{
		{AlignLeft, [2]graph.Position{{X: 10, Y: 5}, {X: 10, Y: 100}}},
		{AlignRight, [2]graph.Position{{X: 50, Y: 5}, {X: 50, Y: 100}}},
		{AlignCenterH, [2]graph.Position{{X: 30, Y: 5}, {X: 30, Y: 100}}},
		{AlignTop, [2]graph.Position{{X: 10, Y: 5}, {X: 50, Y: 5}}},
		{AlignBottom, [2]graph.Position{{X: 10, Y: 100}, {X: 50, Y: 100}}},
		{AlignCenterV, [2]graph.Position{{X: 10, Y: 52.5}, {X: 50, Y: 52.5}}},
	}
	for _, tc := range cases {
		t.Run(string(tc.dir), func(t *testing.T) {
			out := AlignNodes(nodes, sel, tc.dir, nodeSize)
			assert.Equal(t, tc.want[0], out[0].Position)
			assert.Equal(t, tc.want[1], out[1].Position)
			assert.Equal(t, graph.Position{X: 400, Y: 400}, out[2].Position)
		})
	}
}

func TestAlignNeedsTwoNodes(t *testing.T) {
	nodes := []graph.Node{node("a", 10, 5), node("b", 50, 100)}
	out := AlignNodes(nodes, []string{"a"}, AlignLeft, nodeSize)
	assert.Equal(t, nodes, out)
}

func TestDistributeNodesHorizontal(t *testing.T) {
	nodes := []graph.Node{node("a", 0, 0), node("b", 100, 7), node("c", 500, 0)}

	out := DistributeNodes(nodes, []string{"a", "b", "c"}, Horizontal)
	assert.Equal(t, 0.0, out[0].Position.X)
	assert.Equal(t, 250.0, out[1].Position.X)
	assert.Equal(t, 7.0, out[1].Position.Y)
	assert.Equal(t, 500.0, out[2].Position.X)
}

func TestDistributeNodesVerticalUnordered(t *testing.T) {
	nodes := []graph.Node{node("low", 0, 900), node("top", 0, 0), node("mid", 0, 100), node("other", 0, 50)}

	out := DistributeNodes(nodes, []string{"low", "top", "mid", "other"}, Vertical)
	assert.Equal(t, 900.0, out[0].Position.Y)
	assert.Equal(t, 0.0, out[1].Position.Y)
	assert.Equal(t, 600.0, out[2].Position.Y)
	assert.Equal(t, 300.0, out[3].Position.Y)
}

func TestDistributeNeedsThreeNodes(t *testing.T) {
	nodes := []graph.Node{node("a", 0, 0), node("b", 100, 0), node("c", 500, 0)}
	out := DistributeNodes(nodes, []string{"a", "b"}, Horizontal)
	assert.Equal(t, nodes, out)
}
