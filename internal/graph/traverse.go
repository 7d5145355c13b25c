package graph

// Traversal is the result of a depth-first walk over the forward edges of a
// snapshot.
type Traversal struct {
	// Starts are the seed nodes: every node without incoming edges, or the
	// first node when there is none.
	Starts []string
	// Order lists reachable nodes in reverse postorder (a topological order
	// when the graph is acyclic), followed by unreachable nodes in model order.
	Order []string
	// Reachable marks nodes visited from Starts.
	Reachable map[string]bool
	// BackEdges are the edges that close a cycle. They are excluded from
	// layering and scheduling.
	BackEdges []Edge
	// Forward holds the outgoing non-back edges per node, in edge order.
	Forward map[string][]Edge
}

type mark uint8

const (
	unvisited mark = iota
	visiting
	visited
)

type frame struct {
	id   string
	next int
}

// Walk runs an iterative depth-first search seeded from the zero in-degree
// nodes. Edges to unknown nodes and self loops are ignored, the latter being
// reported as back edges.
func Walk(s Snapshot) Traversal {
	known := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		known[n.ID] = true
	}
	out := make(map[string][]Edge, len(s.Nodes))
	indeg := make(map[string]int, len(s.Nodes))
	for _, e := range s.Edges {
		if !known[e.Source] || !known[e.Target] {
			continue
		}
		out[e.Source] = append(out[e.Source], e)
		indeg[e.Target]++
	}

	t := Traversal{
		Reachable: make(map[string]bool, len(s.Nodes)),
		Forward:   make(map[string][]Edge, len(s.Nodes)),
	}
	for _, n := range s.Nodes {
		if indeg[n.ID] == 0 {
			t.Starts = append(t.Starts, n.ID)
		}
	}
	if len(t.Starts) == 0 && len(s.Nodes) > 0 {
		t.Starts = []string{s.Nodes[0].ID}
	}

	marks := make(map[string]mark, len(s.Nodes))
	var post []string
	for _, start := range t.Starts {
		if marks[start] != unvisited {
			continue
		}
		marks[start] = visiting
		stack := []frame{{id: start}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := out[top.id]
			if top.next < len(edges) {
				e := edges[top.next]
				top.next++
				switch marks[e.Target] {
				case unvisited:
					t.Forward[top.id] = append(t.Forward[top.id], e)
					marks[e.Target] = visiting
					stack = append(stack, frame{id: e.Target})
				case visiting:
					t.BackEdges = append(t.BackEdges, e)
				default:
					t.Forward[top.id] = append(t.Forward[top.id], e)
				}
				continue
			}
			marks[top.id] = visited
			post = append(post, top.id)
			stack = stack[:len(stack)-1]
		}
	}

	t.Order = make([]string, 0, len(s.Nodes))
	for i := len(post) - 1; i >= 0; i-- {
		t.Order = append(t.Order, post[i])
		t.Reachable[post[i]] = true
	}
	for _, n := range s.Nodes {
		if !t.Reachable[n.ID] {
			t.Order = append(t.Order, n.ID)
		}
	}
	return t
}
