// Package selection tracks which nodes are selected and holds the clipboard
// used for copy, paste and duplicate.
package selection

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/geometry"
	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// DefaultPasteOffset is how far pasted nodes are shifted from the originals.
const DefaultPasteOffset = 50

// Clipboard is a detached copy of nodes and the edges among them.
type Clipboard struct {
	Nodes []graph.Node `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
}

func (c Clipboard) clone() Clipboard {
	return Clipboard{Nodes: graph.CloneNodes(c.Nodes), Edges: append([]graph.Edge(nil), c.Edges...)}
}

// Engine holds the selected node ids and the clipboard.
type Engine struct {
	mu        sync.Mutex
	selected  map[string]struct{}
	clipboard *Clipboard
	newID     graph.IDFunc
	log       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDFunc overrides how pasted nodes get their ids.
func WithIDFunc(fn graph.IDFunc) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an engine with nothing selected and an empty clipboard.
func New(opts ...Option) *Engine {
	e := &Engine{
		selected: make(map[string]struct{}),
		newID:    graph.NewID,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(zap.String("component", "selection"))
	return e
}

// SelectNode makes id the whole selection, or toggles it when multi is set.
func (e *Engine) SelectNode(id string, multi bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !multi {
		e.selected = map[string]struct{}{id: {}}
		return
	}
	if _, ok := e.selected[id]; ok {
		delete(e.selected, id)
		return
	}
	e.selected[id] = struct{}{}
}

// SelectAll selects every given id.
func (e *Engine) SelectAll(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replace(ids)
}

// ClearSelection deselects everything.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = make(map[string]struct{})
}

// SelectArea selects the nodes whose boxes strictly overlap the rectangle
// spanned by start and end, replacing the previous selection.
func (e *Engine) SelectArea(start, end geometry.Point, nodes []graph.Node, size geometry.Size) []string {
	area := geometry.RectFromCorners(start, end)
	var hit []string
	for _, n := range nodes {
		if geometry.RectAt(n.Position, size).Overlaps(area) {
			hit = append(hit, n.ID)
		}
	}
	e.mu.Lock()
	e.replace(hit)
	e.mu.Unlock()
	return hit
}

func (e *Engine) replace(ids []string) {
	e.selected = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		e.selected[id] = struct{}{}
	}
}

// Selected returns the selected ids, sorted.
func (e *Engine) Selected() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.selected))
	for id := range e.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsSelected reports whether id is selected.
func (e *Engine) IsSelected(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.selected[id]
	return ok
}

// HasSelection reports whether anything is selected.
func (e *Engine) HasSelection() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.selected) > 0
}

// Prune drops selected ids that are no longer nodes.
func (e *Engine) Prune(nodes []graph.Node) {
	live := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		live[n.ID] = true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.selected {
		if !live[id] {
			delete(e.selected, id)
		}
	}
}

// Copy puts the selected nodes, and the edges whose both ends are selected,
// on the clipboard. With nothing selected the clipboard is left as is.
func (e *Engine) Copy(nodes []graph.Node, edges []graph.Edge) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.selected) == 0 {
		return 0
	}
	cb := Clipboard{}
	for _, n := range nodes {
		if _, ok := e.selected[n.ID]; ok {
			cb.Nodes = append(cb.Nodes, n.Clone())
		}
	}
	for _, ed := range edges {
		_, src := e.selected[ed.Source]
		_, dst := e.selected[ed.Target]
		if src && dst {
			cb.Edges = append(cb.Edges, ed)
		}
	}
	e.clipboard = &cb
	e.log.Debug("copied to clipboard", zap.Int("nodes", len(cb.Nodes)), zap.Int("edges", len(cb.Edges)))
	return len(cb.Nodes)
}

// HasClipboard reports whether a paste would do anything.
func (e *Engine) HasClipboard() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clipboard != nil && len(e.clipboard.Nodes) > 0
}

// Clipboard returns a copy of the clipboard contents.
func (e *Engine) Clipboard() Clipboard {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clipboard == nil {
		return Clipboard{}
	}
	return e.clipboard.clone()
}

// Paste appends fresh copies of the clipboard to nodes and edges, shifted by
// offset, and selects the pasted nodes. An empty clipboard returns the
// inputs unchanged.
func (e *Engine) Paste(nodes []graph.Node, edges []graph.Edge, offset geometry.Point) ([]graph.Node, []graph.Edge) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clipboard == nil || len(e.clipboard.Nodes) == 0 {
		return nodes, edges
	}

	cb := e.clipboard.clone()
	remap := make(map[string]string, len(cb.Nodes))
	outNodes := graph.CloneNodes(nodes)
	pasted := make([]string, 0, len(cb.Nodes))
	for _, n := range cb.Nodes {
		id := e.newID(n.Type)
		remap[n.ID] = id
		n.ID = id
		n.Position = n.Position.Add(offset)
		outNodes = append(outNodes, n)
		pasted = append(pasted, id)
	}

	outEdges := append([]graph.Edge(nil), edges...)
	for _, ed := range cb.Edges {
		src, ok1 := remap[ed.Source]
		dst, ok2 := remap[ed.Target]
		if !ok1 || !ok2 {
			continue
		}
		ed.ID = graph.EdgeID(src, dst)
		ed.Source, ed.Target = src, dst
		outEdges = append(outEdges, ed)
	}

	e.replace(pasted)
	return outNodes, outEdges
}

// Duplicate copies the selection and pastes it at the default offset.
func (e *Engine) Duplicate(nodes []graph.Node, edges []graph.Edge) ([]graph.Node, []graph.Edge) {
	if e.Copy(nodes, edges) == 0 {
		return nodes, edges
	}
	return e.Paste(nodes, edges, geometry.Point{X: DefaultPasteOffset, Y: DefaultPasteOffset})
}

// DeleteSelected removes the selected nodes and every edge touching them,
// then clears the selection. It also returns the removed ids.
func (e *Engine) DeleteSelected(nodes []graph.Node, edges []graph.Edge) ([]graph.Node, []graph.Edge, []string) {
	removed := e.Selected()
	if len(removed) == 0 {
		return nodes, edges, nil
	}
	s := graph.Snapshot{Nodes: nodes, Edges: edges}.RemoveNodes(removed...)
	e.ClearSelection()
	return s.Nodes, s.Edges, removed
}
