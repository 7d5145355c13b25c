package workspace

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/events"
	"github.com/AaronLay10/FlowEngine/internal/geometry"
	"github.com/AaronLay10/FlowEngine/internal/graph"
	"github.com/AaronLay10/FlowEngine/internal/layout"
	"github.com/AaronLay10/FlowEngine/internal/selection"
)

// AddNode creates a node of a registered type at pos.
func (w *Workspace) AddNode(typ string, pos graph.Position) (graph.Node, error) {
	n, ok := w.reg.CreateNode(typ, pos)
	if !ok {
		return graph.Node{}, fmt.Errorf("%q: %w", typ, ErrUnknownNodeType)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.edit("add_node", false, func(d *graph.Document) error {
		d.Nodes = append(d.Nodes, n)
		return nil
	})
	return n, err
}

// UpdateNodeData replaces the data of a node from loosely typed fields.
func (w *Workspace) UpdateNodeData(id string, fields map[string]any) (graph.Node, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var updated graph.Node
	err := w.edit("update_node", false, func(d *graph.Document) error {
		n, ok := d.Snapshot().Node(id)
		if !ok {
			return fmt.Errorf("%s: %w", id, graph.ErrNodeNotFound)
		}
		data, err := graph.DataFromMap(n.Type, fields)
		if err != nil {
			return err
		}
		s, err := d.Snapshot().UpdateData(id, data)
		if err != nil {
			return err
		}
		d.Nodes = s.Nodes
		updated, _ = s.Node(id)
		return nil
	})
	return updated, err
}

// MoveNode sets a node position. Transient moves (drag frames) replace the
// present without an undo step; the final committed move undoes the whole
// drag.
func (w *Workspace) MoveNode(id string, pos graph.Position, transient bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edit("move_node", transient, func(d *graph.Document) error {
		s, err := d.Snapshot().MoveNode(id, pos)
		if err != nil {
			return err
		}
		d.Nodes = s.Nodes
		return nil
	})
}

// DeleteNodes removes nodes with their edges, group memberships and
// selection.
func (w *Workspace) DeleteNodes(ids ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edit("delete_nodes", false, func(d *graph.Document) error {
		w.removeNodes(d, ids)
		return nil
	})
}

func (w *Workspace) removeNodes(d *graph.Document, ids []string) {
	s := d.Snapshot().RemoveNodes(ids...)
	d.Nodes, d.Edges = s.Nodes, s.Edges
	d.Groups = d.Groups.ForgetNodes(ids...)
	w.sel.Prune(d.Nodes)
}

// Connect adds an edge. The id defaults to edge-<source>-<target>.
func (w *Workspace) Connect(e graph.Edge) (graph.Edge, error) {
	if e.ID == "" {
		e.ID = graph.EdgeID(e.Source, e.Target)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.edit("connect", false, func(d *graph.Document) error {
		s, err := d.Snapshot().Connect(e)
		if err != nil {
			return err
		}
		d.Edges = s.Edges
		return nil
	})
	return e, err
}

// Disconnect removes an edge.
func (w *Workspace) Disconnect(edgeID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edit("disconnect", false, func(d *graph.Document) error {
		d.Edges = d.Snapshot().Disconnect(edgeID).Edges
		return nil
	})
}

// NodeAt returns the topmost node under p.
func (w *Workspace) NodeAt(p geometry.Point) (graph.Node, bool) {
	return graph.NodeAt(w.Document().Nodes, p, w.nodeSize)
}

// EdgePath is the drawable route of one edge.
type EdgePath struct {
	ID    string         `json:"id"`
	Path  string         `json:"path"`
	Label geometry.Point `json:"labelPosition"`
}

// EdgePaths computes the bezier route of every edge between the source's
// output handle and the target's input handle.
func (w *Workspace) EdgePaths() []EdgePath {
	s := w.Snapshot()
	out := make([]EdgePath, 0, len(s.Edges))
	for _, e := range s.Edges {
		src, ok1 := s.Node(e.Source)
		dst, ok2 := s.Node(e.Target)
		if !ok1 || !ok2 {
			continue
		}
		a := geometry.HandlePosition(src.Position, w.nodeSize, geometry.HandleSource)
		b := geometry.HandlePosition(dst.Position, w.nodeSize, geometry.HandleTarget)
		out = append(out, EdgePath{ID: e.ID, Path: geometry.BezierPath(a, b), Label: geometry.LabelPosition(a, b)})
	}
	return out
}

// EdgeAt returns the first edge whose route passes near p.
func (w *Workspace) EdgeAt(p geometry.Point, threshold float64) (graph.Edge, bool) {
	s := w.Snapshot()
	for _, e := range s.Edges {
		src, ok1 := s.Node(e.Source)
		dst, ok2 := s.Node(e.Target)
		if !ok1 || !ok2 {
			continue
		}
		a := geometry.HandlePosition(src.Position, w.nodeSize, geometry.HandleSource)
		b := geometry.HandlePosition(dst.Position, w.nodeSize, geometry.HandleTarget)
		if geometry.IsPointNearBezier(p, a, b, threshold) {
			return e, true
		}
	}
	return graph.Edge{}, false
}

// InvalidNodes lists nodes their type's validator rejects.
func (w *Workspace) InvalidNodes() []string {
	var out []string
	for _, n := range w.Document().Nodes {
		if !w.reg.Validate(n) {
			out = append(out, n.ID)
		}
	}
	return out
}

// AutoLayout arranges the nodes in layers. Back edges that close a cycle
// are ignored and reported.
func (w *Workspace) AutoLayout() (layout.Layering, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var lay layout.Layering
	started := time.Now()
	err := w.edit("layout", false, func(d *graph.Document) error {
		d.Nodes, lay = layout.AutoLayout(d.Nodes, d.Edges, w.layoutOpts)
		return nil
	})
	if err != nil {
		return lay, err
	}
	n := len(w.hist.Present().Nodes)
	if w.metrics != nil {
		w.metrics.RecordLayout(n, time.Since(started))
	}
	if len(lay.BackEdges) > 0 {
		ids := make([]string, len(lay.BackEdges))
		for i, e := range lay.BackEdges {
			ids[i] = e.ID
		}
		w.log.Warn("cycle detected, back edges ignored by layout", zap.Strings("edges", ids))
	}
	w.emit(events.LevelInfo, events.GraphLayout, map[string]interface{}{
		"nodes":      n,
		"layers":     len(lay.Layers),
		"back_edges": len(lay.BackEdges),
	})
	return lay, nil
}

// Align snaps the selected nodes to a common line.
func (w *Workspace) Align(dir layout.Alignment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edit("align", false, func(d *graph.Document) error {
		d.Nodes = layout.AlignNodes(d.Nodes, w.sel.Selected(), dir, w.nodeSize)
		return nil
	})
}

// Distribute spaces the selected nodes evenly along axis.
func (w *Workspace) Distribute(axis layout.Axis) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edit("distribute", false, func(d *graph.Document) error {
		d.Nodes = layout.DistributeNodes(d.Nodes, w.sel.Selected(), axis)
		return nil
	})
}

// FitToView frames the canvas in a viewport of vw×vh.
func (w *Workspace) FitToView(vw, vh, padding float64) layout.Viewport {
	return layout.FitToView(w.Document().Nodes, vw, vh, w.nodeSize, padding)
}

// Select makes id the selection, or toggles it when multi is set.
func (w *Workspace) Select(id string, multi bool) {
	w.sel.SelectNode(id, multi)
}

// SelectAll selects every node.
func (w *Workspace) SelectAll() {
	w.sel.SelectAll(w.Snapshot().NodeIDs())
}

func (w *Workspace) ClearSelection() {
	w.sel.ClearSelection()
}

// SelectArea selects the nodes overlapping the rectangle between two
// corners.
func (w *Workspace) SelectArea(start, end geometry.Point) []string {
	return w.sel.SelectArea(start, end, w.Document().Nodes, w.nodeSize)
}

// Selected returns the selected node ids.
func (w *Workspace) Selected() []string {
	return w.sel.Selected()
}

// Copy puts the selection on the clipboard and returns how many nodes were
// copied.
func (w *Workspace) Copy() int {
	s := w.Snapshot()
	return w.sel.Copy(s.Nodes, s.Edges)
}

// Clipboard returns a copy of the clipboard.
func (w *Workspace) Clipboard() selection.Clipboard {
	return w.sel.Clipboard()
}

// Paste inserts fresh copies of the clipboard shifted by offset and selects
// them. An empty clipboard changes nothing.
func (w *Workspace) Paste(offset geometry.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edit("paste", false, func(d *graph.Document) error {
		d.Nodes, d.Edges = w.sel.Paste(d.Nodes, d.Edges, offset)
		return nil
	})
}

// Duplicate copies and pastes the selection in one step.
func (w *Workspace) Duplicate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edit("duplicate", false, func(d *graph.Document) error {
		d.Nodes, d.Edges = w.sel.Duplicate(d.Nodes, d.Edges)
		return nil
	})
}

// DeleteSelected removes the selected nodes, returning their ids.
func (w *Workspace) DeleteSelected() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := w.sel.Selected()
	err := w.edit("delete_selected", false, func(d *graph.Document) error {
		w.removeNodes(d, removed)
		return nil
	})
	return removed, err
}

// CreateGroup groups nodeIDs, or the selection when nodeIDs is empty.
func (w *Workspace) CreateGroup(label string, nodeIDs []string) (graph.Group, error) {
	if len(nodeIDs) == 0 {
		nodeIDs = w.sel.Selected()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var g graph.Group
	err := w.edit("create_group", false, func(d *graph.Document) error {
		s := d.Snapshot()
		for _, id := range nodeIDs {
			if _, ok := s.Node(id); !ok {
				return fmt.Errorf("%s: %w", id, graph.ErrNodeNotFound)
			}
		}
		var err error
		d.Groups, g, err = d.Groups.Create(w.ids("group"), label, nodeIDs, d.Nodes, w.nodeSize)
		return err
	})
	return g, err
}

// DissolveGroup removes a group, keeping its nodes.
func (w *Workspace) DissolveGroup(id string) error {
	return w.editGroups("dissolve_group", func(gs graph.Groups, _ []graph.Node) (graph.Groups, error) {
		if _, ok := gs.Get(id); !ok {
			return gs, fmt.Errorf("%s: %w", id, graph.ErrGroupNotFound)
		}
		return gs.Dissolve(id), nil
	})
}

// AddToGroup adds existing nodes to a group.
func (w *Workspace) AddToGroup(id string, nodeIDs ...string) error {
	return w.editGroups("group_add", func(gs graph.Groups, nodes []graph.Node) (graph.Groups, error) {
		for _, n := range nodeIDs {
			if !slices.ContainsFunc(nodes, func(x graph.Node) bool { return x.ID == n }) {
				return gs, fmt.Errorf("%s: %w", n, graph.ErrNodeNotFound)
			}
		}
		return gs.AddNodes(id, nodeIDs...)
	})
}

// RemoveFromGroup drops members; a group left empty dissolves.
func (w *Workspace) RemoveFromGroup(id string, nodeIDs ...string) error {
	return w.editGroups("group_remove", func(gs graph.Groups, _ []graph.Node) (graph.Groups, error) {
		if _, ok := gs.Get(id); !ok {
			return gs, fmt.Errorf("%s: %w", id, graph.ErrGroupNotFound)
		}
		return gs.RemoveNodes(id, nodeIDs...), nil
	})
}

// UpdateGroup edits label, color, position or size.
func (w *Workspace) UpdateGroup(id string, u graph.GroupUpdate) error {
	return w.editGroups("update_group", func(gs graph.Groups, _ []graph.Node) (graph.Groups, error) {
		return gs.Update(id, u)
	})
}

// FitGroup resizes a group around its members.
func (w *Workspace) FitGroup(id string) error {
	return w.editGroups("fit_group", func(gs graph.Groups, nodes []graph.Node) (graph.Groups, error) {
		return gs.ResizeToFit(id, nodes, w.nodeSize)
	})
}

// ToggleGroup collapses or expands a group.
func (w *Workspace) ToggleGroup(id string) error {
	return w.editGroups("toggle_group", func(gs graph.Groups, _ []graph.Node) (graph.Groups, error) {
		return gs.ToggleCollapse(id)
	})
}

func (w *Workspace) editGroups(op string, fn func(graph.Groups, []graph.Node) (graph.Groups, error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edit(op, false, func(d *graph.Document) error {
		gs, err := fn(d.Groups, d.Nodes)
		if err != nil {
			return err
		}
		d.Groups = gs
		return nil
	})
}

// AddAnnotation places a note, comment or arrow on the canvas.
func (w *Workspace) AddAnnotation(typ graph.AnnotationType, pos graph.Position, content string) (graph.Annotation, error) {
	a, err := graph.NewAnnotation(w.ids("annotation"), typ, pos, content, w.now())
	if err != nil {
		return graph.Annotation{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	err = w.edit("add_annotation", false, func(d *graph.Document) error {
		d.Annotations = d.Annotations.Add(a)
		return nil
	})
	return a, err
}

// UpdateAnnotation edits content, color or font size.
func (w *Workspace) UpdateAnnotation(id string, u graph.AnnotationUpdate) error {
	return w.editAnnotations("update_annotation", false, func(as graph.Annotations) (graph.Annotations, error) {
		return as.Update(id, u)
	})
}

// MoveAnnotation repositions an annotation; transient works as in MoveNode.
func (w *Workspace) MoveAnnotation(id string, pos graph.Position, transient bool) error {
	return w.editAnnotations("move_annotation", transient, func(as graph.Annotations) (graph.Annotations, error) {
		return as.Move(id, pos)
	})
}

func (w *Workspace) ResizeAnnotation(id string, width, height float64) error {
	return w.editAnnotations("resize_annotation", false, func(as graph.Annotations) (graph.Annotations, error) {
		return as.Resize(id, width, height)
	})
}

func (w *Workspace) DeleteAnnotation(id string) error {
	return w.editAnnotations("delete_annotation", false, func(as graph.Annotations) (graph.Annotations, error) {
		out := as.Delete(id)
		if len(out) == len(as) {
			return as, fmt.Errorf("%s: %w", id, graph.ErrAnnotationNotFound)
		}
		return out, nil
	})
}

func (w *Workspace) editAnnotations(op string, transient bool, fn func(graph.Annotations) (graph.Annotations, error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edit(op, transient, func(d *graph.Document) error {
		as, err := fn(d.Annotations)
		if err != nil {
			return err
		}
		d.Annotations = as
		return nil
	})
}
