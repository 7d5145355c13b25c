package graph

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/AaronLay10/FlowEngine/internal/geometry"
)

// GroupPadding is the margin kept around member nodes.
const GroupPadding = 20

// DefaultGroupLabel is used when a group is created without a label.
const DefaultGroupLabel = "New group"

var (
	ErrGroupTooSmall = errors.New("a group needs at least two nodes")
	ErrGroupNotFound = errors.New("group not found")
)

// Group is a visual container around a set of nodes.
type Group struct {
	ID        string        `json:"id" yaml:"id"`
	Label     string        `json:"label" yaml:"label"`
	NodeIDs   []string      `json:"nodeIds" yaml:"nodeIds"`
	Position  Position      `json:"position" yaml:"position"`
	Size      geometry.Size `json:"size" yaml:"size"`
	Color     string        `json:"color" yaml:"color"`
	Collapsed bool          `json:"collapsed" yaml:"collapsed"`
}

// Has reports membership of nodeID.
func (g Group) Has(nodeID string) bool {
	return slices.Contains(g.NodeIDs, nodeID)
}

func (g Group) clone() Group {
	g.NodeIDs = slices.Clone(g.NodeIDs)
	return g
}

// Groups is the ordered set of groups on a canvas. Methods return a new value.
type Groups []Group

// Clone deep-copies gs.
func (gs Groups) Clone() Groups {
	if gs == nil {
		return nil
	}
	out := make(Groups, len(gs))
	for i, g := range gs {
		out[i] = g.clone()
	}
	return out
}

// Create adds a group around nodeIDs sized to fit their boxes.
func (gs Groups) Create(id, label string, nodeIDs []string, nodes []Node, nodeSize geometry.Size) (Groups, Group, error) {
	members := dedupe(nodeIDs)
	if len(members) < 2 {
		return gs, Group{}, ErrGroupTooSmall
	}
	if label == "" {
		label = DefaultGroupLabel
	}
	g := Group{
		ID:      id,
		Label:   label,
		NodeIDs: members,
		Color:   fmt.Sprintf("hsl(%d, 70%%, 60%%)", rand.IntN(360)),
	}
	if r, ok := memberBounds(members, nodes, nodeSize); ok {
		g.Position = Position{X: r.X, Y: r.Y}
		g.Size = geometry.Size{Width: r.Width, Height: r.Height}
	}
	out := append(gs.Clone(), g)
	return out, g.clone(), nil
}

// Get finds a group by id.
func (gs Groups) Get(id string) (Group, bool) {
	for _, g := range gs {
		if g.ID == id {
			return g.clone(), true
		}
	}
	return Group{}, false
}

// Dissolve removes a group; member nodes are untouched.
func (gs Groups) Dissolve(id string) Groups {
	return slices.DeleteFunc(gs.Clone(), func(g Group) bool { return g.ID == id })
}

// AddNodes adds members to a group, ignoring ones already present.
func (gs Groups) AddNodes(id string, nodeIDs ...string) (Groups, error) {
	out := gs.Clone()
	for i := range out {
		if out[i].ID == id {
			out[i].NodeIDs = dedupe(append(out[i].NodeIDs, nodeIDs...))
			return out, nil
		}
	}
	return gs, fmt.Errorf("%s: %w", id, ErrGroupNotFound)
}

// RemoveNodes drops members from a group. A group left empty is dissolved.
func (gs Groups) RemoveNodes(id string, nodeIDs ...string) Groups {
	out := gs.Clone()
	for i := range out {
		if out[i].ID == id {
			out[i].NodeIDs = slices.DeleteFunc(out[i].NodeIDs, func(n string) bool {
				return slices.Contains(nodeIDs, n)
			})
		}
	}
	return dropEmpty(out)
}

// ForgetNodes removes deleted nodes from every group, dissolving groups that
// end up empty.
func (gs Groups) ForgetNodes(nodeIDs ...string) Groups {
	out := gs.Clone()
	for i := range out {
		out[i].NodeIDs = slices.DeleteFunc(out[i].NodeIDs, func(n string) bool {
			return slices.Contains(nodeIDs, n)
		})
	}
	return dropEmpty(out)
}

// GroupUpdate carries the editable group fields; nil fields are left alone.
type GroupUpdate struct {
	Label    *string        `json:"label,omitempty"`
	Color    *string        `json:"color,omitempty"`
	Position *Position      `json:"position,omitempty"`
	Size     *geometry.Size `json:"size,omitempty"`
}

// Update applies u to one group.
func (gs Groups) Update(id string, u GroupUpdate) (Groups, error) {
	out := gs.Clone()
	for i := range out {
		if out[i].ID != id {
			continue
		}
		if u.Label != nil {
			out[i].Label = *u.Label
		}
		if u.Color != nil {
			out[i].Color = *u.Color
		}
		if u.Position != nil {
			out[i].Position = *u.Position
		}
		if u.Size != nil {
			out[i].Size = *u.Size
		}
		return out, nil
	}
	return gs, fmt.Errorf("%s: %w", id, ErrGroupNotFound)
}

// ResizeToFit recomputes a group's bounds from its members' positions. A
// group whose members are all missing keeps its bounds.
func (gs Groups) ResizeToFit(id string, nodes []Node, nodeSize geometry.Size) (Groups, error) {
	out := gs.Clone()
	for i := range out {
		if out[i].ID != id {
			continue
		}
		if r, ok := memberBounds(out[i].NodeIDs, nodes, nodeSize); ok {
			out[i].Position = Position{X: r.X, Y: r.Y}
			out[i].Size = geometry.Size{Width: r.Width, Height: r.Height}
		}
		return out, nil
	}
	return gs, fmt.Errorf("%s: %w", id, ErrGroupNotFound)
}

// ToggleCollapse flips the collapsed flag of one group.
func (gs Groups) ToggleCollapse(id string) (Groups, error) {
	out := gs.Clone()
	for i := range out {
		if out[i].ID == id {
			out[i].Collapsed = !out[i].Collapsed
			return out, nil
		}
	}
	return gs, fmt.Errorf("%s: %w", id, ErrGroupNotFound)
}

// Members returns the node ids of a group, nil when it does not exist.
func (gs Groups) Members(id string) []string {
	if g, ok := gs.Get(id); ok {
		return g.NodeIDs
	}
	return nil
}

// GroupOf returns the id of the first group containing nodeID.
func (gs Groups) GroupOf(nodeID string) (string, bool) {
	for _, g := range gs {
		if g.Has(nodeID) {
			return g.ID, true
		}
	}
	return "", false
}

func memberBounds(members []string, nodes []Node, size geometry.Size) (geometry.Rect, bool) {
	var rects []geometry.Rect
	for _, n := range nodes {
		if slices.Contains(members, n.ID) {
			rects = append(rects, geometry.RectAt(n.Position, size))
		}
	}
	r, ok := geometry.Bounds(rects)
	if !ok {
		return r, false
	}
	return r.Inflate(GroupPadding), true
}

func dropEmpty(gs Groups) Groups {
	return slices.DeleteFunc(gs, func(g Group) bool { return len(g.NodeIDs) == 0 })
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
