// Package graph is the structural model of a workflow: nodes, edges, groups
// and annotations, plus the document format used for import and export.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/FlowEngine/internal/geometry"
)

var (
	ErrDuplicateID  = errors.New("duplicate id")
	ErrDanglingEdge = errors.New("edge references unknown node")
	ErrNodeNotFound = errors.New("node not found")
)

// Position is a canvas coordinate.
type Position = geometry.Point

// Node is one workflow step.
type Node struct {
	ID       string
	Type     string
	Position Position
	Data     NodeData
}

// Label is the display label of the node, falling back to its id.
func (n Node) Label() string {
	if n.Data != nil {
		if s := n.Data.Title(); s != "" {
			return s
		}
	}
	return n.ID
}

// Clone returns a copy that shares nothing with n.
func (n Node) Clone() Node {
	if n.Data != nil {
		n.Data = n.Data.Clone()
	}
	return n
}

type nodeJSON struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	w := nodeJSON{ID: n.ID, Type: n.Type, Position: n.Position}
	if n.Data != nil {
		payload, err := dataPayload(n.Data)
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		w.Data = raw
	}
	return json.Marshal(w)
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var w nodeJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*n = Node{ID: w.ID, Type: w.Type, Position: w.Position}
	if len(w.Data) == 0 || string(w.Data) == "null" {
		return nil
	}
	d, err := DecodeDataJSON(w.Type, w.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", w.ID, err)
	}
	n.Data = d
	return nil
}

type nodeYAML struct {
	ID       string    `yaml:"id"`
	Type     string    `yaml:"type"`
	Position Position  `yaml:"position"`
	Data     yaml.Node `yaml:"data,omitempty"`
}

func (n Node) MarshalYAML() (interface{}, error) {
	out := struct {
		ID       string   `yaml:"id"`
		Type     string   `yaml:"type"`
		Position Position `yaml:"position"`
		Data     any      `yaml:"data"`
	}{ID: n.ID, Type: n.Type, Position: n.Position}
	if n.Data != nil {
		payload, err := dataPayload(n.Data)
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		out.Data = payload
	}
	return out, nil
}

func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var w nodeYAML
	if err := value.Decode(&w); err != nil {
		return err
	}
	*n = Node{ID: w.ID, Type: w.Type, Position: w.Position}
	if w.Data.Kind == 0 || w.Data.Tag == "!!null" {
		return nil
	}
	d, err := decodeDataYAML(w.Type, &w.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", w.ID, err)
	}
	n.Data = d
	return nil
}

// Edge is a directed connection from one node's output to another's input.
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
	Label        string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Touches reports whether id is either endpoint of e.
func (e Edge) Touches(id string) bool {
	return e.Source == id || e.Target == id
}

// EdgeID is the conventional id of a connection between two nodes.
func EdgeID(source, target string) string {
	return "edge-" + source + "-" + target
}

// Snapshot is the {nodes, edges} pair tracked by history and consumed by the
// execution engine. Methods never modify the receiver.
type Snapshot struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Clone deep-copies s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Nodes: CloneNodes(s.Nodes), Edges: slices.Clone(s.Edges)}
	return out
}

// CloneNodes deep-copies a node list.
func CloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// Validate checks id uniqueness and that every edge endpoint exists.
func (s Snapshot) Validate() error {
	ids := make(map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		if _, ok := ids[n.ID]; ok {
			return fmt.Errorf("node %q: %w", n.ID, ErrDuplicateID)
		}
		ids[n.ID] = struct{}{}
	}
	edgeIDs := make(map[string]struct{}, len(s.Edges))
	for _, e := range s.Edges {
		if _, ok := edgeIDs[e.ID]; ok {
			return fmt.Errorf("edge %q: %w", e.ID, ErrDuplicateID)
		}
		edgeIDs[e.ID] = struct{}{}
		if _, ok := ids[e.Source]; !ok {
			return fmt.Errorf("edge %q source %q: %w", e.ID, e.Source, ErrDanglingEdge)
		}
		if _, ok := ids[e.Target]; !ok {
			return fmt.Errorf("edge %q target %q: %w", e.ID, e.Target, ErrDanglingEdge)
		}
	}
	return nil
}

// Node looks up a node by id.
func (s Snapshot) Node(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIDs returns node ids in model order.
func (s Snapshot) NodeIDs() []string {
	ids := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Incoming returns the edges that end at id, in edge order.
func (s Snapshot) Incoming(id string) []Edge {
	var out []Edge
	for _, e := range s.Edges {
		if e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// WithNode appends n.
func (s Snapshot) WithNode(n Node) Snapshot {
	out := s.Clone()
	out.Nodes = append(out.Nodes, n.Clone())
	return out
}

// Connect adds an edge between two existing nodes. An edge with the same
// endpoints and handles is not added twice.
func (s Snapshot) Connect(e Edge) (Snapshot, error) {
	if _, ok := s.Node(e.Source); !ok {
		return s, fmt.Errorf("source %q: %w", e.Source, ErrDanglingEdge)
	}
	if _, ok := s.Node(e.Target); !ok {
		return s, fmt.Errorf("target %q: %w", e.Target, ErrDanglingEdge)
	}
	if e.ID == "" {
		e.ID = EdgeID(e.Source, e.Target)
	}
	for _, existing := range s.Edges {
		if existing.ID == e.ID {
			return s, fmt.Errorf("edge %q: %w", e.ID, ErrDuplicateID)
		}
	}
	out := s.Clone()
	out.Edges = append(out.Edges, e)
	return out, nil
}

// Disconnect drops the edge with the given id.
func (s Snapshot) Disconnect(edgeID string) Snapshot {
	out := s.Clone()
	out.Edges = slices.DeleteFunc(out.Edges, func(e Edge) bool { return e.ID == edgeID })
	return out
}

// MoveNode sets the position of one node.
func (s Snapshot) MoveNode(id string, pos Position) (Snapshot, error) {
	out := s.Clone()
	for i := range out.Nodes {
		if out.Nodes[i].ID == id {
			out.Nodes[i].Position = pos
			return out, nil
		}
	}
	return s, fmt.Errorf("%s: %w", id, ErrNodeNotFound)
}

// UpdateData replaces the data of one node.
func (s Snapshot) UpdateData(id string, data NodeData) (Snapshot, error) {
	out := s.Clone()
	for i := range out.Nodes {
		if out.Nodes[i].ID == id {
			out.Nodes[i].Data = data.Clone()
			return out, nil
		}
	}
	return s, fmt.Errorf("%s: %w", id, ErrNodeNotFound)
}

// RemoveNodes deletes the given nodes and every edge touching them.
func (s Snapshot) RemoveNodes(ids ...string) Snapshot {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := Snapshot{}
	for _, n := range s.Nodes {
		if _, ok := drop[n.ID]; !ok {
			out.Nodes = append(out.Nodes, n.Clone())
		}
	}
	for _, e := range s.Edges {
		_, src := drop[e.Source]
		_, dst := drop[e.Target]
		if !src && !dst {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

// NodeAt returns the topmost node whose box contains p. Later nodes are
// drawn above earlier ones.
func NodeAt(nodes []Node, p Position, size geometry.Size) (Node, bool) {
	for i := len(nodes) - 1; i >= 0; i-- {
		if geometry.RectAt(nodes[i].Position, size).Contains(p) {
			return nodes[i], true
		}
	}
	return Node{}, false
}
