// Package registry is the catalog of node types a canvas can contain.
package registry

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// Category groups node types in a palette.
type Category string

const (
	CategoryInput     Category = "input"
	CategoryOutput    Category = "output"
	CategoryAI        Category = "ai"
	CategoryLogic     Category = "logic"
	CategoryTransform Category = "transform"
	CategoryCustom    Category = "custom"
)

// Display fallbacks for types that are not registered.
const (
	FallbackColor = "#6b7280"
	FallbackIcon  = "⚪"
)

// NodeTypeConfig describes one node type.
type NodeTypeConfig struct {
	Type        string         `json:"type"`
	Label       string         `json:"label"`
	Icon        string         `json:"icon"`
	Color       string         `json:"color"`
	Description string         `json:"description,omitempty"`
	Category    Category       `json:"category"`
	DefaultData graph.NodeData `json:"-"`
	// Validate, when set, decides whether a node's data is complete.
	Validate func(graph.NodeData) bool `json:"-"`
}

func (c NodeTypeConfig) clone() NodeTypeConfig {
	if c.DefaultData != nil {
		c.DefaultData = c.DefaultData.Clone()
	}
	return c
}

// Registry maps type names to their configs. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]NodeTypeConfig
	order []string
	newID graph.IDFunc
	log   *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDFunc overrides how node ids are minted.
func WithIDFunc(fn graph.IDFunc) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithLogger sets the logger used for soft failures.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		types: make(map[string]NodeTypeConfig),
		newID: graph.NewID,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(zap.String("component", "registry"))
	return r
}

// NewDefault creates a registry holding the built-in node types.
func NewDefault(opts ...Option) *Registry {
	r := New(opts...)
	for _, c := range Builtins() {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a node type.
func (r *Registry) Register(c NodeTypeConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[c.Type]; !ok {
		r.order = append(r.order, c.Type)
	}
	r.types[c.Type] = c.clone()
}

// Unregister removes a node type.
func (r *Registry) Unregister(typ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[typ]; !ok {
		return
	}
	delete(r.types, typ)
	r.order = slices.DeleteFunc(r.order, func(t string) bool { return t == typ })
}

// Clear removes every node type.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = make(map[string]NodeTypeConfig)
	r.order = nil
}

// Get returns a copy of a type's config.
func (r *Registry) Get(typ string) (NodeTypeConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.types[typ]
	if !ok {
		return NodeTypeConfig{}, false
	}
	return c.clone(), true
}

// All returns every config in registration order.
func (r *Registry) All() []NodeTypeConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeTypeConfig, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.types[t].clone())
	}
	return out
}

// ByCategory returns the configs of one category in registration order.
func (r *Registry) ByCategory(cat Category) []NodeTypeConfig {
	var out []NodeTypeConfig
	for _, c := range r.All() {
		if c.Category == cat {
			out = append(out, c)
		}
	}
	return out
}

// CreateNode builds a node of the given type at pos with a fresh id and a
// copy of the type's default data. It returns false for unknown types.
func (r *Registry) CreateNode(typ string, pos graph.Position) (graph.Node, bool) {
	c, ok := r.Get(typ)
	if !ok {
		r.log.Warn("unknown node type", zap.String("type", typ))
		return graph.Node{}, false
	}
	data := c.DefaultData
	if data == nil {
		data = graph.NewData(typ)
	}
	return graph.Node{
		ID:       r.newID(typ),
		Type:     typ,
		Position: pos,
		Data:     data,
	}, true
}

// Validate runs the node type's validator. Nodes without one, or of an
// unknown type, are considered valid.
func (r *Registry) Validate(n graph.Node) bool {
	c, ok := r.Get(n.Type)
	if !ok || c.Validate == nil {
		return true
	}
	return c.Validate(n.Data)
}

// Color returns the display color for typ.
func (r *Registry) Color(typ string) string {
	if c, ok := r.Get(typ); ok && c.Color != "" {
		return c.Color
	}
	return FallbackColor
}

// Icon returns the display icon for typ.
func (r *Registry) Icon(typ string) string {
	if c, ok := r.Get(typ); ok && c.Icon != "" {
		return c.Icon
	}
	return FallbackIcon
}

// Label returns the display label for typ.
func (r *Registry) Label(typ string) string {
	if c, ok := r.Get(typ); ok && c.Label != "" {
		return c.Label
	}
	return typ
}
