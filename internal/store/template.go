package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// DefaultTemplateCategory is used when a template is created without one.
const DefaultTemplateCategory = "general"

// Template is a reusable graph.
type Template struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Tags        []string     `json:"tags"`
	Nodes       []graph.Node `json:"nodes"`
	Edges       []graph.Edge `json:"edges"`
	UsageCount  int          `json:"usageCount"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Snapshot returns a copy of the template graph.
func (t Template) Snapshot() graph.Snapshot {
	return graph.Snapshot{Nodes: t.Nodes, Edges: t.Edges}.Clone()
}

// TemplateFilter narrows Templates.List. Query matches name or description
// case-insensitively; Category "" or "all" matches every category.
type TemplateFilter struct {
	Query    string
	Category string
}

func (f TemplateFilter) match(t Template) bool {
	if f.Category != "" && f.Category != "all" && t.Category != f.Category {
		return false
	}
	q := strings.ToLower(f.Query)
	return strings.Contains(strings.ToLower(t.Name), q) ||
		strings.Contains(strings.ToLower(t.Description), q)
}

// Templates manages Template records.
type Templates struct {
	store Store
	ids   graph.IDFunc
	now   func() time.Time
}

func NewTemplates(s Store, ids graph.IDFunc, now func() time.Time) *Templates {
	if ids == nil {
		ids = graph.NewID
	}
	if now == nil {
		now = time.Now
	}
	return &Templates{store: s, ids: ids, now: now}
}

// Create saves the given graph as a new template.
func (ts *Templates) Create(ctx context.Context, name, description, category string, tags []string, g graph.Snapshot) (Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Template{}, fmt.Errorf("template name is required: %w", ErrInvalid)
	}
	if category == "" {
		category = DefaultTemplateCategory
	}
	if tags == nil {
		tags = []string{}
	}
	g = g.Clone()
	now := ts.now().UTC()
	t := Template{
		ID:          ts.ids("template"),
		Name:        name,
		Description: description,
		Category:    category,
		Tags:        slices.Clone(tags),
		Nodes:       g.Nodes,
		Edges:       g.Edges,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := put(ctx, ts.store, KindTemplate, t.ID, "", t); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (ts *Templates) Get(ctx context.Context, id string) (Template, error) {
	return get[Template](ctx, ts.store, KindTemplate, id)
}

// List returns the templates matching f in creation order.
func (ts *Templates) List(ctx context.Context, f TemplateFilter) ([]Template, error) {
	all, err := list[Template](ctx, ts.store, KindTemplate, "")
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(t Template) bool { return !f.match(t) }), nil
}

// Categories returns "all" followed by the distinct template categories in
// first-seen order.
func (ts *Templates) Categories(ctx context.Context) ([]string, error) {
	all, err := ts.List(ctx, TemplateFilter{})
	if err != nil {
		return nil, err
	}
	out := []string{"all"}
	for _, t := range all {
		if !slices.Contains(out, t.Category) {
			out = append(out, t.Category)
		}
	}
	return out, nil
}

func (ts *Templates) Delete(ctx context.Context, id string) error {
	return ts.store.Delete(ctx, KindTemplate, id)
}

// Use bumps the usage count and returns the template graph.
func (ts *Templates) Use(ctx context.Context, id string) (graph.Snapshot, error) {
	t, err := ts.Get(ctx, id)
	if err != nil {
		return graph.Snapshot{}, err
	}
	t.UsageCount++
	t.UpdatedAt = ts.now().UTC()
	if _, err := put(ctx, ts.store, KindTemplate, t.ID, "", t); err != nil {
		return graph.Snapshot{}, err
	}
	return t.Snapshot(), nil
}

// Export returns the template as indented JSON.
func (ts *Templates) Export(ctx context.Context, id string) ([]byte, error) {
	t, err := ts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(t, "", "  ")
}

// Import stores an exported template under a fresh id.
func (ts *Templates) Import(ctx context.Context, data []byte) (Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("decode template: %w", err)
	}
	if err := t.Snapshot().Validate(); err != nil {
		return Template{}, fmt.Errorf("template graph: %w", err)
	}
	return ts.Create(ctx, t.Name, t.Description, t.Category, t.Tags, t.Snapshot())
}
