package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// CatalogFile is the YAML format for extra node types.
type CatalogFile struct {
	Version int               `yaml:"version"`
	Types   []CatalogNodeType `yaml:"types"`
}

// CatalogNodeType is one entry of a catalog file.
type CatalogNodeType struct {
	Type        string         `yaml:"type"`
	Label       string         `yaml:"label"`
	Icon        string         `yaml:"icon"`
	Color       string         `yaml:"color"`
	Description string         `yaml:"description"`
	Category    Category       `yaml:"category"`
	Defaults    map[string]any `yaml:"defaults"`
	// Required lists data fields that must be non-empty for a node to be
	// valid.
	Required []string `yaml:"required"`
}

// LoadCatalog reads a catalog file and registers its types. Built-in kinds
// listed in the file replace the built-in config.
func (r *Registry) LoadCatalog(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var cf CatalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	if cf.Version != 1 {
		return fmt.Errorf("unsupported catalog version: %d", cf.Version)
	}

	for _, t := range cf.Types {
		if t.Type == "" {
			return errors.New("catalog entry without type")
		}
		c, err := t.config()
		if err != nil {
			return err
		}
		r.Register(c)
	}
	return nil
}

func (t CatalogNodeType) config() (NodeTypeConfig, error) {
	defaults := t.Defaults
	if defaults == nil {
		defaults = map[string]any{}
	}
	if _, ok := defaults["label"]; !ok && t.Label != "" {
		defaults["label"] = t.Label
	}
	data, err := graph.DataFromMap(t.Type, defaults)
	if err != nil {
		return NodeTypeConfig{}, fmt.Errorf("catalog type %s: %w", t.Type, err)
	}
	cat := t.Category
	if cat == "" {
		cat = CategoryCustom
	}
	c := NodeTypeConfig{
		Type:        t.Type,
		Label:       t.Label,
		Icon:        t.Icon,
		Color:       t.Color,
		Description: t.Description,
		Category:    cat,
		DefaultData: data,
	}
	if len(t.Required) > 0 {
		c.Validate = requireFields(t.Required)
	}
	return c, nil
}

// requireFields validates generic data by presence of non-empty fields.
func requireFields(fields []string) func(graph.NodeData) bool {
	return func(d graph.NodeData) bool {
		m, err := fieldsOf(d)
		if err != nil {
			return false
		}
		for _, f := range fields {
			v, ok := m[f]
			if !ok || v == nil || v == "" {
				return false
			}
		}
		return true
	}
}

func fieldsOf(d graph.NodeData) (map[string]any, error) {
	if g, ok := d.(graph.GenericData); ok {
		return g.Fields, nil
	}
	raw, err := yaml.Marshal(d)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
