package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DocumentVersion is the only document format version understood.
const DocumentVersion = 1

// Document is the import/export format of a whole canvas.
type Document struct {
	Version     int            `json:"version" yaml:"version"`
	Nodes       []Node         `json:"nodes" yaml:"nodes"`
	Edges       []Edge         `json:"edges" yaml:"edges"`
	Groups      Groups         `json:"groups" yaml:"groups"`
	Annotations Annotations    `json:"annotations" yaml:"annotations"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Snapshot returns the graph part of d.
func (d Document) Snapshot() Snapshot {
	return Snapshot{Nodes: CloneNodes(d.Nodes), Edges: append([]Edge(nil), d.Edges...)}
}

// Validate checks the document version and graph invariants. Group members
// that are not nodes are reported as dangling.
func (d Document) Validate() error {
	if d.Version != DocumentVersion {
		return fmt.Errorf("unsupported document version: %d", d.Version)
	}
	if err := d.Snapshot().Validate(); err != nil {
		return err
	}
	ids := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		ids[n.ID] = true
	}
	for _, g := range d.Groups {
		for _, id := range g.NodeIDs {
			if !ids[id] {
				return fmt.Errorf("group %q member %q: %w", g.ID, id, ErrDanglingEdge)
			}
		}
	}
	return nil
}

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from a file extension, JSON by default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Encode serializes d.
func Encode(d Document, f Format) ([]byte, error) {
	if d.Version == 0 {
		d.Version = DocumentVersion
	}
	switch f {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return nil, fmt.Errorf("failed to encode document YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		b, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode document JSON: %w", err)
		}
		return b, nil
	}
}

// normalize fills in a missing version and prunes group members that are
// not nodes, dissolving groups left empty.
func (d *Document) normalize() {
	if d.Version == 0 {
		d.Version = DocumentVersion
	}
	ids := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		ids[n.ID] = true
	}
	var stale []string
	for _, g := range d.Groups {
		for _, id := range g.NodeIDs {
			if !ids[id] {
				stale = append(stale, id)
			}
		}
	}
	if len(stale) > 0 {
		d.Groups = d.Groups.ForgetNodes(stale...)
	}
}

// Decode parses and validates a document. A document without a version is
// read as the current one.
func Decode(data []byte, f Format) (*Document, error) {
	var d Document
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse document YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse document JSON: %w", err)
		}
	}
	d.normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadDocument reads a document file, choosing the format by extension.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}
	return Decode(data, FormatFromPath(path))
}

// SaveDocument writes d to path, choosing the format by extension.
func SaveDocument(path string, d Document) error {
	data, err := Encode(d, FormatFromPath(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document file: %w", err)
	}
	return nil
}
