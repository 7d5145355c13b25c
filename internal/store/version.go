package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// Version is a committed snapshot of one workflow.
type Version struct {
	ID          string            `json:"id"`
	WorkflowID  string            `json:"workflowId"`
	Version     string            `json:"version"`
	Message     string            `json:"message"`
	Author      string            `json:"author"`
	CreatedAt   time.Time         `json:"createdAt"`
	Nodes       []graph.Node      `json:"nodes"`
	Edges       []graph.Edge      `json:"edges"`
	Groups      graph.Groups      `json:"groups,omitempty"`
	Annotations graph.Annotations `json:"annotations,omitempty"`
	Parent      string            `json:"parent,omitempty"`
}

// Number is the numeric part of the version label ("v3" is 3).
func (v Version) Number() int {
	n, _ := strconv.Atoi(strings.TrimPrefix(v.Version, "v"))
	return n
}

// Document rebuilds the canvas the version captured.
func (v Version) Document() graph.Document {
	return graph.Document{
		Version:     graph.DocumentVersion,
		Nodes:       graph.CloneNodes(v.Nodes),
		Edges:       slices.Clone(v.Edges),
		Groups:      v.Groups.Clone(),
		Annotations: v.Annotations.Clone(),
	}
}

// DefaultAuthor signs commits that do not name an author.
const DefaultAuthor = "User"

// Versions manages Version records, scoped by workflow id.
type Versions struct {
	store Store
	ids   graph.IDFunc
	now   func() time.Time
}

func NewVersions(s Store, ids graph.IDFunc, now func() time.Time) *Versions {
	if ids == nil {
		ids = graph.NewID
	}
	if now == nil {
		now = time.Now
	}
	return &Versions{store: s, ids: ids, now: now}
}

// Commit records doc as the next version of workflowID. The first version
// is v1; each later one links to its predecessor.
func (vs *Versions) Commit(ctx context.Context, workflowID, message, author string, doc graph.Document) (Version, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Version{}, fmt.Errorf("commit message is required: %w", ErrInvalid)
	}
	if workflowID == "" {
		return Version{}, fmt.Errorf("workflow id is required: %w", ErrInvalid)
	}
	if author == "" {
		author = DefaultAuthor
	}

	latest, ok, err := vs.Latest(ctx, workflowID)
	if err != nil {
		return Version{}, err
	}
	v := Version{
		ID:          vs.ids("version"),
		WorkflowID:  workflowID,
		Version:     "v1",
		Message:     message,
		Author:      author,
		CreatedAt:   vs.now().UTC(),
		Nodes:       graph.CloneNodes(doc.Nodes),
		Edges:       slices.Clone(doc.Edges),
		Groups:      doc.Groups.Clone(),
		Annotations: doc.Annotations.Clone(),
	}
	if ok {
		v.Version = "v" + strconv.Itoa(latest.Number()+1)
		v.Parent = latest.ID
	}
	if _, err := put(ctx, vs.store, KindVersion, v.ID, workflowID, v); err != nil {
		return Version{}, err
	}
	return v, nil
}

// List returns the versions of workflowID, newest first.
func (vs *Versions) List(ctx context.Context, workflowID string) ([]Version, error) {
	out, err := list[Version](ctx, vs.store, KindVersion, workflowID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b Version) int { return b.Number() - a.Number() })
	return out, nil
}

// Latest returns the newest version of workflowID, if any.
func (vs *Versions) Latest(ctx context.Context, workflowID string) (Version, bool, error) {
	all, err := vs.List(ctx, workflowID)
	if err != nil || len(all) == 0 {
		return Version{}, false, err
	}
	return all[0], true, nil
}

func (vs *Versions) Get(ctx context.Context, id string) (Version, error) {
	return get[Version](ctx, vs.store, KindVersion, id)
}

func (vs *Versions) Delete(ctx context.Context, id string) error {
	return vs.store.Delete(ctx, KindVersion, id)
}

// VersionDiff describes how to get from one version to another.
type VersionDiff struct {
	From          string   `json:"from"`
	To            string   `json:"to"`
	NodesAdded    []string `json:"nodesAdded"`
	NodesRemoved  []string `json:"nodesRemoved"`
	NodesModified []string `json:"nodesModified"`
	EdgesAdded    []string `json:"edgesAdded"`
	EdgesRemoved  []string `json:"edgesRemoved"`
	// NodeDelta and EdgeDelta are the net count changes.
	NodeDelta int `json:"nodeDelta"`
	EdgeDelta int `json:"edgeDelta"`
}

// Diff compares two versions by node and edge id. A node counts as modified
// when its type, position or data changed.
func Diff(from, to Version) VersionDiff {
	d := VersionDiff{
		From:          from.Version,
		To:            to.Version,
		NodesAdded:    []string{},
		NodesRemoved:  []string{},
		NodesModified: []string{},
		EdgesAdded:    []string{},
		EdgesRemoved:  []string{},
		NodeDelta:     len(to.Nodes) - len(from.Nodes),
		EdgeDelta:     len(to.Edges) - len(from.Edges),
	}

	before := make(map[string]graph.Node, len(from.Nodes))
	for _, n := range from.Nodes {
		before[n.ID] = n
	}
	after := make(map[string]bool, len(to.Nodes))
	for _, n := range to.Nodes {
		after[n.ID] = true
		old, ok := before[n.ID]
		switch {
		case !ok:
			d.NodesAdded = append(d.NodesAdded, n.ID)
		case !sameNode(old, n):
			d.NodesModified = append(d.NodesModified, n.ID)
		}
	}
	for _, n := range from.Nodes {
		if !after[n.ID] {
			d.NodesRemoved = append(d.NodesRemoved, n.ID)
		}
	}

	oldEdges := make(map[string]bool, len(from.Edges))
	for _, e := range from.Edges {
		oldEdges[e.ID] = true
	}
	newEdges := make(map[string]bool, len(to.Edges))
	for _, e := range to.Edges {
		newEdges[e.ID] = true
		if !oldEdges[e.ID] {
			d.EdgesAdded = append(d.EdgesAdded, e.ID)
		}
	}
	for _, e := range from.Edges {
		if !newEdges[e.ID] {
			d.EdgesRemoved = append(d.EdgesRemoved, e.ID)
		}
	}
	return d
}

func sameNode(a, b graph.Node) bool {
	ja, errA := a.MarshalJSON()
	jb, errB := b.MarshalJSON()
	return errA == nil && errB == nil && string(ja) == string(jb)
}
