// Package workspace is an editor session over one workflow. It owns the
// canvas history, the selection and clipboard, and the debug session, and
// turns every mutating command into exactly one undo step.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/events"
	"github.com/AaronLay10/FlowEngine/internal/execution"
	"github.com/AaronLay10/FlowEngine/internal/geometry"
	"github.com/AaronLay10/FlowEngine/internal/graph"
	"github.com/AaronLay10/FlowEngine/internal/history"
	"github.com/AaronLay10/FlowEngine/internal/layout"
	"github.com/AaronLay10/FlowEngine/internal/registry"
	"github.com/AaronLay10/FlowEngine/internal/selection"
	"github.com/AaronLay10/FlowEngine/internal/store"
)

// DefaultWorkflowID names a workspace created without an id.
const DefaultWorkflowID = "default"

var (
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrNoStore         = errors.New("no store configured")
)

// SaveFunc persists a snapshot of the canvas on behalf of the host.
type SaveFunc func(ctx context.Context, s graph.Snapshot, metadata map[string]any) error

// Metrics receives layout, history and execution measurements.
type Metrics interface {
	execution.Observer
	RecordLayout(nodes int, d time.Duration)
	RecordHistory(op string)
}

// StatePublisher mirrors debug state somewhere, e.g. an MQTT broker.
type StatePublisher interface {
	PublishState(workflowID string, st execution.State) error
}

// Workspace is safe for concurrent use.
type Workspace struct {
	id string

	mu   sync.Mutex
	hist *history.History[graph.Document]
	sel  *selection.Engine

	reg        *registry.Registry
	nodeSize   geometry.Size
	layoutOpts layout.Options
	historyCap int

	store     store.Store
	templates *store.Templates
	versions  *store.Versions
	variables *store.Variables
	workflows *store.Workflows
	save      SaveFunc

	bus       *events.Bus
	metrics   Metrics
	publisher StatePublisher

	dbg debugger

	ids graph.IDFunc
	now func() time.Time
	log *zap.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithID sets the workflow id used for versions, variables and events.
func WithID(id string) Option {
	return func(w *Workspace) { w.id = id }
}

// WithRegistry sets the node type catalog.
func WithRegistry(r *registry.Registry) Option {
	return func(w *Workspace) { w.reg = r }
}

// WithNodeSize sets the node box used for hit tests, groups and layout.
func WithNodeSize(s geometry.Size) Option {
	return func(w *Workspace) { w.nodeSize = s }
}

// WithLayoutOptions sets the auto-layout spacing.
func WithLayoutOptions(o layout.Options) Option {
	return func(w *Workspace) { w.layoutOpts = o }
}

// WithHistoryLimit caps the undo stack.
func WithHistoryLimit(n int) Option {
	return func(w *Workspace) { w.historyCap = n }
}

// WithStore enables templates, versions, variables and saved workflows.
func WithStore(s store.Store) Option {
	return func(w *Workspace) { w.store = s }
}

// WithSaveFunc sets the host save handler.
func WithSaveFunc(fn SaveFunc) Option {
	return func(w *Workspace) { w.save = fn }
}

// WithBus publishes graph and execution events on b.
func WithBus(b *events.Bus) Option {
	return func(w *Workspace) { w.bus = b }
}

// WithMetrics records measurements in m.
func WithMetrics(m Metrics) Option {
	return func(w *Workspace) { w.metrics = m }
}

// WithStatePublisher mirrors every debug state change to p.
func WithStatePublisher(p StatePublisher) Option {
	return func(w *Workspace) { w.publisher = p }
}

// WithExecutionOptions adds options to every debug session engine.
func WithExecutionOptions(opts ...execution.Option) Option {
	return func(w *Workspace) { w.dbg.opts = append(w.dbg.opts, opts...) }
}

// WithIDFunc sets the id generator for nodes, groups, annotations and
// stored records.
func WithIDFunc(fn graph.IDFunc) Option {
	return func(w *Workspace) { w.ids = fn }
}

// WithClock sets the clock.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workspace) { w.log = l }
}

// New opens a workspace on doc.
func New(doc graph.Document, opts ...Option) *Workspace {
	w := &Workspace{
		id:         DefaultWorkflowID,
		nodeSize:   geometry.Size{Width: layout.DefaultNodeWidth, Height: layout.DefaultNodeHeight},
		layoutOpts: layout.DefaultOptions(),
		ids:        graph.NewID,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(zap.String("component", "workspace"), zap.String("workflow_id", w.id))
	if w.reg == nil {
		w.reg = registry.NewDefault(registry.WithIDFunc(w.ids), registry.WithLogger(w.log))
	}
	w.sel = selection.New(selection.WithIDFunc(w.ids), selection.WithLogger(w.log))
	if w.store != nil {
		w.templates = store.NewTemplates(w.store, w.ids, w.now)
		w.versions = store.NewVersions(w.store, w.ids, w.now)
		w.variables = store.NewVariables(w.store, w.ids, w.now)
		w.workflows = store.NewWorkflows(w.store, w.now)
	}

	var hopts []history.Option
	if w.historyCap > 0 {
		hopts = append(hopts, history.WithLimit(w.historyCap))
	}
	w.hist = history.New(normalize(doc), hopts...)
	return w
}

// ID is the workflow id.
func (w *Workspace) ID() string {
	return w.id
}

// Registry returns the node type catalog.
func (w *Workspace) Registry() *registry.Registry {
	return w.reg
}

// NodeSize is the node box in use.
func (w *Workspace) NodeSize() geometry.Size {
	return w.nodeSize
}

// Document returns a copy of the canvas.
func (w *Workspace) Document() graph.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return clone(w.hist.Present())
}

// Snapshot returns a copy of the nodes and edges.
func (w *Workspace) Snapshot() graph.Snapshot {
	return w.Document().Snapshot()
}

// normalize gives equal canvases equal encodings so history can compare them.
func normalize(d graph.Document) graph.Document {
	if d.Version == 0 {
		d.Version = graph.DocumentVersion
	}
	if len(d.Nodes) == 0 {
		d.Nodes = nil
	}
	if len(d.Edges) == 0 {
		d.Edges = nil
	}
	if len(d.Groups) == 0 {
		d.Groups = nil
	}
	if len(d.Annotations) == 0 {
		d.Annotations = nil
	}
	if len(d.Metadata) == 0 {
		d.Metadata = nil
	}
	return d
}

func clone(d graph.Document) graph.Document {
	out := d
	s := d.Snapshot()
	out.Nodes, out.Edges = s.Nodes, s.Edges
	out.Groups = d.Groups.Clone()
	out.Annotations = d.Annotations.Clone()
	return out
}

// edit applies fn to a copy of the canvas and commits the result as one
// history entry. Called with mu held.
func (w *Workspace) edit(op string, transient bool, fn func(d *graph.Document) error) error {
	d := clone(w.hist.Present())
	if err := fn(&d); err != nil {
		return err
	}
	w.commit(op, d, transient)
	return nil
}

func (w *Workspace) commit(op string, d graph.Document, transient bool) {
	d = normalize(d)
	if !w.hist.Set(d, transient) {
		return
	}
	if w.metrics != nil {
		w.metrics.RecordHistory(op)
	}
	w.emit(events.LevelInfo, events.GraphChanged, map[string]interface{}{
		"op":    op,
		"nodes": len(d.Nodes),
		"edges": len(d.Edges),
	})
}

func (w *Workspace) emit(level, name string, fields map[string]interface{}) {
	if w.bus == nil {
		return
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["workflow_id"] = w.id
	if _, err := w.bus.Emit(level, name, "", fields); err != nil {
		w.log.Warn("event emit failed", zap.String("event", name), zap.Error(err))
	}
}

// Undo reverts the last command.
func (w *Workspace) Undo() bool {
	return w.travel("undo", events.GraphUndo, w.hist.Undo)
}

// Redo reapplies the last undone command.
func (w *Workspace) Redo() bool {
	return w.travel("redo", events.GraphRedo, w.hist.Redo)
}

func (w *Workspace) travel(op, event string, move func() bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !move() {
		return false
	}
	w.sel.Prune(w.hist.Present().Nodes)
	if w.metrics != nil {
		w.metrics.RecordHistory(op)
	}
	w.emit(events.LevelInfo, event, nil)
	return true
}

func (w *Workspace) CanUndo() bool { return w.hist.CanUndo() }
func (w *Workspace) CanRedo() bool { return w.hist.CanRedo() }

// HistoryDepth reports how many undo and redo steps are available.
func (w *Workspace) HistoryDepth() (past, future int) {
	st := w.hist.State()
	return len(st.Past), len(st.Future)
}

// Open replaces the canvas and forgets history and selection.
func (w *Workspace) Open(doc graph.Document) error {
	if doc.Version == 0 {
		doc.Version = graph.DocumentVersion
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hist.Reset(normalize(clone(doc)))
	w.sel.ClearSelection()
	w.emit(events.LevelInfo, events.GraphImported, map[string]interface{}{"nodes": len(doc.Nodes), "reset": true})
	return nil
}

// Import decodes a document and makes it the canvas as one undoable step.
func (w *Workspace) Import(data []byte, f graph.Format) error {
	doc, err := graph.Decode(data, f)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.commit("import", *doc, false)
	w.sel.ClearSelection()
	w.emit(events.LevelInfo, events.GraphImported, map[string]interface{}{"nodes": len(doc.Nodes)})
	return nil
}

// Export encodes the canvas.
func (w *Workspace) Export(f graph.Format) ([]byte, error) {
	return graph.Encode(w.Document(), f)
}

// Save hands the canvas to the save handler and, with a store, records it
// as the saved workflow.
func (w *Workspace) Save(ctx context.Context, metadata map[string]any) error {
	doc := w.Document()
	if w.save == nil && w.workflows == nil {
		return ErrNoStore
	}
	if w.save != nil {
		if err := w.save(ctx, doc.Snapshot(), metadata); err != nil {
			return fmt.Errorf("save workflow %s: %w", w.id, err)
		}
	}
	if w.workflows != nil {
		doc.Metadata = metadata
		if _, err := w.workflows.Save(ctx, w.id, doc); err != nil {
			return err
		}
	}
	w.log.Info("workflow saved", zap.Int("nodes", len(doc.Nodes)))
	w.emit(events.LevelInfo, events.GraphSaved, map[string]interface{}{"nodes": len(doc.Nodes), "edges": len(doc.Edges)})
	return nil
}

// Reload opens the last saved document of this workflow.
func (w *Workspace) Reload(ctx context.Context) error {
	if w.workflows == nil {
		return ErrNoStore
	}
	saved, err := w.workflows.Load(ctx, w.id)
	if err != nil {
		return err
	}
	return w.Open(saved.Document)
}

// CommitVersion records the canvas as the next version.
func (w *Workspace) CommitVersion(ctx context.Context, message, author string) (store.Version, error) {
	if w.versions == nil {
		return store.Version{}, ErrNoStore
	}
	return w.versions.Commit(ctx, w.id, message, author, w.Document())
}

// Versions lists the versions of this workflow, newest first.
func (w *Workspace) Versions(ctx context.Context) ([]store.Version, error) {
	if w.versions == nil {
		return nil, ErrNoStore
	}
	return w.versions.List(ctx, w.id)
}

// RestoreVersion replaces the canvas with a stored version as one undoable
// step.
func (w *Workspace) RestoreVersion(ctx context.Context, id string) (store.Version, error) {
	if w.versions == nil {
		return store.Version{}, ErrNoStore
	}
	v, err := w.versions.Get(ctx, id)
	if err != nil {
		return store.Version{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.commit("restore", v.Document(), false)
	w.sel.Prune(v.Nodes)
	return v, nil
}

// CompareVersions diffs two stored versions.
func (w *Workspace) CompareVersions(ctx context.Context, fromID, toID string) (store.VersionDiff, error) {
	if w.versions == nil {
		return store.VersionDiff{}, ErrNoStore
	}
	from, err := w.versions.Get(ctx, fromID)
	if err != nil {
		return store.VersionDiff{}, err
	}
	to, err := w.versions.Get(ctx, toID)
	if err != nil {
		return store.VersionDiff{}, err
	}
	return store.Diff(from, to), nil
}

// SaveAsTemplate stores the nodes and edges as a reusable template.
func (w *Workspace) SaveAsTemplate(ctx context.Context, name, description, category string, tags []string) (store.Template, error) {
	if w.templates == nil {
		return store.Template{}, ErrNoStore
	}
	return w.templates.Create(ctx, name, description, category, tags, w.Snapshot())
}

// ApplyTemplate replaces the nodes and edges with a template's graph. Group
// members that no longer exist are dropped.
func (w *Workspace) ApplyTemplate(ctx context.Context, id string) error {
	if w.templates == nil {
		return ErrNoStore
	}
	snap, err := w.templates.Use(ctx, id)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edit("template", false, func(d *graph.Document) error {
		var stale []string
		for _, g := range d.Groups {
			for _, m := range g.NodeIDs {
				if _, ok := snap.Node(m); !ok {
					stale = append(stale, m)
				}
			}
		}
		d.Nodes, d.Edges = snap.Nodes, snap.Edges
		d.Groups = d.Groups.ForgetNodes(stale...)
		w.sel.Prune(d.Nodes)
		return nil
	})
}

// Templates returns the template catalog, nil without a store.
func (w *Workspace) Templates() *store.Templates {
	return w.templates
}

// Variables returns the variable store, nil without a store.
func (w *Workspace) Variables() *store.Variables {
	return w.variables
}
