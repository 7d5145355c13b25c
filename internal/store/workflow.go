package store

import (
	"context"
	"fmt"
	"time"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// SavedWorkflow is the last saved state of a workflow.
type SavedWorkflow struct {
	ID       string         `json:"id"`
	Document graph.Document `json:"document"`
	SavedAt  time.Time      `json:"savedAt"`
}

// Workflows stores whole documents keyed by workflow id.
type Workflows struct {
	store Store
	now   func() time.Time
}

func NewWorkflows(s Store, now func() time.Time) *Workflows {
	if now == nil {
		now = time.Now
	}
	return &Workflows{store: s, now: now}
}

// Save replaces the stored document of id.
func (ws *Workflows) Save(ctx context.Context, id string, doc graph.Document) (SavedWorkflow, error) {
	if id == "" {
		return SavedWorkflow{}, fmt.Errorf("workflow id is required: %w", ErrInvalid)
	}
	if doc.Version == 0 {
		doc.Version = graph.DocumentVersion
	}
	if err := doc.Validate(); err != nil {
		return SavedWorkflow{}, fmt.Errorf("workflow %s: %w", id, err)
	}
	w := SavedWorkflow{ID: id, Document: doc, SavedAt: ws.now().UTC()}
	if _, err := put(ctx, ws.store, KindWorkflow, id, "", w); err != nil {
		return SavedWorkflow{}, err
	}
	return w, nil
}

func (ws *Workflows) Load(ctx context.Context, id string) (SavedWorkflow, error) {
	return get[SavedWorkflow](ctx, ws.store, KindWorkflow, id)
}

func (ws *Workflows) List(ctx context.Context) ([]SavedWorkflow, error) {
	return list[SavedWorkflow](ctx, ws.store, KindWorkflow, "")
}

func (ws *Workflows) Delete(ctx context.Context, id string) error {
	return ws.store.Delete(ctx, KindWorkflow, id)
}
