// Package store persists the editor's side data (templates, versions,
// variables and saved workflows) as opaque JSON records.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrInvalid  = errors.New("invalid record")
)

// Kind partitions records.
type Kind string

const (
	KindTemplate Kind = "template"
	KindVersion  Kind = "version"
	KindVariable Kind = "variable"
	KindWorkflow Kind = "workflow"
)

// Record is one stored document. Scope groups records of a kind, e.g. the
// workflow a version belongs to. It is empty for global records.
type Record struct {
	Kind      Kind            `json:"kind"`
	ID        string          `json:"id"`
	Scope     string          `json:"scope,omitempty"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is implemented by the memory, Postgres and Redis adapters.
//
// Put inserts or replaces a record and returns it with timestamps set; the
// creation time of an existing record is preserved. List returns records of
// a kind ordered by creation time, restricted to scope unless scope is "".
// Get and Delete return ErrNotFound for unknown ids.
type Store interface {
	Put(ctx context.Context, r Record) (Record, error)
	Get(ctx context.Context, kind Kind, id string) (Record, error)
	List(ctx context.Context, kind Kind, scope string) ([]Record, error)
	Delete(ctx context.Context, kind Kind, id string) error
}

// Check validates the identifying fields of r.
func Check(r Record) error {
	if r.Kind == "" || r.ID == "" {
		return fmt.Errorf("kind and id are required: %w", ErrInvalid)
	}
	if len(r.Body) == 0 || !json.Valid(r.Body) {
		return fmt.Errorf("%s %s: body is not JSON: %w", r.Kind, r.ID, ErrInvalid)
	}
	return nil
}

func put[T any](ctx context.Context, s Store, kind Kind, id, scope string, v T) (Record, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	return s.Put(ctx, Record{Kind: kind, ID: id, Scope: scope, Body: body})
}

func decode[T any](r Record) (T, error) {
	var v T
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", r.Kind, r.ID, err)
	}
	return v, nil
}

func get[T any](ctx context.Context, s Store, kind Kind, id string) (T, error) {
	r, err := s.Get(ctx, kind, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](r)
}

func list[T any](ctx context.Context, s Store, kind Kind, scope string) ([]T, error) {
	recs, err := s.List(ctx, kind, scope)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		v, err := decode[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
