package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	now     func() time.Time
	records map[Kind]map[string]Record
}

// NewMemory returns an empty store. A nil clock means time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, records: make(map[Kind]map[string]Record)}
}

func (m *Memory) Put(_ context.Context, r Record) (Record, error) {
	if err := Check(r); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.records[r.Kind]
	if !ok {
		byID = make(map[string]Record)
		m.records[r.Kind] = byID
	}
	now := m.now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if prev, ok := byID[r.ID]; ok {
		r.CreatedAt = prev.CreatedAt
	}
	r.Body = slices.Clone(r.Body)
	byID[r.ID] = r
	return r, nil
}

func (m *Memory) Get(_ context.Context, kind Kind, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[kind][id]
	if !ok {
		return Record{}, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	r.Body = slices.Clone(r.Body)
	return r, nil
}

func (m *Memory) List(_ context.Context, kind Kind, scope string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records[kind]))
	for _, r := range m.records[kind] {
		if scope != "" && r.Scope != scope {
			continue
		}
		r.Body = slices.Clone(r.Body)
		out = append(out, r)
	}
	SortRecords(out)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, kind Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[kind][id]; !ok {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	delete(m.records[kind], id)
	return nil
}

// SortRecords orders records by creation time, then id.
func SortRecords(rs []Record) {
	slices.SortStableFunc(rs, func(a, b Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
