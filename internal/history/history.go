// Package history keeps undo/redo stacks of whole-canvas snapshots.
package history

import (
	"encoding/json"
	"fmt"
	"sync"
)

// State is a copy of the three stacks.
type State[G any] struct {
	Past    []G `json:"past"`
	Present G   `json:"present"`
	Future  []G `json:"future"`
}

// History is an undo/redo log over snapshots of type G. States are compared
// by their JSON encoding, so G must serialize deterministically.
//
// A Set with skipHistory replaces the present without recording anything.
// The next recorded Set pushes the last recorded state rather than the
// present, which may be transient, so a drag made of many skipped frames
// undoes in one step back to where it began.
type History[G any] struct {
	mu        sync.Mutex
	past      []G
	present   G
	future    []G
	committed G
	key       string
	limit     int
}

// Option configures a History.
type Option func(*config)

type config struct {
	limit int
}

// WithLimit caps the number of undo steps kept; 0 means unbounded.
func WithLimit(n int) Option {
	return func(c *config) { c.limit = n }
}

// New starts a history at initial.
func New[G any](initial G, opts ...Option) *History[G] {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return &History[G]{present: initial, committed: initial, key: canonical(initial), limit: c.limit}
}

func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

// Set records state as the new present. It reports whether a history entry
// was added.
func (h *History[G]) Set(state G, skipHistory bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if skipHistory {
		h.present = state
		return false
	}

	key := canonical(state)
	if key == h.key {
		h.present = state
		return false
	}

	h.past = append(h.past, h.committed)
	if h.limit > 0 && len(h.past) > h.limit {
		h.past = h.past[len(h.past)-h.limit:]
	}
	h.present = state
	h.committed = state
	h.key = key
	h.future = nil
	return true
}

// Undo restores the previous recorded state. It is a no-op, returning false,
// when there is nothing to undo.
func (h *History[G]) Undo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.past) == 0 {
		return false
	}
	prev := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append([]G{h.committed}, h.future...)
	h.restore(prev)
	return true
}

// Redo reapplies the most recently undone state.
func (h *History[G]) Redo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.future) == 0 {
		return false
	}
	next := h.future[0]
	h.future = h.future[1:]
	h.past = append(h.past, h.committed)
	h.restore(next)
	return true
}

func (h *History[G]) restore(state G) {
	h.present = state
	h.committed = state
	h.key = canonical(state)
}

// Reset drops both stacks and starts over at state.
func (h *History[G]) Reset(state G) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past = nil
	h.future = nil
	h.restore(state)
}

// Present returns the current state.
func (h *History[G]) Present() G {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.present
}

func (h *History[G]) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0
}

func (h *History[G]) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// State returns a copy of the stacks.
func (h *History[G]) State() State[G] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return State[G]{
		Past:    append([]G(nil), h.past...),
		Present: h.present,
		Future:  append([]G(nil), h.future...),
	}
}
