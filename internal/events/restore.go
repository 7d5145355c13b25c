package events

import (
	"context"
	"fmt"
)

// DefaultRestoreLimit is how many persisted events Restore loads by default.
const DefaultRestoreLimit = 1000

// History reads back persisted events, oldest first.
type History interface {
	RecentEvents(ctx context.Context, n int64) ([]Event, error)
}

// Restore refills the buffer from h so recent history survives a restart.
// Restored events are not broadcast or persisted again. Unknown event names
// from older builds are skipped. It returns how many events were restored.
func (b *Bus) Restore(ctx context.Context, h History, limit int64) (int, error) {
	if h == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = DefaultRestoreLimit
	}
	evs, err := h.RecentEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("restore events: %w", err)
	}
	n := 0
	for _, e := range evs {
		if Validate(e.Name) != nil {
			continue
		}
		b.buffer.Add(e)
		n++
	}
	return n, nil
}
