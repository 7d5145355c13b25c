package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	events []Event
	err    error
	asked  int64
}

func (f *fakeHistory) RecentEvents(_ context.Context, n int64) ([]Event, error) {
	f.asked = n
	return f.events, f.err
}

func TestRestoreFillsBufferWithoutBroadcast(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	h := &fakeHistory{events: []Event{
		{Timestamp: "2024-05-01T09:00:00Z", Level: LevelInfo, Name: SystemStartup},
		{Timestamp: "2024-05-01T09:00:01Z", Level: LevelInfo, Name: "puzzle.solved"},
		{Timestamp: "2024-05-01T09:00:02Z", Level: LevelInfo, Name: GraphSaved},
	}}
	n, err := b.Restore(context.Background(), h, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(DefaultRestoreLimit), h.asked)

	got := b.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, SystemStartup, got[0].Name)
	assert.Equal(t, GraphSaved, got[1].Name)
	assert.Len(t, sub, 0)
}

func TestRestoreErrors(t *testing.T) {
	b := NewBus()
	n, err := b.Restore(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = b.Restore(context.Background(), &fakeHistory{err: errors.New("down")}, 10)
	assert.EqualError(t, err, "restore events: down")
	assert.Empty(t, b.Snapshot())
}
