// Package storetest checks Store implementations against the behavior the
// editor relies on.
package storetest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/FlowEngine/internal/store"
)

// Run exercises s, which must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		_, err := s.Get(ctx, store.KindTemplate, "nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, store.KindTemplate, "nope"), store.ErrNotFound)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := s.Put(ctx, store.Record{Kind: store.KindTemplate, Body: json.RawMessage(`{}`)})
		assert.ErrorIs(t, err, store.ErrInvalid)
		_, err = s.Put(ctx, store.Record{Kind: store.KindTemplate, ID: "x", Body: json.RawMessage(`{`)})
		assert.ErrorIs(t, err, store.ErrInvalid)
	})

	t.Run("put get list delete", func(t *testing.T) {
		first, err := s.Put(ctx, store.Record{Kind: store.KindVersion, ID: "v-a", Scope: "wf-1", Body: json.RawMessage(`{"n":1}`)})
		require.NoError(t, err)
		assert.False(t, first.CreatedAt.IsZero())

		_, err = s.Put(ctx, store.Record{Kind: store.KindVersion, ID: "v-b", Scope: "wf-2", Body: json.RawMessage(`{"n":2}`)})
		require.NoError(t, err)

		got, err := s.Get(ctx, store.KindVersion, "v-a")
		require.NoError(t, err)
		assert.Equal(t, "wf-1", got.Scope)
		assert.JSONEq(t, `{"n":1}`, string(got.Body))

		scoped, err := s.List(ctx, store.KindVersion, "wf-1")
		require.NoError(t, err)
		require.Len(t, scoped, 1)
		assert.Equal(t, "v-a", scoped[0].ID)

		all, err := s.List(ctx, store.KindVersion, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		other, err := s.List(ctx, store.KindTemplate, "")
		require.NoError(t, err)
		assert.Empty(t, other)

		require.NoError(t, s.Delete(ctx, store.KindVersion, "v-a"))
		_, err = s.Get(ctx, store.KindVersion, "v-a")
		assert.ErrorIs(t, err, store.ErrNotFound)
		all, err = s.List(ctx, store.KindVersion, "")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("replace keeps creation time", func(t *testing.T) {
		first, err := s.Put(ctx, store.Record{Kind: store.KindVariable, ID: "var-1", Body: json.RawMessage(`{"v":1}`)})
		require.NoError(t, err)
		second, err := s.Put(ctx, store.Record{Kind: store.KindVariable, ID: "var-1", Body: json.RawMessage(`{"v":2}`)})
		require.NoError(t, err)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

		got, err := s.Get(ctx, store.KindVariable, "var-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(got.Body))

		all, err := s.List(ctx, store.KindVariable, "")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}
