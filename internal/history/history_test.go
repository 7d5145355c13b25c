package history

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

func at(x float64) graph.Snapshot {
	return graph.Snapshot{Nodes: []graph.Node{{ID: "n", Type: graph.KindInput, Position: graph.Position{X: x}}}}
}

func TestThreeMovesUndoRedo(t *testing.T) {
	h := New(at(0))
	for _, x := range []float64{10, 20, 30} {
		require.True(t, h.Set(at(x), false))
	}

	for i := 0; i < 3; i++ {
		require.True(t, h.Undo())
	}
	assert.Equal(t, at(0), h.Present())
	assert.False(t, h.CanUndo())
	assert.False(t, h.Undo())

	for _, x := range []float64{10, 20, 30} {
		require.True(t, h.Redo())
		assert.Equal(t, at(x), h.Present())
	}
	assert.False(t, h.CanRedo())
	assert.False(t, h.Redo())
}

func TestIdenticalStateIsIgnored(t *testing.T) {
	h := New(at(0))
	assert.False(t, h.Set(at(0), false))
	assert.False(t, h.CanUndo())

	require.True(t, h.Set(at(5), false))
	assert.False(t, h.Set(at(5), false))
	assert.Len(t, h.State().Past, 1)
}

func TestSetClearsFuture(t *testing.T) {
	h := New(at(0))
	h.Set(at(1), false)
	h.Undo()
	require.True(t, h.CanRedo())

	h.Set(at(2), false)
	assert.False(t, h.CanRedo())
	assert.Equal(t, []graph.Snapshot{at(0)}, h.State().Past)
}

func TestDragCommitsOneEntry(t *testing.T) {
	h := New(at(0))
	for x := 1.0; x <= 5; x++ {
		assert.False(t, h.Set(at(x), true))
	}
	assert.Equal(t, at(5), h.Present())
	assert.False(t, h.CanUndo())

	require.True(t, h.Set(at(5), false))
	assert.Len(t, h.State().Past, 1)

	require.True(t, h.Undo())
	assert.Equal(t, at(0), h.Present())
	require.True(t, h.Redo())
	assert.Equal(t, at(5), h.Present())
}

func TestDragBackToStartRecordsNothing(t *testing.T) {
	h := New(at(0))
	h.Set(at(3), true)
	assert.False(t, h.Set(at(0), false))
	assert.Equal(t, at(0), h.Present())
	assert.False(t, h.CanUndo())
}

func TestLimitAndReset(t *testing.T) {
	h := New(at(0), WithLimit(2))
	for x := 1.0; x <= 4; x++ {
		h.Set(at(x), false)
	}
	assert.Equal(t, []graph.Snapshot{at(2), at(3)}, h.State().Past)

	h.Reset(at(9))
	st := h.State()
	assert.Empty(t, st.Past)
	assert.Empty(t, st.Future)
	assert.Equal(t, at(9), st.Present)
	assert.False(t, h.Set(at(9), false))
}

func TestPropertyUndoRedoRestoresExactly(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("undo restores the state before Set, redo reapplies it", prop.ForAll(
		func(steps []int, x int) bool {
			h := New(0)
			for _, s := range steps {
				h.Set(s, false)
			}
			before := h.Present()
			if !h.Set(x, false) {
				return x == before
			}
			if !h.Undo() || h.Present() != before {
				return false
			}
			return h.Redo() && h.Present() == x
		},
		gen.SliceOf(gen.IntRange(-20, 20)),
		gen.IntRange(-20, 20),
	))

	properties.TestingRun(t)
}
