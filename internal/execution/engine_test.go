package execution

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

func chain(ids ...string) graph.Snapshot {
	var s graph.Snapshot
	for i, id := range ids {
		s.Nodes = append(s.Nodes, graph.Node{
			ID:   id,
			Type: graph.KindInput,
			Data: graph.InputData{Label: id},
		})
		if i > 0 {
			s.Edges = append(s.Edges, graph.Edge{ID: graph.EdgeID(ids[i-1], id), Source: ids[i-1], Target: id})
		}
	}
	return s
}

// recorder is a fallback executor that remembers the order nodes ran in.
type recorder struct {
	mu    sync.Mutex
	order []string
	hook  func(id string) error
}

func (r *recorder) Execute(_ context.Context, req Request) (any, error) {
	r.mu.Lock()
	r.order = append(r.order, req.Node.ID)
	r.mu.Unlock()
	if r.hook != nil {
		if err := r.hook(req.Node.ID); err != nil {
			return nil, err
		}
	}
	return map[string]any{"id": req.Node.ID}, nil
}

func (r *recorder) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

func newEngine(s graph.Snapshot, rec *recorder, opts ...Option) *Engine {
	base := []Option{
		WithSimulator(Simulator{}),
		WithFallback(rec),
		WithStepDelay(0),
		WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }),
	}
	return New(s, nil, append(base, opts...)...)
}

func messages(st State) []string {
	out := make([]string, len(st.Logs))
	for i, l := range st.Logs {
		out[i] = l.Message
	}
	return out
}

func TestBreakpointThenContinue(t *testing.T) {
	rec := &recorder{}
	e := newEngine(chain("A", "B", "C"), rec, WithBreakpoints(Breakpoint{NodeID: "B", Enabled: true}))
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	st := e.State()
	assert.Equal(t, StatusPaused, st.Status)
	assert.Equal(t, "B", st.CurrentNodeID)
	assert.Equal(t, []string{"A"}, rec.ran())
	assert.Equal(t, []string{"B", "C"}, e.Queue())

	require.NoError(t, e.Continue(ctx))
	st = e.State()
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Empty(t, st.CurrentNodeID)
	assert.Equal(t, []string{"A", "B", "C"}, rec.ran())
	assert.Equal(t, []string{"A", "B", "C"}, st.CallStack)
	assert.Contains(t, messages(st), "Execution resumed")
	assert.Equal(t, "Workflow execution completed successfully", st.Logs[len(st.Logs)-1].Message)
}

func TestStartLogsAndRecordsOutputs(t *testing.T) {
	rec := &recorder{}
	var states []State
	e := New(chain("A", "B"), func(s State) { states = append(states, s) },
		WithSimulator(Simulator{}), WithFallback(rec), WithStepDelay(0))

	require.NoError(t, e.Start(context.Background()))

	st := e.State()
	require.Equal(t, StatusCompleted, st.Status)
	msgs := messages(st)
	assert.Equal(t, "Starting workflow execution with 2 nodes", msgs[0])
	assert.Contains(t, msgs, "Executing node: input - A")
	assert.Contains(t, msgs, "Node executed successfully")

	assert.Equal(t, map[string]any{"id": "A"}, e.Outputs()["A"])
	assert.Equal(t, map[string]any{"id": "B"}, st.Variables["output_B"])
	require.NotEmpty(t, states)
	assert.Equal(t, StatusCompleted, states[len(states)-1].Status)
}

func TestStartRejectsActiveSession(t *testing.T) {
	rec := &recorder{}
	e := newEngine(chain("A", "B"), rec, WithBreakpoints(Breakpoint{NodeID: "B", Enabled: true}))
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	require.Equal(t, StatusPaused, e.State().Status)
	assert.ErrorIs(t, e.Start(ctx), ErrAlreadyRunning)
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	rec := &recorder{hook: func(string) error {
		close(started)
		<-release
		return nil
	}}
	e := newEngine(chain("A"), rec)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()
	<-started

	require.Equal(t, StatusRunning, e.State().Status)
	assert.ErrorIs(t, e.Start(ctx), ErrAlreadyRunning)
	assert.ErrorIs(t, e.StepNext(ctx), ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StatusCompleted, e.State().Status)
	assert.Equal(t, []string{"A"}, rec.ran())
}

func TestStartAfterCompletionRunsAgain(t *testing.T) {
	rec := &recorder{}
	e := newEngine(chain("A", "B"), rec)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Start(ctx))
	assert.Equal(t, []string{"A", "B", "A", "B"}, rec.ran())
	assert.Equal(t, StatusCompleted, e.State().Status)
}

func TestStepNext(t *testing.T) {
	rec := &recorder{}
	e := newEngine(chain("A", "B", "C"), rec, WithBreakpoints(Breakpoint{NodeID: "B", Enabled: true}))
	ctx := context.Background()

	require.NoError(t, e.StepNext(ctx))
	st := e.State()
	assert.Equal(t, StatusPaused, st.Status)
	assert.True(t, st.StepMode)
	assert.Equal(t, "B", st.CurrentNodeID)
	assert.Equal(t, []string{"A"}, rec.ran())

	// Breakpoints do not stop a step.
	require.NoError(t, e.StepNext(ctx))
	assert.Equal(t, []string{"A", "B"}, rec.ran())
	assert.Equal(t, "C", e.State().CurrentNodeID)

	require.NoError(t, e.StepNext(ctx))
	st = e.State()
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Empty(t, st.CurrentNodeID)
	assert.Equal(t, []string{"A", "B", "C"}, rec.ran())
}

func TestStepThenContinueRunsHaltedNode(t *testing.T) {
	rec := &recorder{}
	e := newEngine(chain("A", "B", "C"), rec, WithBreakpoints(Breakpoint{NodeID: "B", Enabled: true}))
	ctx := context.Background()

	require.NoError(t, e.StepNext(ctx))
	require.Equal(t, "B", e.State().CurrentNodeID)

	require.NoError(t, e.Continue(ctx))
	st := e.State()
	assert.Equal(t, StatusCompleted, st.Status)
	assert.False(t, st.StepMode)
	assert.Equal(t, []string{"A", "B", "C"}, rec.ran())
}

func TestStepNextAfterErrorFails(t *testing.T) {
	rec := &recorder{hook: func(string) error { return errors.New("boom") }}
	e := newEngine(chain("A"), rec)

	require.NoError(t, e.Start(context.Background()))
	assert.ErrorIs(t, e.StepNext(context.Background()), ErrFailed)
}

func TestPauseDuringRun(t *testing.T) {
	rec := &recorder{}
	e := newEngine(chain("A", "B", "C"), rec)
	rec.hook = func(id string) error {
		if id == "B" {
			e.Pause()
		}
		return nil
	}
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	st := e.State()
	assert.Equal(t, StatusPaused, st.Status)
	assert.Equal(t, "B", st.CurrentNodeID)
	assert.Contains(t, messages(st), "Execution paused")
	assert.Contains(t, e.Outputs(), "B")
	assert.Equal(t, []string{"C"}, e.Queue())

	require.NoError(t, e.Continue(ctx))
	assert.Equal(t, StatusCompleted, e.State().Status)
	assert.Equal(t, []string{"A", "B", "C"}, rec.ran())
}

func TestPauseAndContinueAreNoOpsWhenIdle(t *testing.T) {
	rec := &recorder{}
	e := newEngine(chain("A"), rec)

	e.Pause()
	require.NoError(t, e.Continue(context.Background()))
	assert.Equal(t, StatusIdle, e.State().Status)
	assert.Empty(t, e.State().Logs)
	assert.Empty(t, rec.ran())
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	rec := &recorder{}
	e := newEngine(chain("A", "B", "C"), rec)
	rec.hook = func(id string) error {
		if id == "B" {
			e.Stop()
		}
		return nil
	}

	require.NoError(t, e.Start(context.Background()))
	st := e.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Empty(t, st.CurrentNodeID)
	assert.Empty(t, st.CallStack)
	assert.False(t, st.StepMode)
	assert.Empty(t, e.Queue())
	assert.Equal(t, []string{"A", "B"}, rec.ran())
	assert.NotContains(t, e.Outputs(), "B")
	assert.Equal(t, "Workflow execution stopped", st.Logs[len(st.Logs)-1].Message)
}

func TestStopWhilePaused(t *testing.T) {
	rec := &recorder{}
	e := newEngine(chain("A", "B"), rec, WithBreakpoints(Breakpoint{NodeID: "B", Enabled: true}))
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	e.Stop()
	assert.Equal(t, StatusIdle, e.State().Status)

	require.NoError(t, e.Continue(ctx))
	assert.Equal(t, []string{"A"}, rec.ran())
}

func TestExecutorErrorSetsErrorStatus(t *testing.T) {
	rec := &recorder{hook: func(id string) error {
		if id == "B" {
			return errors.New("upstream unavailable")
		}
		return nil
	}}
	core, logs := observer.New(zapcore.ErrorLevel)
	e := newEngine(chain("A", "B", "C"), rec, WithLogger(zap.New(core)))
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	st := e.State()
	assert.Equal(t, StatusError, st.Status)
	last := st.Logs[len(st.Logs)-1]
	assert.Equal(t, LevelError, last.Level)
	assert.Equal(t, "B", last.NodeID)
	assert.Equal(t, map[string]any{"error": "upstream unavailable"}, last.Data)
	assert.Equal(t, []string{"A", "B"}, rec.ran())
	assert.Equal(t, 1, logs.FilterMessage("node execution failed").Len())

	assert.ErrorIs(t, e.Start(ctx), ErrFailed)

	e.Stop()
	rec.hook = nil
	require.NoError(t, e.Start(ctx))
	assert.Equal(t, StatusCompleted, e.State().Status)
}

func TestInputsComeFromIncomingEdges(t *testing.T) {
	s := chain("A", "C")
	s.Nodes = append(s.Nodes, graph.Node{ID: "B", Type: graph.KindInput})
	s.Edges = append(s.Edges, graph.Edge{ID: "edge-B-C", Source: "B", Target: "C"})

	var got map[string]any
	e := newEngine(s, &recorder{}, WithExecutor(graph.KindInput, ExecutorFunc(func(_ context.Context, req Request) (any, error) {
		if req.Node.ID == "C" {
			got = req.Inputs
		}
		return req.Node.ID + "-out", nil
	})))

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, map[string]any{"A": "A-out", "B": "B-out"}, got)
}

func TestBreakpointToggledMidRun(t *testing.T) {
	rec := &recorder{}
	e := newEngine(chain("A", "B", "C"), rec)
	rec.hook = func(id string) error {
		if id == "A" {
			e.ToggleBreakpoint("C")
		}
		return nil
	}

	require.NoError(t, e.Start(context.Background()))
	st := e.State()
	assert.Equal(t, StatusPaused, st.Status)
	assert.Equal(t, "C", st.CurrentNodeID)
	assert.Equal(t, []Breakpoint{{NodeID: "C", Enabled: true}}, st.Breakpoints)
	assert.Equal(t, []string{"A", "B"}, rec.ran())
}

func TestBreakpointEditing(t *testing.T) {
	e := newEngine(chain("A", "B"), &recorder{})

	e.ToggleBreakpoint("A")
	assert.True(t, e.State().HasBreakpoint("A"))
	e.ToggleBreakpoint("A")
	assert.False(t, e.State().HasBreakpoint("A"))
	assert.Len(t, e.State().Breakpoints, 1)

	e.SetBreakpoint("B", true)
	assert.True(t, e.State().HasBreakpoint("B"))
	e.RemoveBreakpoint("B")
	assert.False(t, e.State().HasBreakpoint("B"))

	// Disabled breakpoints do not halt a run.
	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, StatusCompleted, e.State().Status)
}

func TestStartPrunesStaleState(t *testing.T) {
	e := newEngine(chain("A"), &recorder{},
		WithBreakpoints(Breakpoint{NodeID: "ghost", Enabled: true}),
		WithVariables(map[string]any{"output_old": 1, "keep": 2}))

	require.NoError(t, e.Start(context.Background()))
	st := e.State()
	assert.Empty(t, st.Breakpoints)
	assert.NotContains(t, st.Variables, "output_old")
	assert.Equal(t, 2, st.Variables["keep"])
	assert.Contains(t, st.Variables, "output_A")
}

func TestCancelledContextStops(t *testing.T) {
	rec := &recorder{}
	e := newEngine(chain("A", "B"), rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, e.Start(ctx))
	assert.Equal(t, StatusIdle, e.State().Status)
	assert.Empty(t, rec.ran())
}

func TestCycleRunsOnceAndWarns(t *testing.T) {
	s := chain("A", "B")
	s.Edges = append(s.Edges, graph.Edge{ID: "edge-B-A", Source: "B", Target: "A"})
	rec := &recorder{}
	core, logs := observer.New(zapcore.WarnLevel)
	e := newEngine(s, rec, WithLogger(zap.New(core)))

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, StatusCompleted, e.State().Status)
	assert.Equal(t, []string{"A", "B"}, rec.ran())
	require.Len(t, e.BackEdges(), 1)
	assert.Equal(t, 1, logs.FilterMessage("cycle detected, back edges ignored").Len())
}

type countingObserver struct {
	nodes    map[string]int
	failures int
	statuses []Status
}

func (o *countingObserver) ObserveNode(nodeType string, _ time.Duration, err error) {
	o.nodes[nodeType]++
	if err != nil {
		o.failures++
	}
}

func (o *countingObserver) ObserveStatus(s Status) { o.statuses = append(o.statuses, s) }

func TestObserver(t *testing.T) {
	obs := &countingObserver{nodes: map[string]int{}}
	e := newEngine(chain("A", "B"), &recorder{}, WithObserver(obs))

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, 2, obs.nodes[graph.KindInput])
	assert.Zero(t, obs.failures)
	assert.Equal(t, StatusRunning, obs.statuses[0])
	assert.Equal(t, StatusCompleted, obs.statuses[len(obs.statuses)-1])
}

func TestStepDelayBetweenNodes(t *testing.T) {
	rec := &recorder{}
	e := New(chain("A", "B", "C"), nil, WithSimulator(Simulator{}), WithFallback(rec), WithStepDelay(5*time.Millisecond))

	started := time.Now()
	require.NoError(t, e.Start(context.Background()))
	assert.GreaterOrEqual(t, time.Since(started), 10*time.Millisecond)
	assert.Equal(t, StatusCompleted, e.State().Status)
}

func TestRunFollowsTopologicalOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "n")
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
		}
		var s graph.Snapshot
		for _, id := range rapid.Permutation(ids).Draw(rt, "model") {
			s.Nodes = append(s.Nodes, graph.Node{ID: id, Type: "step"})
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rapid.Bool().Draw(rt, fmt.Sprintf("e%d_%d", i, j)) {
					s.Edges = append(s.Edges, graph.Edge{ID: graph.EdgeID(ids[i], ids[j]), Source: ids[i], Target: ids[j]})
				}
			}
		}

		rec := &recorder{}
		e := newEngine(s, rec)
		if err := e.Start(context.Background()); err != nil {
			rt.Fatalf("start: %v", err)
		}
		ran := rec.ran()
		if len(ran) != n {
			rt.Fatalf("ran %d of %d nodes", len(ran), n)
		}
		pos := make(map[string]int, n)
		for i, id := range ran {
			pos[id] = i
		}
		for _, ed := range s.Edges {
			if pos[ed.Source] >= pos[ed.Target] {
				rt.Fatalf("edge %s ran out of order: %v", ed.ID, ran)
			}
		}
		if e.State().Status != StatusCompleted {
			rt.Fatalf("status %s", e.State().Status)
		}
	})
}
