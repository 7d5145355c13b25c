// Package execution runs a workflow graph one node at a time with
// breakpoints, stepping, pause and stop.
package execution

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// DefaultStepDelay is the pause between node completions during a full run.
const DefaultStepDelay = 500 * time.Millisecond

// Session log messages hosts may match on.
const (
	MsgExecuting     = "Executing node: "
	MsgNodeSucceeded = "Node executed successfully"
	MsgBreakpointHit = "Breakpoint hit"
)

var (
	ErrAlreadyRunning = errors.New("execution already in progress")
	ErrFailed         = errors.New("execution failed, stop it before starting again")
	ErrNotActive      = errors.New("no active execution")
)

// StateFunc receives a copy of the state after every change.
type StateFunc func(State)

// Observer is told about node executions and status changes, e.g. to feed
// metrics.
type Observer interface {
	ObserveNode(nodeType string, d time.Duration, err error)
	ObserveStatus(s Status)
}

// Engine is the execution state machine for one frozen graph.
//
//	idle ──Start──▶ running ──breakpoint/Pause──▶ paused ──Continue──▶ running
//	  │                │                             │
//	  └──StepNext──────┼─────────────────────────────┘ (StepNext keeps paused)
//	                   ├──queue drained──▶ completed
//	                   └──executor error─▶ error (Stop, then Start)
//
// Stop returns to idle from any state. Dispatch is serialized; Pause, Stop
// and breakpoint edits may be called from other goroutines while a run is
// in progress.
type Engine struct {
	graph    graph.Snapshot
	incoming map[string][]string

	runMu sync.Mutex

	mu        sync.Mutex
	state     State
	queue     []string
	outputs   map[string]any
	session   uint64
	bypass    string
	backEdges []graph.Edge

	executors map[string]Executor
	fallback  Executor
	delay     time.Duration
	now       func() time.Time
	onChange  StateFunc
	observer  Observer
	log       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithExecutor registers or replaces the executor for a node type.
func WithExecutor(nodeType string, ex Executor) Option {
	return func(e *Engine) { e.executors[nodeType] = ex }
}

// WithFallback sets the executor used for types without one.
func WithFallback(ex Executor) Option {
	return func(e *Engine) { e.fallback = ex }
}

// WithSimulator replaces the built-in executors with those of s.
func WithSimulator(s Simulator) Option {
	return func(e *Engine) {
		for t, ex := range s.Executors() {
			e.executors[t] = ex
		}
		e.fallback = s.Fallback()
	}
}

// WithStepDelay sets the pause between node completions in full runs.
func WithStepDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// WithClock sets the clock used for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithBreakpoints seeds the breakpoint list.
func WithBreakpoints(bps ...Breakpoint) Option {
	return func(e *Engine) { e.state.Breakpoints = slices.Clone(bps) }
}

// WithVariables seeds the session variables.
func WithVariables(vars map[string]any) Option {
	return func(e *Engine) { e.state.Variables = maps.Clone(vars) }
}

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an idle engine over a copy of g. onChange may be nil.
func New(g graph.Snapshot, onChange StateFunc, opts ...Option) *Engine {
	sim := NewSimulator()
	e := &Engine{
		graph:     g.Clone(),
		incoming:  make(map[string][]string),
		state:     NewState(),
		outputs:   make(map[string]any),
		executors: sim.Executors(),
		fallback:  sim.Fallback(),
		delay:     DefaultStepDelay,
		now:       time.Now,
		onChange:  onChange,
		log:       zap.NewNop(),
	}
	for _, ed := range e.graph.Edges {
		e.incoming[ed.Target] = append(e.incoming[ed.Target], ed.Source)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.state.Variables == nil {
		e.state.Variables = map[string]any{}
	}
	e.log = e.log.With(zap.String("component", "execution"))
	return e
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Queue returns the ids still waiting to run, next first.
func (e *Engine) Queue() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.queue)
}

// Outputs returns the outputs recorded so far, keyed by node id.
func (e *Engine) Outputs() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.outputs)
}

// BackEdges returns the edges ignored by the last scheduling because they
// close a cycle.
func (e *Engine) BackEdges() []graph.Edge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.backEdges)
}

// Start schedules the graph and runs it until it completes, fails, pauses
// or is stopped. It returns ErrAlreadyRunning while a session is running or
// paused.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.begin(StatusRunning, false); err != nil {
		return err
	}
	// A stopped session may still be finishing its last node.
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.drain(ctx)
	return nil
}

// Continue resumes a paused session. The node a breakpoint halted on runs
// first. It is a no-op unless the session is paused.
func (e *Engine) Continue(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if e.state.Status != StatusPaused {
		e.mu.Unlock()
		return nil
	}
	e.state.Status = StatusRunning
	e.state.StepMode = false
	e.appendLog(SystemNodeID, LevelInfo, "Execution resumed", nil)
	e.commit()

	e.drain(ctx)
	return nil
}

// StepNext runs exactly one queued node, ignoring breakpoints. From idle or
// completed it opens a new session in step mode first. A running session
// must be paused before it can be stepped.
func (e *Engine) StepNext(ctx context.Context) error {
	e.mu.Lock()
	status := e.state.Status
	e.mu.Unlock()
	switch status {
	case StatusRunning:
		return ErrAlreadyRunning
	case StatusError:
		return ErrFailed
	case StatusIdle, StatusCompleted:
		if err := e.begin(StatusPaused, true); err != nil {
			return err
		}
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if !e.state.Status.Active() {
		e.mu.Unlock()
		return ErrNotActive
	}
	e.state.StepMode = true
	if len(e.queue) == 0 {
		e.complete()
		return nil
	}
	id := e.queue[0]
	e.queue = e.queue[1:]
	e.bypass = ""
	session := e.session
	e.mu.Unlock()

	if !e.execute(ctx, id, session) {
		return nil
	}

	e.mu.Lock()
	if e.session != session || !e.state.Status.Active() {
		e.mu.Unlock()
		return nil
	}
	if len(e.queue) == 0 {
		e.complete()
		return nil
	}
	next := e.queue[0]
	e.state.Status = StatusPaused
	e.state.CurrentNodeID = next
	e.bypass = next
	e.commit()
	return nil
}

// Pause halts a running session before its next node. It is a no-op unless
// the session is running.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state.Status != StatusRunning {
		e.mu.Unlock()
		return
	}
	e.state.Status = StatusPaused
	e.appendLog(SystemNodeID, LevelInfo, "Execution paused", nil)
	e.commit()
}

// Stop ends the session from any state. A node already executing finishes
// but its result is discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.session++
	e.queue = nil
	e.bypass = ""
	e.state.Status = StatusIdle
	e.state.CurrentNodeID = ""
	e.state.CallStack = nil
	e.state.StepMode = false
	e.appendLog(SystemNodeID, LevelInfo, "Workflow execution stopped", nil)
	e.commit()
}

// ToggleBreakpoint adds an enabled breakpoint on nodeID, or flips the one
// already there.
func (e *Engine) ToggleBreakpoint(nodeID string) {
	e.mu.Lock()
	for i := range e.state.Breakpoints {
		if e.state.Breakpoints[i].NodeID == nodeID {
			e.state.Breakpoints[i].Enabled = !e.state.Breakpoints[i].Enabled
			e.commit()
			return
		}
	}
	e.state.Breakpoints = append(e.state.Breakpoints, Breakpoint{NodeID: nodeID, Enabled: true})
	e.commit()
}

// SetBreakpoint sets or replaces the breakpoint on nodeID.
func (e *Engine) SetBreakpoint(nodeID string, enabled bool) {
	e.mu.Lock()
	for i := range e.state.Breakpoints {
		if e.state.Breakpoints[i].NodeID == nodeID {
			e.state.Breakpoints[i].Enabled = enabled
			e.commit()
			return
		}
	}
	e.state.Breakpoints = append(e.state.Breakpoints, Breakpoint{NodeID: nodeID, Enabled: enabled})
	e.commit()
}

// RemoveBreakpoint deletes the breakpoint on nodeID.
func (e *Engine) RemoveBreakpoint(nodeID string) {
	e.mu.Lock()
	e.state.Breakpoints = slices.DeleteFunc(e.state.Breakpoints, func(bp Breakpoint) bool {
		return bp.NodeID == nodeID
	})
	e.commit()
}

// SetVariable sets a session variable.
func (e *Engine) SetVariable(name string, value any) {
	e.mu.Lock()
	e.state.Variables[name] = value
	e.commit()
}

// begin opens a new session in the given status.
func (e *Engine) begin(status Status, stepMode bool) error {
	e.mu.Lock()
	switch e.state.Status {
	case StatusRunning, StatusPaused:
		e.mu.Unlock()
		return ErrAlreadyRunning
	case StatusError:
		e.mu.Unlock()
		return ErrFailed
	}

	tr := graph.Walk(e.graph)
	e.session++
	e.queue = tr.Order
	e.backEdges = tr.BackEdges
	e.outputs = make(map[string]any)
	e.bypass = ""
	for k := range e.state.Variables {
		if strings.HasPrefix(k, "output_") {
			delete(e.state.Variables, k)
		}
	}
	e.pruneBreakpoints()

	e.state.Status = status
	e.state.StepMode = stepMode
	e.state.CurrentNodeID = ""
	e.state.CallStack = nil
	e.appendLog(SystemNodeID, LevelInfo,
		fmt.Sprintf("Starting workflow execution with %d nodes", len(e.queue)), nil)

	if len(tr.BackEdges) > 0 {
		ids := make([]string, len(tr.BackEdges))
		for i, ed := range tr.BackEdges {
			ids[i] = ed.ID
		}
		e.log.Warn("cycle detected, back edges ignored", zap.Strings("edges", ids))
	}
	e.log.Info("execution started",
		zap.Int("nodes", len(e.queue)),
		zap.Bool("step_mode", stepMode))
	e.commit()
	return nil
}

func (e *Engine) pruneBreakpoints() {
	before := len(e.state.Breakpoints)
	e.state.Breakpoints = slices.DeleteFunc(e.state.Breakpoints, func(bp Breakpoint) bool {
		_, ok := e.graph.Node(bp.NodeID)
		return !ok
	})
	if dropped := before - len(e.state.Breakpoints); dropped > 0 {
		e.log.Debug("dropped breakpoints on missing nodes", zap.Int("count", dropped))
	}
}

// drain runs queued nodes while the session is running. It must be called
// with runMu held.
func (e *Engine) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			e.Stop()
			return
		}

		e.mu.Lock()
		if e.state.Status != StatusRunning {
			e.mu.Unlock()
			return
		}
		if len(e.queue) == 0 {
			e.complete()
			return
		}
		id := e.queue[0]
		if id != e.bypass && e.state.HasBreakpoint(id) {
			e.state.Status = StatusPaused
			e.state.CurrentNodeID = id
			e.bypass = id
			e.appendLog(id, LevelInfo, MsgBreakpointHit, nil)
			e.log.Info("breakpoint hit", zap.String("node_id", id))
			e.commit()
			return
		}
		e.queue = e.queue[1:]
		e.bypass = ""
		session := e.session
		e.mu.Unlock()

		if !e.execute(ctx, id, session) {
			return
		}

		e.mu.Lock()
		more := len(e.queue) > 0 && e.state.Status == StatusRunning
		e.mu.Unlock()
		if more && e.delay > 0 {
			if err := sleep(ctx, e.delay); err != nil {
				e.Stop()
				return
			}
		}
	}
}

// execute runs one node. It reports whether the session may go on.
func (e *Engine) execute(ctx context.Context, id string, session uint64) bool {
	node, ok := e.graph.Node(id)
	if !ok {
		return true
	}

	e.mu.Lock()
	if e.session != session {
		e.mu.Unlock()
		return false
	}
	e.state.CurrentNodeID = id
	e.state.CallStack = append(e.state.CallStack, id)
	e.appendLog(id, LevelInfo, MsgExecuting+node.Type+" - "+node.Label(), nil)
	req := Request{
		Node:      node,
		Inputs:    e.inputsLocked(id),
		Variables: maps.Clone(e.state.Variables),
	}
	e.commit()

	ex, ok := e.executors[node.Type]
	if !ok {
		ex = e.fallback
	}
	started := time.Now()
	out, err := ex.Execute(ctx, req)
	elapsed := time.Since(started)
	if e.observer != nil {
		e.observer.ObserveNode(node.Type, elapsed, err)
	}

	e.mu.Lock()
	if e.session != session {
		e.mu.Unlock()
		e.log.Debug("discarding result of stopped session", zap.String("node_id", id))
		return false
	}
	if err != nil {
		e.state.Status = StatusError
		e.appendLog(id, LevelError, "Error: "+err.Error(), map[string]any{"error": err.Error()})
		e.log.Error("node execution failed",
			zap.String("node_id", id),
			zap.String("node_type", node.Type),
			zap.Error(err))
		e.commit()
		return false
	}
	e.outputs[id] = out
	e.state.Variables["output_"+id] = out
	e.appendLog(id, LevelInfo, MsgNodeSucceeded, out)
	e.log.Debug("node executed",
		zap.String("node_id", id),
		zap.String("node_type", node.Type),
		zap.Duration("duration", elapsed))
	e.commit()
	return true
}

func (e *Engine) inputsLocked(id string) map[string]any {
	inputs := make(map[string]any)
	for _, src := range e.incoming[id] {
		if out, ok := e.outputs[src]; ok {
			inputs[src] = out
		}
	}
	return inputs
}

// complete marks the session completed. Called with mu held; releases it.
func (e *Engine) complete() {
	e.state.Status = StatusCompleted
	e.state.CurrentNodeID = ""
	e.appendLog(SystemNodeID, LevelInfo, "Workflow execution completed successfully", nil)
	e.log.Info("execution completed", zap.Int("executed", len(e.outputs)))
	e.commit()
}

func (e *Engine) appendLog(nodeID string, level LogLevel, msg string, data any) {
	e.state.Logs = append(e.state.Logs, LogEntry{
		NodeID:    nodeID,
		Timestamp: e.now().UTC(),
		Level:     level,
		Message:   msg,
		Data:      data,
	})
}

// commit publishes the state. Called with mu held; releases it before
// invoking callbacks.
func (e *Engine) commit() {
	snap := e.state.Clone()
	e.mu.Unlock()
	if e.observer != nil {
		e.observer.ObserveStatus(snap.Status)
	}
	if e.onChange != nil {
		e.onChange(snap)
	}
}
