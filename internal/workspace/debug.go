package workspace

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/events"
	"github.com/AaronLay10/FlowEngine/internal/execution"
)

// debugger holds the current debug session. Breakpoints outlive sessions.
type debugger struct {
	mu          sync.Mutex
	engine      *execution.Engine
	fresh       bool // engine has not reported a state yet
	gen         uint64
	last        execution.State
	logsSeen    int
	breakpoints []execution.Breakpoint
	opts        []execution.Option
}

// session returns the engine to drive. A new engine over the current canvas
// replaces one that is idle or completed; an active or failed one is kept so
// the engine reports the misuse, and so is one handed out but not started
// yet. The check and the replacement happen under one lock.
func (w *Workspace) session(ctx context.Context) (*execution.Engine, error) {
	w.dbg.mu.Lock()
	defer w.dbg.mu.Unlock()
	if e := w.dbg.engine; e != nil {
		if w.dbg.fresh {
			return e, nil
		}
		switch e.State().Status {
		case execution.StatusRunning, execution.StatusPaused, execution.StatusError:
			return e, nil
		}
	}

	snap := w.Snapshot()
	vars := map[string]any{}
	if w.variables != nil {
		resolved, err := w.variables.Resolve(ctx, w.id)
		if err != nil {
			return nil, err
		}
		vars = resolved
	}

	w.dbg.gen++
	gen := w.dbg.gen
	opts := []execution.Option{
		execution.WithBreakpoints(w.dbg.breakpoints...),
		execution.WithVariables(vars),
		execution.WithClock(w.now),
		execution.WithLogger(w.log),
	}
	if w.metrics != nil {
		opts = append(opts, execution.WithObserver(w.metrics))
	}
	opts = append(opts, w.dbg.opts...)
	w.dbg.engine = execution.New(snap, func(st execution.State) { w.observe(gen, st) }, opts...)
	w.dbg.fresh = true
	w.dbg.last = w.dbg.engine.State()
	w.dbg.logsSeen = 0
	return w.dbg.engine, nil
}

func (w *Workspace) current() *execution.Engine {
	w.dbg.mu.Lock()
	defer w.dbg.mu.Unlock()
	return w.dbg.engine
}

// StartDebug runs the canvas until it completes, fails, pauses or stops.
func (w *Workspace) StartDebug(ctx context.Context) error {
	e, err := w.session(ctx)
	if err != nil {
		return err
	}
	return e.Start(ctx)
}

// StepDebug executes one node, opening a step-mode session when none is
// active.
func (w *Workspace) StepDebug(ctx context.Context) error {
	e, err := w.session(ctx)
	if err != nil {
		return err
	}
	return e.StepNext(ctx)
}

// ContinueDebug resumes a paused session.
func (w *Workspace) ContinueDebug(ctx context.Context) error {
	e := w.current()
	if e == nil {
		return execution.ErrNotActive
	}
	return e.Continue(ctx)
}

func (w *Workspace) PauseDebug() {
	if e := w.current(); e != nil {
		e.Pause()
	}
}

func (w *Workspace) StopDebug() {
	if e := w.current(); e != nil {
		e.Stop()
	}
}

// ToggleBreakpoint adds or flips the breakpoint on nodeID.
func (w *Workspace) ToggleBreakpoint(nodeID string) {
	if e := w.current(); e != nil {
		e.ToggleBreakpoint(nodeID)
		return
	}
	w.dbg.mu.Lock()
	defer w.dbg.mu.Unlock()
	for i := range w.dbg.breakpoints {
		if w.dbg.breakpoints[i].NodeID == nodeID {
			w.dbg.breakpoints[i].Enabled = !w.dbg.breakpoints[i].Enabled
			return
		}
	}
	w.dbg.breakpoints = append(w.dbg.breakpoints, execution.Breakpoint{NodeID: nodeID, Enabled: true})
}

// SetBreakpoint sets the breakpoint on nodeID.
func (w *Workspace) SetBreakpoint(nodeID string, enabled bool) {
	if e := w.current(); e != nil {
		e.SetBreakpoint(nodeID, enabled)
		return
	}
	w.dbg.mu.Lock()
	defer w.dbg.mu.Unlock()
	w.dbg.breakpoints = slices.DeleteFunc(w.dbg.breakpoints, func(bp execution.Breakpoint) bool { return bp.NodeID == nodeID })
	w.dbg.breakpoints = append(w.dbg.breakpoints, execution.Breakpoint{NodeID: nodeID, Enabled: enabled})
}

// RemoveBreakpoint clears the breakpoint on nodeID.
func (w *Workspace) RemoveBreakpoint(nodeID string) {
	if e := w.current(); e != nil {
		e.RemoveBreakpoint(nodeID)
		return
	}
	w.dbg.mu.Lock()
	defer w.dbg.mu.Unlock()
	w.dbg.breakpoints = slices.DeleteFunc(w.dbg.breakpoints, func(bp execution.Breakpoint) bool { return bp.NodeID == nodeID })
}

// DebugState returns the state of the current session, or an idle state
// carrying the breakpoints when there is none.
func (w *Workspace) DebugState() execution.State {
	w.dbg.mu.Lock()
	defer w.dbg.mu.Unlock()
	if w.dbg.engine == nil {
		st := execution.NewState()
		st.Breakpoints = slices.Clone(w.dbg.breakpoints)
		return st
	}
	return w.dbg.last.Clone()
}

// observe turns engine state changes into bus events and mirrors them to the
// state publisher. States from replaced sessions are ignored.
func (w *Workspace) observe(gen uint64, st execution.State) {
	w.dbg.mu.Lock()
	if gen != w.dbg.gen {
		w.dbg.mu.Unlock()
		return
	}
	prev := w.dbg.last.Status
	w.dbg.fresh = false
	w.dbg.last = st.Clone()
	w.dbg.breakpoints = slices.Clone(st.Breakpoints)
	var fresh []execution.LogEntry
	if w.dbg.logsSeen <= len(st.Logs) {
		fresh = st.Logs[w.dbg.logsSeen:]
	}
	w.dbg.logsSeen = len(st.Logs)
	w.dbg.mu.Unlock()

	halted := false
	for _, l := range fresh {
		if l.NodeID == execution.SystemNodeID {
			continue
		}
		fields := map[string]interface{}{"node_id": l.NodeID}
		switch {
		case l.Level == execution.LevelError:
			fields["error"] = l.Message
			w.emit(events.LevelError, events.NodeFailed, fields)
		case l.Message == execution.MsgBreakpointHit:
			halted = true
			w.emit(events.LevelInfo, events.BreakpointHit, fields)
		case strings.HasPrefix(l.Message, execution.MsgExecuting):
			w.emit(events.LevelInfo, events.NodeStarted, fields)
		case l.Message == execution.MsgNodeSucceeded:
			w.emit(events.LevelInfo, events.NodeCompleted, fields)
		}
	}

	if st.Status != prev {
		w.statusEvent(prev, st, halted)
	}

	if w.publisher != nil {
		if err := w.publisher.PublishState(w.id, st); err != nil {
			w.log.Debug("state publish failed", zap.Error(err))
		}
	}
}

func (w *Workspace) statusEvent(prev execution.Status, st execution.State, halted bool) {
	fields := map[string]interface{}{"status": string(st.Status)}
	if st.CurrentNodeID != "" {
		fields["node_id"] = st.CurrentNodeID
	}
	switch st.Status {
	case execution.StatusRunning:
		if prev == execution.StatusPaused {
			w.emit(events.LevelInfo, events.ExecutionResumed, fields)
		} else {
			w.emit(events.LevelInfo, events.ExecutionStarted, fields)
		}
	case execution.StatusPaused:
		if prev == execution.StatusIdle || prev == execution.StatusCompleted {
			fields["step_mode"] = st.StepMode
			w.emit(events.LevelInfo, events.ExecutionStarted, fields)
		} else if !halted {
			w.emit(events.LevelInfo, events.ExecutionPaused, fields)
		}
	case execution.StatusCompleted:
		w.emit(events.LevelInfo, events.ExecutionCompleted, fields)
	case execution.StatusError:
		w.emit(events.LevelError, events.ExecutionFailed, fields)
	case execution.StatusIdle:
		w.emit(events.LevelInfo, events.ExecutionStopped, fields)
	}
}
