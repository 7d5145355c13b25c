package execution

import (
	"maps"
	"slices"
	"time"
)

// Status is the lifecycle state of a debug session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// LogLevel is the severity of a session log entry.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// SystemNodeID tags log entries that are not about a particular node.
const SystemNodeID = "system"

// Breakpoint halts a full run right before its node executes.
type Breakpoint struct {
	NodeID  string `json:"nodeId"`
	Enabled bool   `json:"enabled"`
}

// LogEntry is one line of the session log shown to the user.
type LogEntry struct {
	NodeID    string    `json:"nodeId"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
}

// State is everything a host needs to render a debug session.
type State struct {
	Status        Status         `json:"status"`
	CurrentNodeID string         `json:"currentNodeId,omitempty"`
	Breakpoints   []Breakpoint   `json:"breakpoints"`
	Variables     map[string]any `json:"variables"`
	CallStack     []string       `json:"callStack"`
	Logs          []LogEntry     `json:"logs"`
	StepMode      bool           `json:"stepMode"`
}

// NewState returns an idle state.
func NewState() State {
	return State{Status: StatusIdle, Variables: map[string]any{}}
}

// Clone copies s so the copy can be handed to another goroutine.
func (s State) Clone() State {
	s.Breakpoints = slices.Clone(s.Breakpoints)
	s.Variables = maps.Clone(s.Variables)
	s.CallStack = slices.Clone(s.CallStack)
	s.Logs = slices.Clone(s.Logs)
	return s
}

// HasBreakpoint reports whether an enabled breakpoint is set on nodeID.
func (s State) HasBreakpoint(nodeID string) bool {
	for _, bp := range s.Breakpoints {
		if bp.NodeID == nodeID && bp.Enabled {
			return true
		}
	}
	return false
}

// Active reports whether a session is open (running or paused).
func (s Status) Active() bool {
	return s == StatusRunning || s == StatusPaused
}
