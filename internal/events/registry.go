package events

import "fmt"

// Event names. Emit rejects anything not listed here.
const (
	ExecutionStarted   = "execution.started"
	ExecutionPaused    = "execution.paused"
	ExecutionResumed   = "execution.resumed"
	ExecutionStopped   = "execution.stopped"
	ExecutionCompleted = "execution.completed"
	ExecutionFailed    = "execution.failed"

	NodeStarted   = "node.started"
	NodeCompleted = "node.completed"
	NodeFailed    = "node.failed"
	BreakpointHit = "breakpoint.hit"

	GraphChanged  = "graph.changed"
	GraphLayout   = "graph.layout"
	GraphUndo     = "graph.undo"
	GraphRedo     = "graph.redo"
	GraphImported = "graph.imported"
	GraphSaved    = "graph.saved"

	OperatorCommand = "operator.command"

	SystemStartup  = "system.startup"
	SystemShutdown = "system.shutdown"
	SystemError    = "system.error"
)

var allowedEvents = map[string]struct{}{
	// execution
	ExecutionStarted:   {},
	ExecutionPaused:    {},
	ExecutionResumed:   {},
	ExecutionStopped:   {},
	ExecutionCompleted: {},
	ExecutionFailed:    {},

	// node
	NodeStarted:   {},
	NodeCompleted: {},
	NodeFailed:    {},
	BreakpointHit: {},

	// graph
	GraphChanged:  {},
	GraphLayout:   {},
	GraphUndo:     {},
	GraphRedo:     {},
	GraphImported: {},
	GraphSaved:    {},

	// operator
	OperatorCommand: {},

	// system
	SystemStartup:  {},
	SystemShutdown: {},
	SystemError:    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
