package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/events"
	"github.com/AaronLay10/FlowEngine/internal/execution"
)

// StateTopic carries the retained debug state of a workflow.
func StateTopic(prefix, workflowID string) string {
	return prefix + "/" + workflowID + "/state"
}

// CommandTopic receives remote debug commands for a workflow.
func CommandTopic(prefix, workflowID string) string {
	return prefix + "/" + workflowID + "/command"
}

// EventTopic carries one kind of bus event.
func EventTopic(prefix, name string) string {
	return prefix + "/events/" + name
}

// StateMessage is the compact state published to the broker. Logs are
// reduced to the latest entry.
type StateMessage struct {
	WorkflowID    string                 `json:"workflow_id"`
	Status        execution.Status       `json:"status"`
	CurrentNodeID string                 `json:"current_node_id,omitempty"`
	StepMode      bool                   `json:"step_mode"`
	CallStack     []string               `json:"call_stack"`
	Breakpoints   []execution.Breakpoint `json:"breakpoints"`
	LastLog       *execution.LogEntry    `json:"last_log,omitempty"`
}

func newStateMessage(workflowID string, st execution.State) StateMessage {
	m := StateMessage{
		WorkflowID:    workflowID,
		Status:        st.Status,
		CurrentNodeID: st.CurrentNodeID,
		StepMode:      st.StepMode,
		CallStack:     st.CallStack,
		Breakpoints:   st.Breakpoints,
	}
	if n := len(st.Logs); n > 0 {
		last := st.Logs[n-1]
		m.LastLog = &last
	}
	return m
}

// Publisher writes debug state and bus events to the broker.
type Publisher struct {
	conn   Conn
	prefix string
	log    *zap.Logger
}

func NewPublisher(conn Conn, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, prefix: prefix, log: logger.With(zap.String("component", "mqtt.publisher"))}
}

// PublishState publishes st as the retained state of workflowID.
func (p *Publisher) PublishState(workflowID string, st execution.State) error {
	payload, err := json.Marshal(newStateMessage(workflowID, st))
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return p.conn.Publish(StateTopic(p.prefix, workflowID), payload, true)
}

// PublishEvent publishes e on its event topic.
func (p *Publisher) PublishEvent(e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.conn.Publish(EventTopic(p.prefix, e.Name), payload, false)
}

// Forward publishes every bus event until ctx is done or the bus closes the
// subscription. Publish failures are logged and skipped.
func (p *Publisher) Forward(ctx context.Context, bus *events.Bus) error {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub:
			if !ok {
				return nil
			}
			if err := p.PublishEvent(e); err != nil {
				p.log.Warn("event publish failed", zap.String("event", e.Name), zap.Error(err))
			}
		}
	}
}
