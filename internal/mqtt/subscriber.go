package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/events"
)

// Remote debug commands.
const (
	CmdStart            = "start"
	CmdStep             = "step"
	CmdPause            = "pause"
	CmdContinue         = "continue"
	CmdStop             = "stop"
	CmdToggleBreakpoint = "toggle_breakpoint"
)

// Command is the payload accepted on a command topic.
type Command struct {
	Command string `json:"command"`
	NodeID  string `json:"node_id,omitempty"`
}

// Validate checks the command name and its arguments.
func (c Command) Validate() error {
	switch c.Command {
	case CmdStart, CmdStep, CmdPause, CmdContinue, CmdStop:
		return nil
	case CmdToggleBreakpoint:
		if c.NodeID == "" {
			return fmt.Errorf("%s requires node_id", c.Command)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", c.Command)
}

// Debugger is driven by remote commands.
type Debugger interface {
	StartDebug(ctx context.Context) error
	StepDebug(ctx context.Context) error
	ContinueDebug(ctx context.Context) error
	PauseDebug()
	StopDebug()
	ToggleBreakpoint(nodeID string)
}

// commandBuffer bounds how many commands may wait while the loop is busy.
const commandBuffer = 16

// CommandSubscriber accepts debug commands for one workflow. The MQTT
// handler only queues; Run executes them.
type CommandSubscriber struct {
	conn       Conn
	topic      string
	debugger   Debugger
	bus        *events.Bus
	log        *zap.Logger
	commands   chan Command
	mu         sync.RWMutex
	subscribed bool
}

// NewCommandSubscriber creates a subscriber. bus may be nil.
func NewCommandSubscriber(conn Conn, prefix, workflowID string, d Debugger, bus *events.Bus, logger *zap.Logger) *CommandSubscriber {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandSubscriber{
		conn:     conn,
		topic:    CommandTopic(prefix, workflowID),
		debugger: d,
		bus:      bus,
		log:      logger.With(zap.String("component", "mqtt.commands")),
		commands: make(chan Command, commandBuffer),
	}
}

// Topic is the command topic.
func (s *CommandSubscriber) Topic() string {
	return s.topic
}

// Subscribe registers the handler. It is idempotent.
func (s *CommandSubscriber) Subscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return nil
	}
	if err := s.conn.Subscribe(s.topic, s.handle); err != nil {
		return err
	}
	s.subscribed = true
	return nil
}

// IsSubscribed reports whether Subscribe succeeded.
func (s *CommandSubscriber) IsSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed
}

// ClearSubscription forgets the subscription so it is renewed after a
// reconnect.
func (s *CommandSubscriber) ClearSubscription() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = false
}

func (s *CommandSubscriber) handle(_ paho.Client, msg paho.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		s.log.Warn("malformed command", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	if err := cmd.Validate(); err != nil {
		s.log.Warn("rejected command", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	select {
	case s.commands <- cmd:
	default:
		s.log.Warn("command dropped, queue full", zap.String("command", cmd.Command))
	}
}

// Run executes queued commands until ctx is done. Commands that run the
// workflow execute in their own goroutine so pause and stop stay
// responsive; Run waits for them before returning.
func (s *CommandSubscriber) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-s.commands:
			s.record(cmd)
			switch cmd.Command {
			case CmdPause:
				s.debugger.PauseDebug()
			case CmdStop:
				s.debugger.StopDebug()
			case CmdToggleBreakpoint:
				s.debugger.ToggleBreakpoint(cmd.NodeID)
			default:
				wg.Add(1)
				go func(cmd Command) {
					defer wg.Done()
					if err := s.run(ctx, cmd); err != nil {
						s.log.Warn("command failed", zap.String("command", cmd.Command), zap.Error(err))
					}
				}(cmd)
			}
		}
	}
}

func (s *CommandSubscriber) run(ctx context.Context, cmd Command) error {
	switch cmd.Command {
	case CmdStart:
		return s.debugger.StartDebug(ctx)
	case CmdStep:
		return s.debugger.StepDebug(ctx)
	case CmdContinue:
		return s.debugger.ContinueDebug(ctx)
	}
	return nil
}

func (s *CommandSubscriber) record(cmd Command) {
	s.log.Info("remote command", zap.String("command", cmd.Command), zap.String("node_id", cmd.NodeID))
	if s.bus == nil {
		return
	}
	fields := map[string]interface{}{"command": cmd.Command, "source": "mqtt"}
	if cmd.NodeID != "" {
		fields["node_id"] = cmd.NodeID
	}
	_, _ = s.bus.Emit(events.LevelInfo, events.OperatorCommand, "", fields)
}
