package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/FlowEngine/internal/events"
	"github.com/AaronLay10/FlowEngine/internal/execution"
)

// MockMQTTClient is an in-memory Conn.
type MockMQTTClient struct {
	mu            sync.Mutex
	subscriptions map[string]paho.MessageHandler
	published     []published
	publishErr    error
}

type published struct {
	topic    string
	payload  []byte
	retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{subscriptions: make(map[string]paho.MessageHandler)}
}

func (m *MockMQTTClient) Subscribe(topic string, handler paho.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = handler
	return nil
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *MockMQTTClient) Published() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.subscriptions[topic]
	m.mu.Unlock()
	if ok {
		handler(nil, &mockMessage{topic: topic, payload: payload})
	}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

// fakeDebugger records calls. StartDebug blocks until released so tests can
// check that pause and stop are not stuck behind it.
type fakeDebugger struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
}

func (d *fakeDebugger) add(c string) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
}

func (d *fakeDebugger) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDebugger) StartDebug(ctx context.Context) error {
	d.add("start")
	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
		}
	}
	return nil
}
func (d *fakeDebugger) StepDebug(context.Context) error     { d.add("step"); return nil }
func (d *fakeDebugger) ContinueDebug(context.Context) error { d.add("continue"); return nil }
func (d *fakeDebugger) PauseDebug()                         { d.add("pause") }
func (d *fakeDebugger) StopDebug()                          { d.add("stop") }
func (d *fakeDebugger) ToggleBreakpoint(id string)          { d.add("toggle:" + id) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func send(m *MockMQTTClient, topic string, cmd Command) {
	b, _ := json.Marshal(cmd)
	m.SimulateMessage(topic, b)
}

func TestCommandSubscriberIdempotent(t *testing.T) {
	mock := NewMockMQTTClient()
	s := NewCommandSubscriber(mock, "", "wf", &fakeDebugger{}, nil, nil)

	if err := s.Subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := s.Subscribe(); err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	if !s.IsSubscribed() {
		t.Fatal("expected subscribed")
	}
	if s.Topic() != "flowengine/wf/command" {
		t.Errorf("unexpected topic %q", s.Topic())
	}
	if _, ok := mock.subscriptions[s.Topic()]; !ok {
		t.Error("expected handler on command topic")
	}

	s.ClearSubscription()
	if s.IsSubscribed() {
		t.Error("expected subscription cleared")
	}
}

func TestCommandSubscriberDispatch(t *testing.T) {
	mock := NewMockMQTTClient()
	dbg := &fakeDebugger{release: make(chan struct{})}
	bus := events.NewBus()
	s := NewCommandSubscriber(mock, "lab", "wf", dbg, bus, nil)
	if err := s.Subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	topic := "lab/wf/command"
	send(mock, topic, Command{Command: CmdStart})
	waitFor(t, func() bool { return len(dbg.Calls()) == 1 })

	// Start is still running; pause and breakpoint edits must get through.
	send(mock, topic, Command{Command: CmdPause})
	send(mock, topic, Command{Command: CmdToggleBreakpoint, NodeID: "b"})
	waitFor(t, func() bool { return len(dbg.Calls()) == 3 })

	close(dbg.release)
	send(mock, topic, Command{Command: CmdStop})
	waitFor(t, func() bool { return len(dbg.Calls()) == 4 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"start", "pause", "toggle:b", "stop"}
	got := dbg.Calls()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	var commands int
	for _, e := range bus.Snapshot() {
		if e.Name == events.OperatorCommand {
			commands++
		}
	}
	if commands != 4 {
		t.Errorf("expected 4 operator.command events, got %d", commands)
	}
}

func TestCommandSubscriberRejectsBadPayloads(t *testing.T) {
	mock := NewMockMQTTClient()
	s := NewCommandSubscriber(mock, "", "wf", &fakeDebugger{}, nil, nil)
	if err := s.Subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	mock.SimulateMessage(s.Topic(), []byte("not json"))
	send(mock, s.Topic(), Command{Command: "reboot"})
	send(mock, s.Topic(), Command{Command: CmdToggleBreakpoint})

	if n := len(s.commands); n != 0 {
		t.Errorf("expected no queued commands, got %d", n)
	}
}

func TestPublishState(t *testing.T) {
	mock := NewMockMQTTClient()
	p := NewPublisher(mock, "", nil)

	st := execution.NewState()
	st.Status = execution.StatusPaused
	st.CurrentNodeID = "b"
	st.Logs = []execution.LogEntry{{NodeID: "a", Message: "first"}, {NodeID: "b", Message: "Breakpoint hit"}}
	if err := p.PublishState("wf", st); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := mock.Published()
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0].topic != "flowengine/wf/state" || !got[0].retained {
		t.Errorf("unexpected publish %s retained=%v", got[0].topic, got[0].retained)
	}
	var msg StateMessage
	if err := json.Unmarshal(got[0].payload, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Status != execution.StatusPaused || msg.CurrentNodeID != "b" {
		t.Errorf("unexpected state %+v", msg)
	}
	if msg.LastLog == nil || msg.LastLog.Message != "Breakpoint hit" {
		t.Errorf("expected last log entry, got %+v", msg.LastLog)
	}
}

func TestForwardPublishesBusEvents(t *testing.T) {
	mock := NewMockMQTTClient()
	p := NewPublisher(mock, "lab", nil)
	bus := events.NewBus()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Forward(ctx, bus) }()
	waitFor(t, func() bool { return bus.SubscriberCount() == 1 })

	bus.Emit(events.LevelInfo, events.NodeCompleted, "", map[string]interface{}{"node_id": "a"})
	waitFor(t, func() bool { return len(mock.Published()) == 1 })

	if topic := mock.Published()[0].topic; topic != "lab/events/node.completed" {
		t.Errorf("unexpected topic %q", topic)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("forward: %v", err)
	}
	if bus.SubscriberCount() != 0 {
		t.Error("expected forward to unsubscribe")
	}
}

func TestForwardSurvivesPublishErrors(t *testing.T) {
	mock := NewMockMQTTClient()
	mock.publishErr = errors.New("not connected")
	p := NewPublisher(mock, "", nil)
	bus := events.NewBus()

	done := make(chan error, 1)
	go func() { done <- p.Forward(context.Background(), bus) }()
	waitFor(t, func() bool { return bus.SubscriberCount() == 1 })

	bus.Emit(events.LevelInfo, events.GraphChanged, "", nil)
	bus.CloseAllSubscribers()
	if err := <-done; err != nil {
		t.Fatalf("forward: %v", err)
	}
}
