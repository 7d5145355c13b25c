// Package events carries workflow and debug-session events to live
// subscribers, a bounded in-memory history and an optional durable sink.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBufferSize is how many recent events a bus keeps by default.
const DefaultBufferSize = 256

const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Time parses the event timestamp.
func (e Event) Time() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, e.Timestamp)
	return t
}

// Sink persists events, e.g. to Postgres or Redis.
type Sink interface {
	AppendEvent(ctx context.Context, e Event) error
}

// Bus fans events out to subscribers and keeps the most recent ones.
type Bus struct {
	buffer *RingBuffer
	now    func() time.Time
	log    *zap.Logger

	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}

	sinkMu      sync.RWMutex
	sink        Sink
	sinkTimeout time.Duration
	errorLogged bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the ring buffer capacity.
func WithBufferSize(n int) Option {
	return func(b *Bus) { b.buffer = NewRingBuffer(n) }
}

// WithSink sets the durable sink.
func WithSink(s Sink) Option {
	return func(b *Bus) { b.sink = s }
}

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithLogger sets the bus logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) { b.log = l }
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		buffer:      NewRingBuffer(DefaultBufferSize),
		now:         time.Now,
		log:         zap.NewNop(),
		subscribers: make(map[Subscriber]struct{}),
		sinkTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(zap.String("component", "events"))
	return b
}

// SetSink replaces the durable sink. A nil sink disables persistence.
func (b *Bus) SetSink(s Sink) {
	b.sinkMu.Lock()
	b.sink = s
	b.errorLogged = false
	b.sinkMu.Unlock()
}

// Emit validates, records and broadcasts an event, returning its JSON form.
func (b *Bus) Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	e := Event{
		Timestamp: b.now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	b.buffer.Add(e)
	b.persist(e)
	b.broadcast(e)

	out, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return out, nil
}

// persist writes e to the sink. The first failure is reported once as a
// system.error event added straight to the buffer so a broken sink cannot
// recurse through Emit.
func (b *Bus) persist(e Event) {
	b.sinkMu.RLock()
	sink := b.sink
	b.sinkMu.RUnlock()
	if sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.sinkTimeout)
	defer cancel()
	err := sink.AppendEvent(ctx, e)
	if err == nil {
		return
	}

	b.sinkMu.Lock()
	first := !b.errorLogged
	b.errorLogged = true
	b.sinkMu.Unlock()
	if !first {
		return
	}

	b.log.Error("event sink append failed", zap.String("event", e.Name), zap.Error(err))
	errEvent := Event{
		Timestamp: b.now().UTC().Format(time.RFC3339Nano),
		Level:     LevelError,
		Name:      SystemError,
		Message:   "event sink append failed",
		Fields:    map[string]interface{}{"error": err.Error()},
	}
	b.buffer.Add(errEvent)
	b.broadcast(errEvent)
}

// Snapshot returns every buffered event, oldest first.
func (b *Bus) Snapshot() []Event {
	return b.buffer.Snapshot()
}

// TotalCount is the number of events emitted since the last Clear.
func (b *Bus) TotalCount() uint64 {
	return b.buffer.TotalCount()
}

// Clear empties the buffer.
func (b *Bus) Clear() {
	b.buffer.Clear()
}
