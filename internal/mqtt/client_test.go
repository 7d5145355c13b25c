package mqtt

import (
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// fakePaho implements the paho.Client methods the wrapper uses.
type fakePaho struct {
	paho.Client
	connectToken *fakeToken
	publishToken *fakeToken
	topics       []string
	retained     []bool
	connected    bool
}

func (f *fakePaho) Connect() paho.Token { return f.connectToken }
func (f *fakePaho) Publish(topic string, _ byte, retained bool, _ interface{}) paho.Token {
	f.topics = append(f.topics, topic)
	f.retained = append(f.retained, retained)
	return f.publishToken
}
func (f *fakePaho) Subscribe(topic string, _ byte, _ paho.MessageHandler) paho.Token {
	f.topics = append(f.topics, topic)
	return &fakeToken{done: true}
}
func (f *fakePaho) IsConnected() bool { return f.connected }
func (f *fakePaho) Disconnect(uint)   { f.connected = false }

func TestConfigDefaults(t *testing.T) {
	c := NewWithPaho(&fakePaho{}, Config{}, nil)
	cfg := c.Config()
	if cfg.BrokerURL != DefaultBrokerURL || cfg.ClientID != DefaultClientID || cfg.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestConnect(t *testing.T) {
	fp := &fakePaho{connectToken: &fakeToken{done: true}}
	c := NewWithPaho(fp, Config{BrokerURL: "tcp://broker:1883"}, nil)
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	fp.connectToken = &fakeToken{done: false}
	var timeout *ConnectTimeoutError
	if err := c.Connect(); !errors.As(err, &timeout) {
		t.Errorf("expected ConnectTimeoutError, got %v", err)
	}

	fp.connectToken = &fakeToken{done: true, err: errors.New("refused")}
	if err := c.Connect(); err == nil {
		t.Error("expected connect error")
	}
}

func TestPublishAndSubscribe(t *testing.T) {
	fp := &fakePaho{publishToken: &fakeToken{done: true}, connected: true}
	c := NewWithPaho(fp, Config{}, nil)

	if err := c.Publish("a/state", []byte("{}"), true); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := c.Subscribe("a/command", func(paho.Client, paho.Message) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(fp.topics) != 2 || fp.topics[0] != "a/state" || !fp.retained[0] {
		t.Errorf("unexpected calls %v %v", fp.topics, fp.retained)
	}

	fp.publishToken = &fakeToken{done: false}
	var timeout *TimeoutError
	if err := c.Publish("a/state", nil, false); !errors.As(err, &timeout) || timeout.Op != "publish" {
		t.Errorf("expected publish timeout, got %v", err)
	}

	if !c.IsConnected() {
		t.Error("expected connected")
	}
	c.Disconnect()
	if c.IsConnected() {
		t.Error("expected disconnected")
	}
}
