// Package mqtt mirrors debug sessions onto an MQTT broker: state and events
// are published, and remote debug commands are accepted.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	DefaultBrokerURL   = "tcp://localhost:1883"
	DefaultClientID    = "flowengine"
	DefaultTopicPrefix = "flowengine"

	operationTimeout = 10 * time.Second
)

// Config holds broker settings.
type Config struct {
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

func (c Config) withDefaults() Config {
	if c.BrokerURL == "" {
		c.BrokerURL = DefaultBrokerURL
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	return c
}

// Conn is the part of a broker connection the publisher and command
// subscriber need.
type Conn interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler paho.MessageHandler) error
}

// Client wraps the Paho MQTT client.
type Client struct {
	client paho.Client
	cfg    Config
	log    *zap.Logger
	mu     sync.Mutex
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "mqtt"))

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(paho.Client) {
			log.Info("connected", zap.String("broker", cfg.BrokerURL))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	return NewWithPaho(paho.NewClient(opts), cfg, logger)
}

// NewWithPaho wraps an existing Paho client.
func NewWithPaho(pc paho.Client, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client: pc,
		cfg:    cfg.withDefaults(),
		log:    logger.With(zap.String("component", "mqtt")),
	}
}

// Config returns the effective settings.
func (c *Client) Config() Config {
	return c.cfg
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(operationTimeout) {
		return &ConnectTimeoutError{Broker: c.cfg.BrokerURL}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", c.cfg.BrokerURL, err)
	}
	return nil
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(operationTimeout) {
		return &TimeoutError{Op: "subscribe", Topic: topic}
	}
	return token.Error()
}

// Publish sends payload at QoS 1.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	token := c.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(operationTimeout) {
		return &TimeoutError{Op: "publish", Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct {
	Broker string
}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout: " + e.Broker
}

// TimeoutError indicates a subscribe or publish timed out.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	return "mqtt " + e.Op + " timeout: " + e.Topic
}

var _ Conn = (*Client)(nil)
