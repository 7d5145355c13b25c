package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/FlowEngine/internal/layout"
	"github.com/AaronLay10/FlowEngine/internal/mqtt"
	"github.com/AaronLay10/FlowEngine/internal/storage/postgres"
	"github.com/AaronLay10/FlowEngine/internal/storage/redis"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "FLOWENGINE_"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config is the flowengine.yaml file.
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Canvas    CanvasConfig    `yaml:"canvas"`
	Layout    layout.Options  `yaml:"layout"`
	Execution ExecutionConfig `yaml:"execution"`
	Events    EventsConfig    `yaml:"events"`
	Storage   StorageConfig   `yaml:"storage"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Auth      AuthConfig      `yaml:"auth"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TLSCert         string        `yaml:"tls_cert"`
	TLSKey          string        `yaml:"tls_key"`
	// AllowedOrigins enables CORS for browser canvases served elsewhere.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSEnabled reports whether both certificate and key are set.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCert != "" && s.TLSKey != ""
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// WorkflowConfig selects what the server edits at startup.
type WorkflowConfig struct {
	ID string `yaml:"id"`
	// Document is an optional JSON or YAML document opened at startup.
	Document string `yaml:"document"`
	// Catalog is an optional YAML file of extra node types.
	Catalog      string `yaml:"catalog"`
	HistoryLimit int    `yaml:"history_limit"`
}

type CanvasConfig struct {
	NodeWidth  float64 `yaml:"node_width"`
	NodeHeight float64 `yaml:"node_height"`
	Padding    float64 `yaml:"padding"`
}

type ExecutionConfig struct {
	StepDelay   time.Duration `yaml:"step_delay"`
	HTTPLatency time.Duration `yaml:"http_latency"`
	LLMLatency  time.Duration `yaml:"llm_latency"`
}

type EventsConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

type StorageConfig struct {
	Driver   string          `yaml:"driver"`
	Postgres postgres.Config `yaml:"postgres"`
	Redis    redis.Config    `yaml:"redis"`
}

type MQTTConfig struct {
	Enabled     bool `yaml:"enabled"`
	mqtt.Config `yaml:",inline"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// AuthConfig holds the basic-auth credentials. Auth is off unless the
// editor credentials are set.
type AuthConfig struct {
	EditorUser string `yaml:"editor_user"`
	EditorPass string `yaml:"editor_pass"`
	ViewerUser string `yaml:"viewer_user"`
	ViewerPass string `yaml:"viewer_pass"`
}

// Enabled reports whether requests must authenticate.
func (a AuthConfig) Enabled() bool {
	return a.EditorUser != "" && a.EditorPass != ""
}

// Default returns a config that runs everything in memory on :8080.
func Default() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:      LogConfig{Level: "info", Format: "json"},
		Workflow: WorkflowConfig{ID: "default", HistoryLimit: 100},
		Canvas: CanvasConfig{
			NodeWidth:  layout.DefaultNodeWidth,
			NodeHeight: layout.DefaultNodeHeight,
			Padding:    layout.DefaultPadding,
		},
		Layout: layout.DefaultOptions(),
		Execution: ExecutionConfig{
			StepDelay:   500 * time.Millisecond,
			HTTPLatency: 300 * time.Millisecond,
			LLMLatency:  500 * time.Millisecond,
		},
		Events: EventsConfig{BufferSize: 256},
		Storage: StorageConfig{
			Driver: DriverMemory,
			Postgres: postgres.Config{
				Host:     "localhost",
				Port:     5432,
				User:     "flowengine",
				Database: "flowengine",
				SSLMode:  "disable",
			},
			Redis: redis.Config{Addr: "localhost:6379", KeyPrefix: "flowengine:"},
		},
		MQTT:    MQTTConfig{Config: mqtt.Config{BrokerURL: mqtt.DefaultBrokerURL, ClientID: mqtt.DefaultClientID, TopicPrefix: mqtt.DefaultTopicPrefix}},
		Metrics: MetricsConfig{Enabled: true, Namespace: "flowengine"},
	}
}

// Load reads a config file over the defaults and applies environment
// overrides and secrets. An empty path uses the defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if cfg, err = Parse(b); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a config file over the defaults.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	cfg.Version = 0
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported flowengine.yaml version: %d", cfg.Version)
	}
	return cfg, nil
}

// Validate checks enumerations and sizes.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverPostgres, DriverRedis:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Canvas.NodeWidth <= 0 || c.Canvas.NodeHeight <= 0 {
		return fmt.Errorf("node size must be positive")
	}
	if c.Workflow.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	if c.Execution.StepDelay < 0 {
		return fmt.Errorf("step delay must not be negative")
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"ADDR":             &c.Server.Addr,
		"TLS_CERT":         &c.Server.TLSCert,
		"TLS_KEY":          &c.Server.TLSKey,
		"LOG_LEVEL":        &c.Log.Level,
		"LOG_FORMAT":       &c.Log.Format,
		"WORKFLOW_ID":      &c.Workflow.ID,
		"DOCUMENT":         &c.Workflow.Document,
		"CATALOG":          &c.Workflow.Catalog,
		"STORAGE_DRIVER":   &c.Storage.Driver,
		"POSTGRES_HOST":    &c.Storage.Postgres.Host,
		"POSTGRES_USER":    &c.Storage.Postgres.User,
		"POSTGRES_DB":      &c.Storage.Postgres.Database,
		"POSTGRES_SSLMODE": &c.Storage.Postgres.SSLMode,
		"REDIS_ADDR":       &c.Storage.Redis.Addr,
		"MQTT_BROKER":      &c.MQTT.BrokerURL,
		"MQTT_CLIENT_ID":   &c.MQTT.ClientID,
		"MQTT_USERNAME":    &c.MQTT.Username,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "POSTGRES_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPOSTGRES_PORT: %w", EnvPrefix, err)
		}
		c.Storage.Postgres.Port = port
	}
	if v, ok := os.LookupEnv(EnvPrefix + "MQTT_ENABLED"); ok {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sMQTT_ENABLED: %w", EnvPrefix, err)
		}
		c.MQTT.Enabled = on
	}
	if v, ok := os.LookupEnv(EnvPrefix + "STEP_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSTEP_DELAY: %w", EnvPrefix, err)
		}
		c.Execution.StepDelay = d
	}
	return c.resolveSecrets()
}
