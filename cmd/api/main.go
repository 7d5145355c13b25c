package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/FlowEngine/internal/api"
	"github.com/AaronLay10/FlowEngine/internal/config"
	"github.com/AaronLay10/FlowEngine/internal/events"
	"github.com/AaronLay10/FlowEngine/internal/execution"
	"github.com/AaronLay10/FlowEngine/internal/geometry"
	"github.com/AaronLay10/FlowEngine/internal/graph"
	"github.com/AaronLay10/FlowEngine/internal/logging"
	"github.com/AaronLay10/FlowEngine/internal/metrics"
	"github.com/AaronLay10/FlowEngine/internal/mqtt"
	"github.com/AaronLay10/FlowEngine/internal/registry"
	"github.com/AaronLay10/FlowEngine/internal/storage/postgres"
	"github.com/AaronLay10/FlowEngine/internal/storage/redis"
	"github.com/AaronLay10/FlowEngine/internal/store"
	"github.com/AaronLay10/FlowEngine/internal/version"
	"github.com/AaronLay10/FlowEngine/internal/workspace"
)

func main() {
	configPath := flag.String("config", "", "path to flowengine.yaml")
	flag.Parse()

	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

// loadConfig reads path, or FLOWENGINE_CONFIG, or falls back to defaults
// with environment overrides.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	return config.Load(path)
}

// backend is the selected persistent store.
type backend struct {
	store store.Store
	sink  events.Sink
	hist  events.History
	ping  func(context.Context) error
	close func() error
}

func openBackend(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		logger.Info("postgres connected", zap.String("host", cfg.Postgres.Host))
		return &backend{store: pg, sink: pg, hist: pg, ping: pg.Ping, close: pg.Close}, nil
	case config.DriverRedis:
		rs, err := redis.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
		return &backend{store: rs, sink: rs, hist: rs, ping: rs.Ping, close: rs.Close}, nil
	default:
		return &backend{store: store.NewMemory(time.Now), close: func() error { return nil }}, nil
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	hostname, _ := os.Hostname()

	be, err := openBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	defer func() {
		if err := be.close(); err != nil {
			logger.Warn("storage close failed", zap.Error(err))
		}
	}()

	bus := events.NewBus(
		events.WithBufferSize(cfg.Events.BufferSize),
		events.WithLogger(logger),
	)
	restored, err := bus.Restore(ctx, be.hist, int64(cfg.Events.BufferSize))
	if err != nil {
		logger.Warn("event restore failed", zap.Error(err))
	}
	if be.sink != nil {
		bus.SetSink(be.sink)
	}

	reg := registry.NewDefault(registry.WithLogger(logger))
	if cfg.Workflow.Catalog != "" {
		if err := reg.LoadCatalog(cfg.Workflow.Catalog); err != nil {
			return err
		}
	}

	var doc graph.Document
	if cfg.Workflow.Document != "" {
		d, err := graph.LoadDocument(cfg.Workflow.Document)
		if err != nil {
			return err
		}
		doc = *d
	}

	var ws *workspace.Workspace
	opts := []workspace.Option{
		workspace.WithID(cfg.Workflow.ID),
		workspace.WithRegistry(reg),
		workspace.WithBus(bus),
		workspace.WithLogger(logger),
		workspace.WithNodeSize(geometry.Size{Width: cfg.Canvas.NodeWidth, Height: cfg.Canvas.NodeHeight}),
		workspace.WithLayoutOptions(cfg.Layout),
		workspace.WithHistoryLimit(cfg.Workflow.HistoryLimit),
		workspace.WithStore(be.store),
		workspace.WithExecutionOptions(
			execution.WithStepDelay(cfg.Execution.StepDelay),
			execution.WithSimulator(execution.Simulator{
				HTTPLatency: cfg.Execution.HTTPLatency,
				LLMLatency:  cfg.Execution.LLMLatency,
				Now:         time.Now,
			}),
		),
	}
	if path := cfg.Workflow.Document; path != "" {
		opts = append(opts, workspace.WithSaveFunc(func(_ context.Context, _ graph.Snapshot, metadata map[string]any) error {
			d := ws.Document()
			d.Metadata = metadata
			return graph.SaveDocument(path, d)
		}))
	}

	var col *metrics.Collector
	if cfg.Metrics.Enabled {
		col = metrics.NewCollector(cfg.Metrics.Namespace, logger)
		opts = append(opts, workspace.WithMetrics(col))
	}

	var mq *mqtt.Client
	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		mq = mqtt.NewClient(cfg.MQTT.Config, logger)
		if err := mq.Connect(); err != nil {
			// Paho keeps retrying in the background.
			logger.Warn("mqtt connect failed", zap.Error(err))
		}
		defer mq.Disconnect()
		publisher = mqtt.NewPublisher(mq, mq.Config().TopicPrefix, logger)
		opts = append(opts, workspace.WithStatePublisher(publisher))
	}

	ws = workspace.New(doc, opts...)

	srvOpts := []api.Option{
		api.WithConfig(cfg.Server),
		api.WithAuth(cfg.Auth),
		api.WithLogger(logger),
	}
	if col != nil {
		srvOpts = append(srvOpts, api.WithMetrics(col))
	}
	if be.ping != nil {
		srvOpts = append(srvOpts, api.WithCheck(cfg.Storage.Driver, be.ping))
	}
	if mq != nil {
		srvOpts = append(srvOpts, api.WithCheck("mqtt", func(context.Context) error {
			if !mq.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}))
	}
	srv := api.New(ws, bus, srvOpts...)

	_, _ = bus.Emit(events.LevelInfo, events.SystemStartup, "flowengine starting", map[string]interface{}{
		"service":     "flowengine",
		"version":     version.String(),
		"hostname":    hostname,
		"pid":         os.Getpid(),
		"workflow_id": ws.ID(),
		"storage":     cfg.Storage.Driver,
		"restored":    restored,
	})
	logger.Info("server starting",
		zap.String("addr", cfg.Server.Addr),
		zap.String("workflow_id", ws.ID()),
		zap.Bool("tls", cfg.Server.TLSEnabled()),
		zap.Bool("auth", cfg.Auth.Enabled()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if mq != nil {
		commands := mqtt.NewCommandSubscriber(mq, mq.Config().TopicPrefix, ws.ID(), ws, bus, logger)
		if err := commands.Subscribe(); err != nil {
			logger.Warn("mqtt subscribe failed", zap.String("topic", commands.Topic()), zap.Error(err))
		}
		g.Go(func() error { return commands.Run(gctx) })
		g.Go(func() error { return publisher.Forward(gctx, bus) })
	}

	err = g.Wait()
	_, _ = bus.Emit(events.LevelInfo, events.SystemShutdown, "flowengine stopping", map[string]interface{}{
		"service": "flowengine",
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
