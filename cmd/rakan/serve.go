package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CalebLauder/rakan-backend/config"
	"github.com/CalebLauder/rakan-backend/decision"
	"github.com/CalebLauder/rakan-backend/gateway"
	"github.com/CalebLauder/rakan-backend/health"
	"github.com/CalebLauder/rakan-backend/metric"
	"github.com/CalebLauder/rakan-backend/natsclient"
	"github.com/CalebLauder/rakan-backend/pipeline"
	"github.com/CalebLauder/rakan-backend/publisher"
	"github.com/CalebLauder/rakan-backend/store"
	"github.com/CalebLauder/rakan-backend/transport"
)

var (
	servePort       int
	shutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event pipeline and HTTP API",
	Long: `Connects to the broker, subscribes to the events subject and runs
the full processing chain: decision resolution, command publish, state
write and log append. Also serves the HTTP API and the metrics endpoint
when enabled. Shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: func(*cobra.Command, []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "gateway port (overrides config)")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Gateway.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting rakan backend",
		"transport", cfg.Transport,
		"store", cfg.Store.Backend,
		"decision_mode", cfg.Decision.Mode)

	// Broker connection. The NATS client also backs the NATS store
	// bindings, so it is dialed whenever either needs it.
	var (
		tr transport.Transport
		nc *natsclient.Client
	)
	if cfg.Transport == config.TransportNATS || cfg.Store.Backend == config.StoreBackendNATS {
		nc, err = buildNATSClient(cfg)
		if err != nil {
			return err
		}
		if err := nc.Connect(ctx); err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer func() { _ = nc.Close(context.Background()) }()
	}

	switch cfg.Transport {
	case config.TransportNATS:
		tr = transport.NewNATS(nc)
	case config.TransportMQTT:
		tr = buildMQTTTransport(cfg)
		if err := tr.Connect(ctx); err != nil {
			return fmt.Errorf("connect to MQTT broker: %w", err)
		}
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tr.Disconnect(disconnectCtx)
		}()
	}

	subjects := transport.NewSubjects(cfg.Namespace)

	states, logs, err := buildStores(ctx, cfg, nc)
	if err != nil {
		return err
	}

	resolver := buildResolver(cfg)

	// Metrics.
	var (
		registry      *metric.MetricsRegistry
		metricsServer *metric.Server
	)
	if cfg.Metrics.Enabled {
		registry = metric.NewMetricsRegistry()
		metricsServer = metric.NewServer(cfg.Metrics.Port, "/metrics", registry)
		// Start blocks in ListenAndServe until Stop, so it runs in its
		// own goroutine.
		go func() {
			slog.Info("starting metrics server", "port", cfg.Metrics.Port)
			if err := metricsServer.Start(); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
		defer func() { _ = metricsServer.Stop() }()
	}

	pubOpts := []publisher.Option{}
	if registry != nil {
		pubOpts = append(pubOpts, publisher.WithRegistry(registry.PrometheusRegistry()))
	}
	pub := publisher.New(tr, subjects, pubOpts...)

	pipeOpts := []pipeline.Option{
		pipeline.WithStepTimeout(cfg.Pipeline.StepTimeout.Std()),
	}
	if registry != nil {
		pipeMetrics, err := pipeline.NewMetrics(registry)
		if err != nil {
			return fmt.Errorf("register pipeline metrics: %w", err)
		}
		pipeOpts = append(pipeOpts, pipeline.WithMetrics(pipeMetrics))
	}

	pipe := pipeline.New(tr, subjects, resolver, pub, states, logs, pipeOpts...)
	if err := pipe.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	defer func() { _ = pipe.Stop(shutdownTimeout) }()

	monitor := buildMonitor(tr, pipe)

	if cfg.Gateway.Enabled {
		hub := gateway.NewHub(tr, subjects, nil)
		if err := hub.Subscribe(ctx); err != nil {
			return fmt.Errorf("subscribe gateway hub: %w", err)
		}

		srv := gateway.NewServer(cfg.Gateway.Port, states, logs, pub,
			gateway.WithHub(hub),
			gateway.WithMonitor(monitor))
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("start gateway: %w", err)
		}
		defer func() { _ = srv.Stop(shutdownTimeout) }()
	}

	slog.Info("rakan backend running")
	<-ctx.Done()
	slog.Info("shutdown signal received")
	return nil
}

func buildNATSClient(cfg *config.Config) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
	}
	if cfg.NATS.ReconnectWait.Std() > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()))
	}
	if cfg.NATS.Timeout.Std() > 0 {
		opts = append(opts, natsclient.WithTimeout(cfg.NATS.Timeout.Std()))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithUserCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}

	nc, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("build NATS client: %w", err)
	}
	return nc, nil
}

func buildMQTTTransport(cfg *config.Config) *transport.MQTTTransport {
	opts := []transport.MQTTOption{}
	if cfg.MQTT.Username != "" {
		opts = append(opts, transport.WithMQTTCredentials(cfg.MQTT.Username, cfg.MQTT.Password))
	}
	return transport.NewMQTT(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID, opts...)
}

func buildStores(ctx context.Context, cfg *config.Config, nc *natsclient.Client) (store.StateStore, store.LogStore, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendNATS:
		states, err := store.NewKVStateStore(ctx, nc, "")
		if err != nil {
			return nil, nil, fmt.Errorf("open state bucket: %w", err)
		}
		logs, err := store.NewJetStreamLogStore(ctx, nc, "")
		if err != nil {
			return nil, nil, fmt.Errorf("open log stream: %w", err)
		}
		return states, logs, nil

	case config.StoreBackendRedis:
		states, err := store.NewRedisStateStore(ctx, store.RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to Redis: %w", err)
		}
		// Redis holds state only; the log stays local.
		return states, store.NewMemoryLogStore(0), nil

	default:
		return store.NewMemoryStateStore(), store.NewMemoryLogStore(0), nil
	}
}

func buildResolver(cfg *config.Config) *decision.Resolver {
	var source decision.Source
	if cfg.Decision.Mode == config.DecisionModeHTTP {
		source = decision.NewHTTPSource(cfg.Decision.Endpoint)
	} else {
		source = decision.NewLocalSource(decision.NewThresholdPolicy())
	}

	opts := []decision.ResolverOption{}
	if cfg.Decision.Timeout.Std() > 0 {
		opts = append(opts, decision.WithTimeout(cfg.Decision.Timeout.Std()))
	}
	return decision.NewResolver(source, opts...)
}

func buildMonitor(tr transport.Transport, pipe *pipeline.Pipeline) *health.Monitor {
	monitor := health.NewMonitor()
	monitor.Register("broker", func(context.Context) health.Status {
		if tr.Connected() {
			return health.Healthy("", "connected")
		}
		return health.Unhealthy("", "connection lost")
	})
	monitor.Register("pipeline", func(context.Context) health.Status {
		if !pipe.Running() {
			return health.Unhealthy("", "not running")
		}
		received, rejected, handled, warnings := pipe.Stats()
		return health.Healthy("", "running").WithDetails(map[string]any{
			"received": received,
			"rejected": rejected,
			"handled":  handled,
			"warnings": warnings,
		})
	})
	return monitor
}
