// Command timer buffers timestamps in memory and persists them to the store,
// riding out store outages without blocking producers.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v10"

	"github.com/SebastienMelki/timebuffer/internal/consumer"
	"github.com/SebastienMelki/timebuffer/internal/gateway"
	"github.com/SebastienMelki/timebuffer/internal/ingest"
	"github.com/SebastienMelki/timebuffer/internal/monitor"
	"github.com/SebastienMelki/timebuffer/internal/nats"
	"github.com/SebastienMelki/timebuffer/internal/observability"
	"github.com/SebastienMelki/timebuffer/internal/queue"
	"github.com/SebastienMelki/timebuffer/internal/store"
	"github.com/SebastienMelki/timebuffer/internal/writer"
)

// Config holds all timer service configuration.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Store configuration
	Store store.Config `envPrefix:"STORE_"`

	// Buffer configuration
	Queue queue.Config `envPrefix:"QUEUE_"`

	// Consumer loop configuration
	Consumer consumer.Config `envPrefix:"CONSUMER_"`

	// Availability monitor configuration
	Monitor monitor.Config `envPrefix:"MONITOR_"`

	// HTTP gateway configuration
	Gateway gateway.Config `envPrefix:""`

	// Producer configuration
	Ingest ingest.Config `envPrefix:""`

	// NATS connection configuration, used when NATS_ENABLED is set
	NATS nats.Config `envPrefix:"NATS_"`
}

func (c Config) validate() error {
	return errors.Join(
		c.Store.Validate(),
		c.Queue.Validate(),
		c.Consumer.Validate(c.Queue.MaxBufferSize),
		c.Ingest.Validate(),
	)
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting timer service",
		"log_level", cfg.LogLevel,
		"http_addr", cfg.Gateway.Addr,
		"store_driver", cfg.Store.Driver,
		"max_buffer_size", cfg.Queue.MaxBufferSize,
		"batch_threshold", cfg.Consumer.BatchThreshold,
		"max_batch_size", cfg.Consumer.MaxBatchSize,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	obs, err := observability.New("timebuffer")
	if err != nil {
		logger.Error("failed to initialize observability", "error", err)
		os.Exit(1)
	}
	metrics := obs.Metrics()

	// The store may be down at startup; the client still comes up and the
	// monitor probes it until the schema can be applied.
	client, err := store.NewClient(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	repo := store.NewTimestampRepository(client)

	mon := monitor.New(repo, cfg.Monitor, metrics, logger)
	if !client.Ready() {
		mon.MarkUnavailable()
	}

	buffer := queue.New(cfg.Queue.MaxBufferSize, metrics, logger)
	if err := metrics.ObserveGauge("queue.depth", "Timestamps waiting in the buffer", func() int64 {
		return int64(buffer.Size())
	}); err != nil {
		logger.Error("failed to register queue depth gauge", "error", err)
		os.Exit(1)
	}

	coordinator := writer.NewCoordinator(repo, buffer, mon, metrics, logger)

	loop := consumer.New(buffer, coordinator, mon, cfg.Consumer, logger)
	if err := loop.Start(ctx); err != nil {
		logger.Error("failed to start consumer", "error", err)
		os.Exit(1)
	}

	var ticker *ingest.Ticker
	if cfg.Ingest.TickerEnabled {
		ticker = ingest.NewTicker(buffer, cfg.Ingest.TickerInterval, metrics, logger)
		if err := ticker.Start(ctx); err != nil {
			logger.Error("failed to start ticker", "error", err)
			os.Exit(1)
		}
	}

	var (
		natsClient *nats.Client
		subscriber *ingest.Subscriber
	)
	if cfg.Ingest.NATSEnabled {
		natsClient, err = nats.NewClient(cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		subscriber = ingest.NewSubscriber(natsClient, buffer, cfg.Ingest, metrics, logger)
		if err := subscriber.Start(ctx); err != nil {
			logger.Error("failed to start NATS subscriber", "error", err)
			os.Exit(1)
		}
	}

	var mqttSubscriber *ingest.MQTTSubscriber
	if cfg.Ingest.MQTT.Enabled {
		mqttSubscriber = ingest.NewMQTTSubscriber(cfg.Ingest.MQTT, buffer, metrics, logger)
		if err := mqttSubscriber.Start(ctx); err != nil {
			logger.Error("failed to start MQTT subscriber", "error", err)
			os.Exit(1)
		}
	}

	deps := gateway.Deps{
		Buffer:         buffer,
		Reader:         coordinator,
		Availability:   mon,
		Metrics:        metrics,
		MetricsHandler: obs.MetricsHandler(),
	}
	if natsClient != nil {
		deps.Broker = natsClient
	}

	server, err := gateway.NewServer(cfg.Gateway, deps, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")

	if ticker != nil {
		if err := ticker.Stop(context.Background()); err != nil {
			logger.Error("ticker stop error", "error", err)
		}
	}
	if subscriber != nil {
		if err := subscriber.Stop(); err != nil {
			logger.Error("NATS subscriber stop error", "error", err)
		}
	}

	if mqttSubscriber != nil {
		mqttSubscriber.Stop()
	}

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := loop.Stop(context.Background()); err != nil {
		logger.Error("consumer stop error", "error", err)
	}
	cancel()

	mon.Close()

	if buffered := buffer.Size(); buffered > 0 {
		logger.Warn("discarding buffered timestamps", "queue_size", buffered)
	}

	if natsClient != nil {
		if err := natsClient.Drain(); err != nil {
			logger.Error("NATS drain error", "error", err)
		}
	}

	if err := client.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	if err := obs.Shutdown(context.Background()); err != nil {
		logger.Error("observability shutdown error", "error", err)
	}

	logger.Info("timer service stopped")
}

// setupLogger creates a logger based on configuration.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
