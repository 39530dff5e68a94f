// Command archiver exports every persisted timestamp to a Parquet object in
// S3/MinIO and exits.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v10"

	"github.com/SebastienMelki/timebuffer/internal/archive"
	"github.com/SebastienMelki/timebuffer/internal/monitor"
	"github.com/SebastienMelki/timebuffer/internal/queue"
	"github.com/SebastienMelki/timebuffer/internal/store"
	"github.com/SebastienMelki/timebuffer/internal/writer"
)

// Config holds all archiver configuration.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Store configuration
	Store store.Config `envPrefix:"STORE_"`

	// Archive configuration
	Archive archive.Config `envPrefix:""`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Store.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting archiver",
		"store_driver", cfg.Store.Driver,
		"s3_endpoint", cfg.Archive.S3.Endpoint,
		"s3_bucket", cfg.Archive.S3.Bucket,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("archive failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Archive.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, cfg.Archive.Timeout)
		defer timeoutCancel()
	}

	client, err := store.NewClient(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	repo := store.NewTimestampRepository(client)

	// Reads go through the same coordinator as the service so connection
	// failures are classified identically. Nothing is ever requeued here.
	mon := monitor.New(repo, monitor.Config{}, nil, logger)
	defer mon.Close()
	coordinator := writer.NewCoordinator(repo, queue.New(1, nil, logger), mon, nil, logger)

	s3Client, err := archive.NewS3Client(ctx, cfg.Archive.S3, logger)
	if err != nil {
		return err
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		return err
	}

	exporter := archive.NewExporter(coordinator, archive.NewParquetWriter(cfg.Archive.Parquet), s3Client, logger)

	result, err := exporter.Export(ctx)
	if err != nil {
		return err
	}

	logger.Info("archiver finished", "key", result.Key, "rows", result.Rows, "size_bytes", result.Bytes)
	return nil
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
