package archive

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Source reads every persisted timestamp.
type Source interface {
	FindAll(ctx context.Context) ([]time.Time, error)
}

// ObjectStore stores encoded export files.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	GenerateKey(exportedAt time.Time) string
}

// Result describes one export run.
type Result struct {
	Key   string
	Rows  int
	Bytes int
}

// Exporter snapshots the store into one Parquet object.
type Exporter struct {
	source Source
	writer *ParquetWriter
	store  ObjectStore
	now    func() time.Time
	logger *slog.Logger
}

// NewExporter creates a new exporter.
func NewExporter(source Source, writer *ParquetWriter, store ObjectStore, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		source: source,
		writer: writer,
		store:  store,
		now:    time.Now,
		logger: logger.With("component", "archive-exporter"),
	}
}

// Export reads all timestamps, sorts them and uploads them as Parquet.
// An empty store uploads nothing and returns a zero Result.
func (e *Exporter) Export(ctx context.Context) (Result, error) {
	timestamps, err := e.source.FindAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read timestamps: %w", err)
	}
	if len(timestamps) == 0 {
		e.logger.Info("nothing to archive")
		return Result{}, nil
	}

	slices.SortFunc(timestamps, func(a, b time.Time) int { return a.Compare(b) })

	rows := make([]TimestampRow, len(timestamps))
	for i, ts := range timestamps {
		rows[i] = RowFromTime(ts)
	}

	data, err := e.writer.Write(rows)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode parquet: %w", err)
	}

	key := e.store.GenerateKey(e.now())
	if err := e.store.Upload(ctx, key, data); err != nil {
		return Result{}, err
	}

	e.logger.Info("archived timestamps",
		"key", key,
		"rows", len(rows),
		"size_bytes", len(data),
	)

	return Result{Key: key, Rows: len(rows), Bytes: len(data)}, nil
}
