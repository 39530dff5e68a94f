// Package writer performs store writes on behalf of the consumer and
// implements the recovery policy for failed writes.
//
// Connection-class failures are self-healing: the entries go back to the
// head of the buffer and the availability monitor is tripped. Any other
// failure is returned to the caller and the entries of that call are
// dropped, since retrying a non-transient error would loop forever.
//
// A failed batch is requeued as a whole even if the store applied part of
// it, so delivery is at-least-once and duplicates are possible.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/SebastienMelki/timebuffer/internal/observability"
	"github.com/SebastienMelki/timebuffer/internal/store"
)

// Repository is the persistence capability the coordinator writes through.
type Repository interface {
	InsertOne(ctx context.Context, ts time.Time) error
	InsertMany(ctx context.Context, timestamps []time.Time) error
	SelectAll(ctx context.Context) ([]time.Time, error)
}

// Requeuer puts drained entries back at the head of the buffer.
type Requeuer interface {
	ReturnToHead(entries []time.Time)
}

// Breaker is tripped when the store looks unreachable.
type Breaker interface {
	MarkUnavailable()
}

// Write modes used as metric attributes.
const (
	modeSingle = "single"
	modeBatch  = "batch"
)

// Coordinator writes timestamps and applies the failure policy.
type Coordinator struct {
	repo    Repository
	queue   Requeuer
	breaker Breaker
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCoordinator creates a new write coordinator.
func NewCoordinator(
	repo Repository,
	queue Requeuer,
	breaker Breaker,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		repo:    repo,
		queue:   queue,
		breaker: breaker,
		metrics: metrics,
		logger:  logger.With("component", "write-coordinator"),
	}
}

// WriteOne persists a single timestamp. A connection-class failure requeues
// it and returns nil; any other failure is returned and the entry is lost.
func (c *Coordinator) WriteOne(ctx context.Context, ts time.Time) error {
	start := time.Now()
	err := c.repo.InsertOne(ctx, ts)
	c.recordWrite(ctx, modeSingle, 1, start, err)
	if err != nil {
		return c.handleWriteFailure(modeSingle, []time.Time{ts}, err)
	}
	return nil
}

// WriteBatch persists timestamps as one unit. Empty input is a no-op.
// Failures follow WriteOne, with the whole batch requeued.
func (c *Coordinator) WriteBatch(ctx context.Context, timestamps []time.Time) error {
	if len(timestamps) == 0 {
		return nil
	}

	start := time.Now()
	err := c.repo.InsertMany(ctx, timestamps)
	c.recordWrite(ctx, modeBatch, len(timestamps), start, err)
	if err != nil {
		return c.handleWriteFailure(modeBatch, timestamps, err)
	}
	return nil
}

// FindAll reads every persisted timestamp. A connection-class failure trips
// the breaker before the error is returned.
func (c *Coordinator) FindAll(ctx context.Context) ([]time.Time, error) {
	timestamps, err := c.repo.SelectAll(ctx)
	if err != nil {
		if store.IsConnectionError(err) {
			c.logger.Error("store connection problem during read", "error", err)
			c.breaker.MarkUnavailable()
		}
		return nil, fmt.Errorf("failed to read timestamps: %w", err)
	}
	return timestamps, nil
}

func (c *Coordinator) handleWriteFailure(mode string, timestamps []time.Time, err error) error {
	if store.IsConnectionError(err) {
		c.logger.Error("store connection problem during write, requeueing",
			"mode", mode,
			"count", len(timestamps),
			"error", err,
		)
		c.queue.ReturnToHead(timestamps)
		c.breaker.MarkUnavailable()
		return nil
	}

	c.logger.Error("unexpected store error during write, dropping entries",
		"mode", mode,
		"count", len(timestamps),
		"error", err,
	)
	return fmt.Errorf("%w: %w", ErrWriteFailed, err)
}

func (c *Coordinator) recordWrite(ctx context.Context, mode string, n int, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	modeAttr := attribute.String("mode", mode)

	if err != nil {
		class := "other"
		if store.IsConnectionError(err) {
			class = "connection"
		}
		c.metrics.StoreWriteErrors.Add(ctx, 1, otelmetric.WithAttributes(
			modeAttr, attribute.String("class", class),
		))
		return
	}

	attrs := otelmetric.WithAttributes(modeAttr)
	c.metrics.StoreWrites.Add(ctx, 1, attrs)
	c.metrics.StoreBatchSize.Record(ctx, int64(n), attrs)
	c.metrics.StoreWriteLatency.Record(ctx, observability.Millis(time.Since(start)), attrs)
}
