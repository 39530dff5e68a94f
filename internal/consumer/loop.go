package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SebastienMelki/timebuffer/internal/store"
)

// Buffer is the drain side of the timestamp buffer.
type Buffer interface {
	Size() int
	DrainUpTo(n int) []time.Time
}

// Writer persists drained timestamps.
type Writer interface {
	WriteOne(ctx context.Context, ts time.Time) error
	WriteBatch(ctx context.Context, timestamps []time.Time) error
}

// Availability reports whether the store is believed reachable.
type Availability interface {
	IsAvailable() bool
}

// Loop is the single background worker draining the buffer. Light load is
// written entry by entry for latency; once the buffer depth reaches
// BatchThreshold it switches to batched writes for throughput.
type Loop struct {
	buffer       Buffer
	writer       Writer
	availability Availability
	config       Config
	logger       *slog.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc
}

// New creates a new consumer loop.
func New(buffer Buffer, writer Writer, availability Availability, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	return &Loop{
		buffer:       buffer,
		writer:       writer,
		availability: availability,
		config:       cfg,
		logger:       logger.With("component", "consumer"),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start launches the worker goroutine. Writes run under a context derived
// from ctx that is also cancelled when Stop gives up waiting.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.logger.Info("starting consumer",
		"batch_threshold", l.config.BatchThreshold,
		"max_batch_size", l.config.MaxBatchSize,
		"empty_queue_sleep", l.config.EmptyQueueSleep,
		"db_unavailable_sleep", l.config.DBUnavailableSleep,
	)

	go l.run(runCtx)
	return nil
}

// Stop signals the worker and waits up to ShutdownTimeout for the current
// iteration to finish. After the grace period the in-flight write is
// cancelled and ErrShutdownTimeout is returned. The buffer is not flushed.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return nil
	}
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
	cancel := l.cancel
	l.mu.Unlock()

	l.logger.Info("stopping consumer")

	grace, graceCancel := context.WithTimeout(ctx, l.config.ShutdownTimeout)
	defer graceCancel()

	select {
	case <-l.doneCh:
		cancel()
		l.logger.Info("consumer stopped")
		return nil
	case <-grace.Done():
		cancel()
		l.logger.Warn("consumer did not stop in time, cancelling in-flight write",
			"timeout", l.config.ShutdownTimeout,
		)
		return ErrShutdownTimeout
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)
	l.logger.Debug("consumer loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		default:
		}

		if err := l.iterate(ctx); err != nil {
			l.logger.Error("error in consumer iteration", "error", err)

			// Connection failures were already requeued by the writer.
			if store.IsConnectionError(err) || !l.availability.IsAvailable() {
				l.sleep(ctx, l.config.DBUnavailableSleep)
			}
		}
	}
}

// iterate runs one step of the loop. Panics are converted to errors so the
// worker never dies.
func (l *Loop) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrIterationPanic, r)
		}
	}()

	if !l.availability.IsAvailable() {
		l.sleep(ctx, l.config.DBUnavailableSleep)
		return nil
	}

	size := l.buffer.Size()
	if size == 0 {
		l.sleep(ctx, l.config.EmptyQueueSleep)
		return nil
	}

	if size < l.config.BatchThreshold {
		one := l.buffer.DrainUpTo(1)
		if len(one) == 0 {
			return nil
		}
		if err := l.writer.WriteOne(ctx, one[0]); err != nil {
			return err
		}
		l.logger.Debug("wrote single timestamp", "timestamp", one[0])
		return nil
	}

	batch := l.buffer.DrainUpTo(l.config.MaxBatchSize)
	if len(batch) == 0 {
		return nil
	}
	if err := l.writer.WriteBatch(ctx, batch); err != nil {
		return err
	}
	l.logger.Debug("wrote batch of timestamps", "batch_size", len(batch), "queue_size", size)
	return nil
}

// sleep waits for d or until the loop is stopped.
func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-l.stopCh:
	}
}
