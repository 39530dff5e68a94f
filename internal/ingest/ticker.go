package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SebastienMelki/timebuffer/internal/observability"
)

// Offerer accepts timestamps into the buffer. It never blocks.
type Offerer interface {
	Offer(ts time.Time) bool
}

// Ticker offers the current wall-clock time on a fixed interval.
type Ticker struct {
	recorder

	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewTicker creates a ticker producer.
func NewTicker(offerer Offerer, interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Ticker {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ticker")

	return &Ticker{
		recorder: recorder{origin: "ticker", offerer: offerer, metrics: metrics, logger: logger},
		interval: interval,
		now:      time.Now,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins offering timestamps until ctx is cancelled or Stop is called.
func (t *Ticker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	t.logger.Info("starting ticker", "interval", t.interval)
	go t.run(ctx)
	return nil
}

// Stop halts the ticker and waits for it to exit.
func (t *Ticker) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
	t.mu.Unlock()

	select {
	case <-t.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Ticker) run(ctx context.Context) {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			if !t.offer(t.now()) {
				t.logger.Debug("buffer full, tick dropped")
			}
		}
	}
}
