// Package queue provides the bounded in-memory timestamp buffer that sits
// between producers and the store writer.
//
// The buffer never blocks: offers beyond capacity are dropped, drains return
// whatever is available, and a failed write can be undone by returning the
// drained entries to the head.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/SebastienMelki/timebuffer/internal/observability"
)

// Config holds buffer configuration.
type Config struct {
	// MaxBufferSize is the hard capacity of the buffer
	MaxBufferSize int `env:"MAX_BUFFER_SIZE" envDefault:"100000"`
}

// Validate checks the buffer configuration.
func (c Config) Validate() error {
	if c.MaxBufferSize <= 0 {
		return ErrInvalidCapacity
	}
	return nil
}

// Queue is a thread-safe bounded FIFO of timestamps backed by a ring buffer.
type Queue struct {
	logger  *slog.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	buf   []time.Time
	head  int
	count int
}

// New creates an empty queue holding at most capacity entries.
// capacity must be > 0; if not, it defaults to 1.
func New(capacity int, metrics *observability.Metrics, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		logger:  logger.With("component", "queue"),
		metrics: metrics,
		buf:     make([]time.Time, capacity),
	}
}

// Offer appends ts to the tail. When the buffer is full the entry is
// discarded, a warning is logged and false is returned.
func (q *Queue) Offer(ts time.Time) bool {
	q.mu.Lock()
	if q.count >= len(q.buf) {
		q.mu.Unlock()
		q.logger.Warn("buffer is full, dropping entry",
			"max_buffer_size", len(q.buf),
			"timestamp", ts,
		)
		q.recordDropped(1, "full")
		return false
	}
	q.buf[(q.head+q.count)%len(q.buf)] = ts
	q.count++
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.QueueOffered.Add(context.Background(), 1)
	}
	return true
}

// DrainUpTo removes and returns up to n entries from the head in FIFO order.
// The result is empty (never nil) when the buffer is empty or n <= 0.
func (q *Queue) DrainUpTo(n int) []time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > q.count {
		n = q.count
	}
	if n <= 0 {
		return []time.Time{}
	}

	out := make([]time.Time, n)
	for i := range out {
		out[i] = q.buf[q.head]
		q.buf[q.head] = time.Time{}
		q.head = (q.head + 1) % len(q.buf)
	}
	q.count -= n
	return out
}

// ReturnToHead reinserts previously drained entries at the head, keeping
// their relative order: entries[0] becomes the new head.
//
// Producers may have refilled the buffer since the drain. When the prepend
// would exceed capacity the newest entries at the tail are evicted instead,
// so returned entries always win over newer ones.
func (q *Queue) ReturnToHead(entries []time.Time) {
	if len(entries) == 0 {
		return
	}

	q.mu.Lock()
	evicted := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if q.count == len(q.buf) {
			q.count--
			q.buf[(q.head+q.count)%len(q.buf)] = time.Time{}
			evicted++
		}
		q.head = (q.head - 1 + len(q.buf)) % len(q.buf)
		q.buf[q.head] = entries[i]
		q.count++
	}
	size := q.count
	q.mu.Unlock()

	q.logger.Debug("returned entries to the head of the buffer",
		"count", len(entries),
		"queue_size", size,
	)
	if q.metrics != nil {
		q.metrics.QueueRequeued.Add(context.Background(), int64(len(entries)))
	}
	if evicted > 0 {
		q.logger.Warn("buffer overflow while requeueing, evicted newest entries",
			"evicted", evicted,
			"max_buffer_size", len(q.buf),
		)
		q.recordDropped(evicted, "requeue_overflow")
	}
}

// Size returns the current number of buffered entries. The value is a
// snapshot and may be stale as soon as it is returned.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Capacity returns the maximum number of entries the buffer holds.
func (q *Queue) Capacity() int {
	return len(q.buf)
}

func (q *Queue) recordDropped(n int, reason string) {
	if q.metrics == nil {
		return
	}
	q.metrics.QueueDropped.Add(context.Background(), int64(n),
		otelmetric.WithAttributes(attribute.String("reason", reason)),
	)
}
