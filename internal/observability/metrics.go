package observability

import (
	"context"
	"time"

	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments used across the timebuffer service.
// Instruments are created once at startup and shared with the queue, the
// writer, the availability monitor and the HTTP middleware.
type Metrics struct {
	meter otelmetric.Meter

	// HTTP metrics
	HTTPRequestDuration otelmetric.Float64Histogram
	HTTPRequestTotal    otelmetric.Int64Counter
	HTTPRequestErrors   otelmetric.Int64Counter

	// Queue metrics
	QueueOffered  otelmetric.Int64Counter
	QueueDropped  otelmetric.Int64Counter
	QueueRequeued otelmetric.Int64Counter

	// Store write metrics
	StoreWrites       otelmetric.Int64Counter
	StoreWriteErrors  otelmetric.Int64Counter
	StoreWriteLatency otelmetric.Float64Histogram
	StoreBatchSize    otelmetric.Int64Histogram

	// Availability metrics
	AvailabilityTransitions otelmetric.Int64Counter
	ProbeRuns               otelmetric.Int64Counter
	ProbeFailures           otelmetric.Int64Counter

	// Ingest metrics
	IngestMessages otelmetric.Int64Counter
	IngestRejected otelmetric.Int64Counter
}

// NewMetrics creates all metric instruments from the given Meter.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	m := Metrics{meter: meter}
	var err error

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.request.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestTotal, err = meter.Int64Counter(
		"http.request.total",
		otelmetric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestErrors, err = meter.Int64Counter(
		"http.request.errors",
		otelmetric.WithDescription("HTTP request errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, err
	}

	// Queue metrics
	m.QueueOffered, err = meter.Int64Counter(
		"queue.offered",
		otelmetric.WithDescription("Timestamps accepted into the buffer"),
	)
	if err != nil {
		return nil, err
	}

	m.QueueDropped, err = meter.Int64Counter(
		"queue.dropped",
		otelmetric.WithDescription("Timestamps discarded because the buffer was full"),
	)
	if err != nil {
		return nil, err
	}

	m.QueueRequeued, err = meter.Int64Counter(
		"queue.requeued",
		otelmetric.WithDescription("Timestamps returned to the head of the buffer after a failed write"),
	)
	if err != nil {
		return nil, err
	}

	// Store write metrics
	m.StoreWrites, err = meter.Int64Counter(
		"store.writes",
		otelmetric.WithDescription("Successful store write calls"),
	)
	if err != nil {
		return nil, err
	}

	m.StoreWriteErrors, err = meter.Int64Counter(
		"store.write.errors",
		otelmetric.WithDescription("Failed store calls by failure class"),
	)
	if err != nil {
		return nil, err
	}

	m.StoreWriteLatency, err = meter.Float64Histogram(
		"store.write.latency",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Store write latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.StoreBatchSize, err = meter.Int64Histogram(
		"store.batch.size",
		otelmetric.WithDescription("Number of timestamps per store write"),
	)
	if err != nil {
		return nil, err
	}

	// Availability metrics
	m.AvailabilityTransitions, err = meter.Int64Counter(
		"store.availability.transitions",
		otelmetric.WithDescription("Store availability state changes"),
	)
	if err != nil {
		return nil, err
	}

	m.ProbeRuns, err = meter.Int64Counter(
		"store.probe.runs",
		otelmetric.WithDescription("Liveness probes issued while the store was unavailable"),
	)
	if err != nil {
		return nil, err
	}

	m.ProbeFailures, err = meter.Int64Counter(
		"store.probe.failures",
		otelmetric.WithDescription("Liveness probes that failed"),
	)
	if err != nil {
		return nil, err
	}

	// Ingest metrics
	m.IngestMessages, err = meter.Int64Counter(
		"ingest.messages",
		otelmetric.WithDescription("Timestamps received from producers"),
	)
	if err != nil {
		return nil, err
	}

	m.IngestRejected, err = meter.Int64Counter(
		"ingest.rejected",
		otelmetric.WithDescription("Producer messages that could not be decoded"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// ObserveGauge registers an asynchronous gauge whose value is read from fn
// at every collection. Used for values owned elsewhere, like queue depth.
func (m *Metrics) ObserveGauge(name, description string, fn func() int64) error {
	_, err := m.meter.Int64ObservableGauge(
		name,
		otelmetric.WithDescription(description),
		otelmetric.WithInt64Callback(func(_ context.Context, o otelmetric.Int64Observer) error {
			o.Observe(fn())
			return nil
		}),
	)
	return err
}

// Millis converts d to fractional milliseconds for the latency histograms.
func Millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
