package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/SebastienMelki/timebuffer/internal/observability"
)

// Source subscribes message handlers to a subject.
type Source interface {
	QueueSubscribe(subject, queue string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// recorder decodes broker payloads and offers them to the buffer.
type recorder struct {
	origin  string
	offerer Offerer
	metrics *observability.Metrics
	logger  *slog.Logger
}

func (r *recorder) record(topic string, data []byte) {
	ctx := context.Background()
	sourceAttr := attribute.String("source", r.origin)

	ts, err := Decode(data)
	if err != nil {
		r.logger.Warn("rejecting message", "topic", topic, "error", err)
		if r.metrics != nil {
			r.metrics.IngestRejected.Add(ctx, 1, otelmetric.WithAttributes(sourceAttr))
		}
		return
	}

	r.offer(ts)
}

// offer hands ts to the buffer and counts the outcome.
func (r *recorder) offer(ts time.Time) bool {
	accepted := r.offerer.Offer(ts)

	if r.metrics != nil {
		r.metrics.IngestMessages.Add(context.Background(), 1, otelmetric.WithAttributes(
			attribute.String("source", r.origin), attribute.Bool("accepted", accepted),
		))
	}
	return accepted
}

// Subscriber offers every timestamp published on a NATS subject.
type Subscriber struct {
	recorder

	source  Source
	subject string
	queue   string
	logger  *slog.Logger

	sub *nats.Subscription
}

// NewSubscriber creates a NATS timestamp subscriber.
func NewSubscriber(
	source Source,
	offerer Offerer,
	cfg Config,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nats-subscriber")

	return &Subscriber{
		recorder: recorder{origin: "nats", offerer: offerer, metrics: metrics, logger: logger},
		source:   source,
		subject:  cfg.Subject,
		queue:    cfg.QueueGroup,
		logger:   logger,
	}
}

// Start subscribes to the configured subject.
func (s *Subscriber) Start(_ context.Context) error {
	if s.sub != nil {
		return ErrAlreadyStarted
	}

	sub, err := s.source.QueueSubscribe(s.subject, s.queue, s.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub

	s.logger.Info("subscribed to timestamps", "subject", s.subject, "queue_group", s.queue)
	return nil
}

// Stop drains the subscription so in-flight messages are still offered.
func (s *Subscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	if err := s.sub.Drain(); err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}
	return nil
}

func (s *Subscriber) handle(msg *nats.Msg) {
	s.record(msg.Subject, msg.Data)
}

// Decode parses a message payload. RFC 3339 text is tried first since a
// binary Timestamp never parses as one; anything else must be a valid
// protobuf google.protobuf.Timestamp.
func Decode(data []byte) (time.Time, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return time.Time{}, ErrEmptyPayload
	}

	if ts, err := time.Parse(time.RFC3339Nano, string(trimmed)); err == nil {
		return ts, nil
	}

	var pb timestamppb.Timestamp
	if err := proto.Unmarshal(data, &pb); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if len(pb.ProtoReflect().GetUnknown()) > 0 {
		return time.Time{}, fmt.Errorf("%w: unknown fields", ErrInvalidPayload)
	}
	if err := pb.CheckValid(); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return pb.AsTime(), nil
}
