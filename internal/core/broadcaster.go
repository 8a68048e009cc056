package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vovakirdan/wirerelay/internal/metrics"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

const tracerName = "github.com/vovakirdan/wirerelay/internal/core"

// Broadcaster fans events out to every registry member.
type Broadcaster struct {
	registry *Registry
	log      *zerolog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewBroadcaster builds a broadcaster over reg. m may be nil.
func NewBroadcaster(reg *Registry, logger *zerolog.Logger, m *metrics.Metrics) *Broadcaster {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Broadcaster{
		registry: reg,
		log:      logger,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
	}
}

// Broadcast encodes ev once and queues it for every current member in identity order.
// Recipients that cannot take the payload are skipped. It returns how many members
// accepted the event; the error is non-nil only if ev cannot be encoded.
func (b *Broadcaster) Broadcast(ctx context.Context, ev proto.Event) (int, error) {
	_, span := b.tracer.Start(ctx, "relay.broadcast",
		trace.WithAttributes(attribute.String("relay.event_type", eventType(ev))))
	defer span.End()

	payload, err := proto.Encode(ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return 0, err
	}

	var t tally
	recipients := b.registry.fanOut(func(m *Member) {
		b.deliver(&t, m, payload, ev.EventType())
	})
	b.finish(span, ev.EventType(), recipients, t)
	return t.delivered, nil
}

// BroadcastRoster sends the current membership to every member. The list is taken in
// the same critical section as the fan-out, so no join or leave can fall between them.
func (b *Broadcaster) BroadcastRoster(ctx context.Context) (int, error) {
	_, span := b.tracer.Start(ctx, "relay.broadcast",
		trace.WithAttributes(attribute.String("relay.event_type", proto.TypeUserList)))
	defer span.End()

	var t tally
	recipients, err := b.registry.fanOutRoster(
		func(users []proto.User) ([]byte, error) {
			return proto.Encode(proto.RosterSnapshot{Users: users})
		},
		func(m *Member, payload []byte) {
			b.deliver(&t, m, payload, proto.TypeUserList)
		},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return 0, err
	}
	b.finish(span, proto.TypeUserList, recipients, t)
	return t.delivered, nil
}

type tally struct {
	delivered int
	dropped   int
}

func (b *Broadcaster) deliver(t *tally, m *Member, payload []byte, tag string) {
	if err := m.enqueue(payload); err != nil {
		t.dropped++
		reason := metrics.ReasonQueueFull
		if errors.Is(err, ErrMemberClosed) {
			reason = metrics.ReasonClosed
		}
		b.metrics.DeliveryDropped(reason)
		b.log.Debug().Err(err).
			Int64("user_id", int64(m.ID)).
			Str("event", tag).
			Msg("skip recipient")
		return
	}
	t.delivered++
}

func (b *Broadcaster) finish(span trace.Span, tag string, recipients int, t tally) {
	b.metrics.Broadcast(tag)
	span.SetAttributes(
		attribute.Int("relay.recipients", recipients),
		attribute.Int("relay.dropped", t.dropped),
	)
}

func eventType(ev proto.Event) string {
	if ev == nil {
		return ""
	}
	return ev.EventType()
}
