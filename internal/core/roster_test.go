package core

import (
	"context"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

// gateTracer parks the first broadcast of the given event type until released.
type gateTracer struct {
	trace.Tracer

	tag     string
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGateTracer(tag string) *gateTracer {
	g := &gateTracer{
		Tracer:  noop.NewTracerProvider().Tracer("test"),
		tag:     tag,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	g.armed.Store(true)
	return g
}

func (g *gateTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	for _, kv := range cfg.Attributes() {
		if kv.Key == "relay.event_type" && kv.Value.AsString() == g.tag && g.armed.CompareAndSwap(true, false) {
			close(g.entered)
			<-g.release
		}
	}
	return g.Tracer.Start(ctx, name, opts...)
}

func TestRosterReflectsLeaveDuringJoin(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub(DefaultOptions())

	observer := hub.NewSession(newFakeConn())
	if err := observer.Open(ctx); err != nil {
		t.Fatalf("open observer: %v", err)
	}
	leaver := hub.NewSession(newFakeConn())
	if err := leaver.Open(ctx); err != nil {
		t.Fatalf("open leaver: %v", err)
	}
	drainQueue(t, observer.Member())

	gate := newGateTracer(proto.TypeUserList)
	hub.broadcaster.tracer = gate

	joined := make(chan error, 1)
	go func() {
		joined <- hub.NewSession(newFakeConn()).Open(ctx)
	}()

	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("join never reached the roster broadcast")
	}
	leaver.Close(ctx, nil)
	close(gate.release)

	select {
	case err := <-joined:
		if err != nil {
			t.Fatalf("open joiner: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("join did not finish")
	}

	events := drainQueue(t, observer.Member())
	tags := make([]string, 0, len(events))
	for _, ev := range events {
		tags = append(tags, ev.EventType())
	}
	want := []string{proto.TypeNewUser, proto.TypeUserDisconnected, proto.TypeUserList}
	if !slices.Equal(tags, want) {
		t.Fatalf("unexpected event order %v", tags)
	}

	roster := events[2].(proto.RosterSnapshot)
	if got := userIDs(roster.Users); !slices.Equal(got, []int64{1, 3}) {
		t.Fatalf("roster lists departed member: %v", got)
	}
	if got := userIDs(hub.Roster()); !slices.Equal(got, userIDs(roster.Users)) {
		t.Fatalf("roster %v does not match registry %v", userIDs(roster.Users), got)
	}
}

func TestBroadcastRosterMatchesRecipients(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, nil, nil)
	members := admitN(reg, 3, 8)
	reg.Remove(members[1].ID)

	delivered, err := b.BroadcastRoster(t.Context())
	if err != nil {
		t.Fatalf("broadcast roster: %v", err)
	}
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
	for _, m := range []*Member{members[0], members[2]} {
		events := drainQueue(t, m)
		if len(events) != 1 {
			t.Fatalf("member %d got %d events", m.ID, len(events))
		}
		if got := userIDs(events[0].(proto.RosterSnapshot).Users); !slices.Equal(got, []int64{1, 3}) {
			t.Fatalf("unexpected roster %v", got)
		}
	}
	if len(drainQueue(t, members[1])) != 0 {
		t.Fatal("removed member received the roster")
	}
}
