package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeConn is an in-memory Conn. Tests push inbound payloads with send and
// observe what the server wrote on out.
type fakeConn struct {
	in  chan []byte
	out chan []byte

	closed     chan struct{}
	closeOnce  sync.Once
	closeCalls atomic.Int32
	closeCause atomic.Value

	failWrites  atomic.Bool
	blockWrites atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 128),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case p := <-c.in:
		return p, nil
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, payload []byte) error {
	if c.failWrites.Load() {
		return errBrokenPipe
	}
	if c.blockWrites.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case c.out <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close(cause error) error {
	c.closeCalls.Add(1)
	c.closeOnce.Do(func() {
		if cause != nil {
			c.closeCause.Store(cause)
		}
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) send(t *testing.T, payload string) {
	t.Helper()
	select {
	case c.in <- []byte(payload):
	case <-time.After(time.Second):
		t.Fatal("inbound buffer full")
	}
}

// hangUp simulates the peer going away.
func (c *fakeConn) hangUp() {
	_ = c.Close(nil)
}

// nextEvent returns the next event written to the connection.
func nextEvent(t *testing.T, c *fakeConn) proto.Event {
	t.Helper()
	select {
	case payload := <-c.out:
		ev, err := proto.DecodeEvent(payload)
		if err != nil {
			t.Fatalf("decode outbound %s: %v", payload, err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

// mustEvent skips events until one with the given tag arrives.
func mustEvent(t *testing.T, c *fakeConn, tag string) proto.Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload := <-c.out:
			ev, err := proto.DecodeEvent(payload)
			if err != nil {
				t.Fatalf("decode outbound %s: %v", payload, err)
			}
			if ev.EventType() == tag {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event %q not received", tag)
			return nil
		}
	}
}

// expectQuiet fails if anything is written to c within d.
func expectQuiet(t *testing.T, c *fakeConn, d time.Duration) {
	t.Helper()
	select {
	case payload := <-c.out:
		t.Fatalf("unexpected event: %s", payload)
	case <-time.After(d):
	}
}

// drainQueue decodes everything waiting in a member's outbound queue.
func drainQueue(t *testing.T, m *Member) []proto.Event {
	t.Helper()
	var events []proto.Event
	for {
		select {
		case payload := <-m.queue:
			ev, err := proto.DecodeEvent(payload)
			if err != nil {
				t.Fatalf("decode queued %s: %v", payload, err)
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func countType(events []proto.Event, tag string) int {
	n := 0
	for _, ev := range events {
		if ev.EventType() == tag {
			n++
		}
	}
	return n
}

// serve runs a session for conn in the background and reports how it ended.
func serve(t *testing.T, ctx context.Context, hub *Hub, conn *fakeConn) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- hub.Serve(ctx, conn)
	}()
	return done
}

func userIDs(users []proto.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
