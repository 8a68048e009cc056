package core

import (
	"context"
	"sync"
	"time"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

// Conn is a bidirectional message channel to one peer.
type Conn interface {
	// Read blocks until the next complete payload arrives.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one complete payload.
	Write(ctx context.Context, payload []byte) error
	// Close terminates the channel; cause is nil for a clean close.
	Close(cause error) error
}

// Member is a registry entry. ID and Name never change after construction.
type Member struct {
	ID   Identity
	Name string

	conn  Conn
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func newMember(id Identity, conn Conn, queueSize int) *Member {
	return &Member{
		ID:    id,
		Name:  id.DisplayName(),
		conn:  conn,
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

// Info returns the public fields of the member.
func (m *Member) Info() proto.User {
	return proto.User{ID: int64(m.ID), Name: m.Name}
}

// enqueue hands a payload to the writer without blocking.
func (m *Member) enqueue(payload []byte) error {
	select {
	case <-m.done:
		return ErrMemberClosed
	default:
	}

	select {
	case m.queue <- payload:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// stop makes the writer exit and rejects further enqueues. Safe to call repeatedly.
func (m *Member) stop() {
	m.once.Do(func() { close(m.done) })
}

// writeLoop drains the queue to the connection. Each write is bounded by timeout.
func (m *Member) writeLoop(ctx context.Context, timeout time.Duration) error {
	for {
		select {
		case payload := <-m.queue:
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := m.conn.Write(wctx, payload)
			cancel()
			if err != nil {
				return err
			}
		case <-m.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
