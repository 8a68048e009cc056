package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/metrics"
	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/utils"
)

// minSendQueue leaves room for the private greeting before the writer starts.
const minSendQueue = 4

// Options tune per-connection behaviour.
type Options struct {
	// SendQueueSize bounds the outbound queue of each member.
	SendQueueSize int
	// WriteTimeout bounds a single write to a peer.
	WriteTimeout time.Duration
	// StatusMessage is sent privately after the identity.
	StatusMessage string
	// LegacyPlainText relays non-JSON payloads as chat text.
	LegacyPlainText bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		SendQueueSize:   64,
		WriteTimeout:    10 * time.Second,
		StatusMessage:   "Connected to WebSocket server",
		LegacyPlainText: true,
	}
}

func (o Options) sanitized() Options {
	def := DefaultOptions()
	if o.SendQueueSize < minSendQueue {
		o.SendQueueSize = def.SendQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	return o
}

// Hub is the server context shared by every connection: it owns the registry and
// the broadcaster and tracks running sessions for shutdown.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	opts        Options
	log         *zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewHub creates a hub with an empty registry. logger and m may be nil.
func NewHub(opts Options, logger *zerolog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	reg := NewRegistry()
	return &Hub{
		registry:    reg,
		broadcaster: NewBroadcaster(reg, logger, m),
		opts:        opts.sanitized(),
		log:         logger,
		metrics:     m,
		now:         time.Now,
		sessions:    make(map[*Session]struct{}),
	}
}

// Registry exposes the membership registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Roster returns the current membership ordered by identity.
func (h *Hub) Roster() []proto.User { return h.registry.Snapshot() }

// NewSession wraps conn in a session in the Connecting state.
func (h *Hub) NewSession(conn Conn) *Session {
	return &Session{
		hub:  h,
		conn: conn,
		log:  h.log.With().Str("conn_id", utils.NewID()).Logger(),
	}
}

// Serve runs conn as a session until it closes. It is the entry point used by transports.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	s := h.NewSession(conn)
	if err := h.track(s); err != nil {
		s.Close(ctx, err)
		return err
	}
	defer h.untrack(s)

	return s.Serve(ctx)
}

// Shutdown closes every running session with ErrHubClosed and rejects new ones.
// It waits for session goroutines to finish or for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	h.log.Info().Int("sessions", len(sessions)).Msg("closing sessions")
	for _, s := range sessions {
		go s.Close(context.WithoutCancel(ctx), ErrHubClosed)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) track(s *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.sessions[s] = struct{}{}
	h.wg.Add(1)
	return nil
}

func (h *Hub) untrack(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	h.wg.Done()
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// greet queues the private identity and status events on a member that is not yet visible.
func (h *Hub) greet(m *Member) {
	events := []proto.Event{
		proto.IdentityAssigned{UserID: int64(m.ID)},
		proto.Status{Message: h.opts.StatusMessage},
	}
	for _, ev := range events {
		payload, err := proto.Encode(ev)
		if err != nil {
			h.log.Error().Err(err).Str("event", ev.EventType()).Msg("encode greeting")
			continue
		}
		if err := m.enqueue(payload); err != nil {
			h.log.Warn().Err(err).Str("event", ev.EventType()).Msg("queue greeting")
		}
	}
}
