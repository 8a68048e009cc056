package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

// State is the lifecycle position of a session.
type State int32

const (
	// StateConnecting is the state before the member is admitted.
	StateConnecting State = iota
	// StateActive means the member is in the registry and its payloads are relayed.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one connection through Connecting, Active and Closed.
type Session struct {
	hub  *Hub
	conn Conn

	mu     sync.Mutex
	state  State
	member *Member
	cancel context.CancelFunc
	log    zerolog.Logger
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Member returns the registry entry, or nil before Open succeeded.
func (s *Session) Member() *Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.member
}

// Open admits the connection: identity, private greeting, then the join and roster broadcasts.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return ErrInvalidTransition
	}
	if s.hub.isClosed() {
		return ErrHubClosed
	}

	m := s.hub.registry.Admit(s.conn, s.hub.opts.SendQueueSize, s.hub.greet)
	s.member = m
	s.state = StateActive
	s.log = s.log.With().Int64("user_id", int64(m.ID)).Logger()
	s.hub.metrics.MemberJoined()

	if _, err := s.hub.broadcaster.Broadcast(ctx, proto.MemberJoined{User: m.Info()}); err != nil {
		s.log.Error().Err(err).Msg("broadcast join")
	}
	if _, err := s.hub.broadcaster.BroadcastRoster(ctx); err != nil {
		s.log.Error().Err(err).Msg("broadcast roster")
	}

	s.log.Info().Str("name", m.Name).Msg("member joined")
	return nil
}

// Handle relays one inbound payload. Payloads that do not decode are dropped and the
// decode error is returned for the caller's information only; the session stays Active.
// Outside Active it does nothing.
func (s *Session) Handle(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return nil
	}

	req, err := proto.DecodeInbound(payload, s.hub.opts.LegacyPlainText)
	if err != nil {
		s.hub.metrics.DecodeFailed()
		s.log.Debug().Err(err).Int("bytes", len(payload)).Msg("drop inbound payload")
		return err
	}

	s.hub.metrics.ChatRelayed(req.Legacy)
	msg := proto.ChatMessage{
		Message:   req.Content,
		UserID:    int64(s.member.ID),
		Timestamp: s.hub.now().UnixMilli(),
	}
	if _, err := s.hub.broadcaster.Broadcast(ctx, msg); err != nil {
		s.log.Error().Err(err).Msg("broadcast message")
	}
	return nil
}

// Close moves the session to Closed. Only the first call has an effect; it reports
// whether this call performed the transition. A session closed before Open completed
// leaves the registry untouched and announces nothing.
func (s *Session) Close(ctx context.Context, cause error) bool {
	s.mu.Lock()
	prev := s.state
	if prev == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosed
	m := s.member
	cancel := s.cancel
	if prev == StateActive {
		s.hub.registry.Remove(m.ID)
		m.stop()
		s.hub.metrics.MemberLeft()
	}
	s.mu.Unlock()

	if prev == StateActive {
		if _, err := s.hub.broadcaster.Broadcast(ctx, proto.MemberLeft{UserID: int64(m.ID)}); err != nil {
			s.log.Error().Err(err).Msg("broadcast leave")
		}
		s.log.Info().AnErr("cause", cause).Msg("member left")
	}

	if err := s.conn.Close(cause); err != nil {
		s.log.Debug().Err(err).Msg("close connection")
	}
	if cancel != nil {
		cancel()
	}
	return true
}

// Serve runs the session until the connection ends or ctx is cancelled.
// It returns the error that ended the connection.
func (s *Session) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.Open(ctx); err != nil {
		s.Close(context.WithoutCancel(ctx), err)
		return err
	}
	m := s.Member()

	errCh := make(chan error, 2)
	go func() {
		errCh <- m.writeLoop(ctx, s.hub.opts.WriteTimeout)
	}()
	go func() {
		errCh <- s.readLoop(ctx)
	}()

	err := <-errCh
	s.Close(context.WithoutCancel(ctx), err)
	<-errCh

	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		payload, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		_ = s.Handle(ctx, payload)
	}
}
