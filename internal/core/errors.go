package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSendQueueFull means a recipient's outbound queue had no room for a broadcast.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrMemberClosed means the recipient's writer has already stopped.
	ErrMemberClosed = errors.New("member closed")
	// ErrHubClosed is returned for connections arriving after shutdown began,
	// and is the close cause for sessions terminated by shutdown.
	ErrHubClosed = errors.New("hub closed")
	// ErrInvalidTransition is returned when a session is opened twice or after close.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// DuplicateIdentityError is the panic value raised when an identity is inserted twice.
// Identities are allocated monotonically, so reaching it means a bug.
type DuplicateIdentityError struct {
	ID Identity
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("identity %d already registered", e.ID)
}
