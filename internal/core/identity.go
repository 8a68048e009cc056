package core

import (
	"strconv"
	"sync/atomic"
)

// Identity is the process-unique number assigned to an accepted connection.
type Identity int64

// DisplayName derives the public name from the identity.
func (id Identity) DisplayName() string {
	return "User" + strconv.FormatInt(int64(id), 10)
}

// Allocator hands out identities starting at 1. The zero value is ready to use.
type Allocator struct {
	last atomic.Int64
}

// Next returns a fresh identity. It never returns the same value twice.
func (a *Allocator) Next() Identity {
	return Identity(a.last.Add(1))
}
