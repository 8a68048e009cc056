package core

import (
	"maps"
	"slices"
	"sync"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

// Registry is the authoritative set of live members, keyed by identity.
type Registry struct {
	mu      sync.RWMutex
	alloc   Allocator
	members map[Identity]*Member
}

// NewRegistry creates an empty registry whose first identity will be 1.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[Identity]*Member),
	}
}

// Admit allocates an identity for conn, builds its member and inserts it as one atomic step.
// greet runs before the member becomes visible, so anything it queues precedes every broadcast.
func (r *Registry) Admit(conn Conn, queueSize int, greet func(*Member)) *Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := newMember(r.alloc.Next(), conn, queueSize)
	if greet != nil {
		greet(m)
	}
	r.insertLocked(m)
	return m
}

// Insert adds m. It panics with *DuplicateIdentityError if the identity is taken.
func (r *Registry) Insert(m *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(m)
}

func (r *Registry) insertLocked(m *Member) {
	if _, exists := r.members[m.ID]; exists {
		panic(&DuplicateIdentityError{ID: m.ID})
	}
	r.members[m.ID] = m
}

// Remove deletes the member with the given identity. Removing an absent identity is a no-op.
func (r *Registry) Remove(id Identity) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		return nil, false
	}
	delete(r.members, id)
	return m, true
}

// Contains reports whether id is currently registered.
func (r *Registry) Contains(id Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// Len returns the number of members.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Snapshot returns the public view of every member in ascending identity order.
func (r *Registry) Snapshot() []proto.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]proto.User, 0, len(r.members))
	for _, id := range slices.Sorted(maps.Keys(r.members)) {
		users = append(users, r.members[id].Info())
	}
	return users
}

// fanOut calls fn for every member in ascending identity order while holding the
// write lock, so no insert, remove or other fan-out can interleave with it.
func (r *Registry) fanOut(fn func(*Member)) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range slices.Sorted(maps.Keys(r.members)) {
		fn(r.members[id])
	}
	return len(r.members)
}

// fanOutRoster encodes the current membership and hands the payload to every member
// under one write lock, so the roster always names exactly the members it reaches.
func (r *Registry) fanOutRoster(encode func([]proto.User) ([]byte, error), fn func(*Member, []byte)) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := slices.Sorted(maps.Keys(r.members))
	users := make([]proto.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, r.members[id].Info())
	}

	payload, err := encode(users)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		fn(r.members[id], payload)
	}
	return len(ids), nil
}
