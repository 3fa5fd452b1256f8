// Package session tracks which chat identity each live connection carries
// and which connections are members of each room. The registry is the
// authority for "who is in room R right now" and for whether a connection
// still has teardown work pending.
package session

import (
	"errors"
	"sort"
	"sync"
)

// ErrAlreadyRegistered is returned by Register when the connection already
// carries an identity.
var ErrAlreadyRegistered = errors.New("session: connection already registered")

// Identity is the username and room bound to a connection by a successful
// join.
type Identity struct {
	Username string
	Room     string
}

// Registry maps connection IDs to identities and rooms to member
// connections. All operations are linearizable; the zero value is not
// usable, call NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]Identity
	rooms  map[string]map[string]struct{} // room -> set of connection IDs
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]Identity),
		rooms:  make(map[string]map[string]struct{}),
	}
}

// Register binds id to connID and adds connID to the room's member set.
func (r *Registry) Register(connID string, id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[connID]; ok {
		return ErrAlreadyRegistered
	}
	r.byConn[connID] = id

	members, ok := r.rooms[id.Room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[id.Room] = members
	}
	members[connID] = struct{}{}
	return nil
}

// Unregister removes connID and returns the identity it carried. The boolean
// is true for exactly one caller per registration, which makes it the guard
// for teardown.
func (r *Registry) Unregister(connID string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byConn[connID]
	if !ok {
		return Identity{}, false
	}
	delete(r.byConn, connID)

	if members, ok := r.rooms[id.Room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, id.Room)
		}
	}
	return id, true
}

// IdentityOf returns the identity bound to connID.
func (r *Registry) IdentityOf(connID string) (Identity, bool) {
	r.mu.RLock()
	id, ok := r.byConn[connID]
	r.mu.RUnlock()
	return id, ok
}

// MembersOf returns a snapshot of the connection IDs in room. The slice is
// owned by the caller and safe to iterate without holding any lock.
func (r *Registry) MembersOf(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]string, 0, len(members))
	for connID := range members {
		out = append(out, connID)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	n := len(r.byConn)
	r.mu.RUnlock()
	return n
}

// Rooms returns the names of rooms with at least one member, sorted.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	rooms := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	sort.Strings(rooms)
	return rooms
}

// Close drops every registration.
func (r *Registry) Close() {
	r.mu.Lock()
	r.byConn = make(map[string]Identity)
	r.rooms = make(map[string]map[string]struct{})
	r.mu.Unlock()
}
