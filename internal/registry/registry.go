// Package registry tracks live relay connections and the room each one
// belongs to.
//
// A Registry keeps three views under a single mutex: the active connection
// handles, the member set of every room, and the room of every connection.
// Every mutating call leaves them consistent with one another: a connection
// is in room r's member set exactly when its membership entry is r.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrDuplicateConnection is returned by Register for an ID that is already live.
	ErrDuplicateConnection = errors.New("registry: connection already registered")
	// ErrUnknownConnection is returned by Join for an ID that is not registered.
	ErrUnknownConnection = errors.New("registry: connection not registered")
	// ErrEmptyConnectionID is returned by Register for a handle without an ID.
	ErrEmptyConnectionID = errors.New("registry: empty connection id")
)

// Connection is a live transport handle. The registry only stores the
// reference; closing the transport is the owner's job.
type Connection interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

type memberSet map[string]struct{}

// Registry holds connections and room memberships.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]Connection
	rooms      map[string]memberSet
	membership map[string]string
}

// New creates a Registry with the given rooms declared up front. Rooms that
// are not declared are created on first join.
func New(rooms ...string) *Registry {
	r := &Registry{
		conns:      make(map[string]Connection),
		rooms:      make(map[string]memberSet, len(rooms)),
		membership: make(map[string]string),
	}
	for _, name := range rooms {
		r.rooms[name] = make(memberSet)
	}
	return r
}

// Register adds a connection with no room membership.
func (r *Registry) Register(conn Connection) error {
	id := conn.ID()
	if id == "" {
		return ErrEmptyConnectionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateConnection, id)
	}
	r.conns[id] = conn
	return nil
}

// Unregister removes a connection and its membership. It reports the room the
// connection vacated ("" if it had none) and whether the ID was registered at
// all; unregistering an unknown ID is a no-op.
func (r *Registry) Unregister(id string) (room string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; !exists {
		return "", false
	}
	delete(r.conns, id)

	room, member := r.membership[id]
	if member {
		r.leaveLocked(id, room)
	}
	return room, true
}

// Join moves a connection into room, leaving its previous room first, and
// returns the room's members after the move.
func (r *Registry) Join(id, room string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}

	if current, member := r.membership[id]; member {
		if current == room {
			return r.membersLocked(room), nil
		}
		r.leaveLocked(id, current)
	}

	members, exists := r.rooms[room]
	if !exists {
		members = make(memberSet)
		r.rooms[room] = members
	}
	members[id] = struct{}{}
	r.membership[id] = room

	return r.membersLocked(room), nil
}

// leaveLocked drops id from room. Empty rooms are kept. Callers hold r.mu.
func (r *Registry) leaveLocked(id, room string) {
	if members, exists := r.rooms[room]; exists {
		delete(members, id)
	}
	delete(r.membership, id)
}

// membersLocked returns a sorted copy of room's members. Callers hold r.mu.
func (r *Registry) membersLocked(room string) []string {
	members := r.rooms[room]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MembersOf returns a snapshot of the IDs in room, sorted. Unknown rooms have
// no members.
func (r *Registry) MembersOf(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.membersLocked(room)
}

// Recipients returns the live handles of room's members, captured under the
// same lock as the membership snapshot.
func (r *Registry) Recipients(room string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	conns := make([]Connection, 0, len(members))
	for id := range members {
		if conn, ok := r.conns[id]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// RoomOf reports the room a connection currently belongs to.
func (r *Registry) RoomOf(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.membership[id]
	return room, ok
}

// Lookup returns the handle registered under id.
func (r *Registry) Lookup(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	return conn, ok
}

// ActiveConnectionIDs returns the IDs of every registered connection, sorted.
func (r *Registry) ActiveConnectionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Connections returns a snapshot of every registered handle.
func (r *Registry) Connections() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// Rooms returns the occupancy of every known room, including empty ones.
func (r *Registry) Rooms() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.rooms))
	for name, members := range r.rooms {
		out[name] = len(members)
	}
	return out
}
