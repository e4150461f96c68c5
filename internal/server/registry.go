// Package server tracks which live connections are subscribed to which room
// via the Registry type.
package server

import "sync"

// Registry is the in-memory mapping from room name to the set of currently
// subscribed connection handles. A single RWMutex guards the whole registry;
// fan-out iterates snapshots taken under the read lock, so the write lock is
// only held for map mutations.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[Handle]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[Handle]struct{})}
}

// Subscribe adds the handle to room's live set, creating the set if absent.
// Re-subscribing the same handle is a no-op (set semantics).
func (r *Registry) Subscribe(room string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[room]
	if !ok {
		set = make(map[Handle]struct{})
		r.rooms[room] = set
	}
	set[h] = struct{}{}
}

// Unsubscribe removes the handle from room's live set. When the set becomes
// empty the room entry is evicted; this is memory reclamation only, stored
// history is unaffected. Unknown rooms and absent handles are no-ops.
func (r *Registry) Unsubscribe(room string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(set, h)
	if len(set) == 0 {
		delete(r.rooms, room)
	}
}

// Snapshot returns a point-in-time copy of room's subscribers for iteration
// outside the lock, so a slow delivery never stalls registry mutations.
func (r *Registry) Snapshot(room string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.rooms[room]
	if len(set) == 0 {
		return nil
	}
	handles := make([]Handle, 0, len(set))
	for h := range set {
		handles = append(handles, h)
	}
	return handles
}

// Count returns the number of subscribers currently in room.
func (r *Registry) Count(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Drain removes every subscription and returns the distinct handles that
// were registered. Used during shutdown to close all live connections.
func (r *Registry) Drain() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[Handle]struct{})
	for _, set := range r.rooms {
		for h := range set {
			seen[h] = struct{}{}
		}
	}
	r.rooms = make(map[string]map[Handle]struct{})

	handles := make([]Handle, 0, len(seen))
	for h := range seen {
		handles = append(handles, h)
	}
	return handles
}
