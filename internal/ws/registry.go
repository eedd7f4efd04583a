package ws

import (
	"sync"
	"time"
)

// Sender delivers one encoded frame to a client without blocking. A non-nil
// error marks the connection dead; the relay prunes it from its room.
type Sender interface {
	Send(frame []byte) error
}

// roomState consolidates everything the server tracks for one active room:
// the connection set, the auto-save throttle, and whether the store has been
// asked to materialize the room record this process lifetime.
type roomState struct {
	conns    map[Sender]struct{}
	lastSave time.Time
	ensured  bool
}

// Registry tracks which live connections belong to which room. Rooms exist
// implicitly: the entry is created on first Join and deleted as soon as the
// connection set empties, so an absent key always means an empty room.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*roomState
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*roomState)}
}

// Join adds c to the room, creating the entry if needed, and returns the new
// member count. Joining twice with the same connection is idempotent.
func (g *Registry) Join(roomID string, c Sender) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.rooms[roomID]
	if st == nil {
		st = &roomState{conns: make(map[Sender]struct{})}
		g.rooms[roomID] = st
	}
	st.conns[c] = struct{}{}
	return len(st.conns)
}

// Leave removes c from the room and returns the remaining member count.
// The room entry is deleted when its set empties. Leaving an unknown room or
// a connection that was never joined is a no-op returning 0.
func (g *Registry) Leave(roomID string, c Sender) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.rooms[roomID]
	if st == nil {
		return 0
	}
	delete(st.conns, c)
	if len(st.conns) == 0 {
		delete(g.rooms, roomID)
		return 0
	}
	return len(st.conns)
}

// Rooms returns the number of rooms with at least one connection.
func (g *Registry) Rooms() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Count returns the current member count, 0 for unknown rooms.
func (g *Registry) Count(roomID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st := g.rooms[roomID]; st != nil {
		return len(st.conns)
	}
	return 0
}

// Members returns a snapshot of the room's connections minus exclude. The
// caller sends outside the registry lock so one slow connection never blocks
// joins and leaves on the room.
func (g *Registry) Members(roomID string, exclude Sender) []Sender {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.rooms[roomID]
	if st == nil {
		return nil
	}
	out := make([]Sender, 0, len(st.conns))
	for c := range st.conns {
		if c == exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Drop removes a batch of dead connections from a room, deleting the room
// entry if the set empties.
func (g *Registry) Drop(roomID string, dead []Sender) {
	if len(dead) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.rooms[roomID]
	if st == nil {
		return
	}
	for _, c := range dead {
		delete(st.conns, c)
	}
	if len(st.conns) == 0 {
		delete(g.rooms, roomID)
	}
}

// EnsureOnce reports whether this is the first time the room has been seen
// this process lifetime, flipping the flag so subsequent calls return false.
// The caller uses a true result to trigger the idempotent store upsert.
func (g *Registry) EnsureOnce(roomID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.rooms[roomID]
	if st == nil || st.ensured {
		return false
	}
	st.ensured = true
	return true
}
