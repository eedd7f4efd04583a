package ws

import "time"

// The snapshot gate is a per-room throttle on automatic persistence: at most
// one auto-save per interval per room. It is a throttle, not a debounce — the
// tail of a burst may go unpersisted, which is what the explicit snapshot
// message is for.

// ShouldAutoSave reports whether an automatic snapshot write may happen now,
// and on true records now as the room's last-save time before the caller
// persists. A room that has never been saved opens the gate immediately.
func (g *Registry) ShouldAutoSave(roomID string, now time.Time, interval time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.rooms[roomID]
	if st == nil {
		return false
	}
	if now.Sub(st.lastSave) < interval {
		return false
	}
	st.lastSave = now
	return true
}

// MarkSaved records an explicit save so the auto-save window restarts from
// now. Explicit saves bypass the gate but still reset its throttle.
func (g *Registry) MarkSaved(roomID string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st := g.rooms[roomID]; st != nil {
		st.lastSave = now
	}
}
