package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alexli8408/CoWhiteboard/pkg/metrics"
)

const defaultRoomName = "Untitled Board"

// persistTimeout bounds each store call dispatched off the session loop.
const persistTimeout = 10 * time.Second

// SnapshotStore is the persistence collaborator the hub relies on. Failures
// are logged and never fatal to a session.
type SnapshotStore interface {
	// EnsureRoom upserts the room record; calling it repeatedly is harmless.
	EnsureRoom(ctx context.Context, roomID, name string) error
	// LatestSnapshot returns the newest snapshot blob, or nil when the room
	// has none.
	LatestSnapshot(ctx context.Context, roomID string) (json.RawMessage, error)
	// InsertSnapshot appends a snapshot for the room.
	InsertSnapshot(ctx context.Context, roomID string, data json.RawMessage) error
}

// Bus fans relayed frames out to other server instances. Optional.
type Bus interface {
	Publish(ctx context.Context, roomID string, frame []byte) error
	Subscribe(ctx context.Context, fn func(roomID string, frame []byte))
}

// clientConn is what a session needs from its transport. *Conn implements it;
// tests drive sessions with scripted fakes.
type clientConn interface {
	Sender
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Hub orchestrates sessions: it owns the registry, relays frames within a
// room, applies the snapshot throttle, and talks to the store and the
// cross-instance bus.
type Hub struct {
	log      *slog.Logger
	registry *Registry
	store    SnapshotStore
	bus      Bus // nil when running single-instance
	interval time.Duration
}

// NewHub sets up the hub. bus may be nil.
func NewHub(logger *slog.Logger, registry *Registry, store SnapshotStore, bus Bus, snapshotInterval time.Duration) *Hub {
	return &Hub{
		log:      logger,
		registry: registry,
		store:    store,
		bus:      bus,
		interval: snapshotInterval,
	}
}

// Registry exposes the hub's registry for live member-count queries.
func (h *Hub) Registry() *Registry { return h.registry }

// Run delivers bus traffic from other instances into local rooms until ctx
// is cancelled. Frames from the bus carry no local sender, so nothing is
// excluded.
func (h *Hub) Run(ctx context.Context) {
	if h.bus == nil {
		<-ctx.Done()
		return
	}
	go h.bus.Subscribe(ctx, func(roomID string, frame []byte) {
		h.Broadcast(roomID, frame, nil)
	})
	<-ctx.Done()
}

// Broadcast delivers one frame to every connection in the room except
// exclude. Delivery is best-effort per connection: failed sends are collected
// and the dead connections pruned from the room in one batch afterwards.
// Unknown rooms are a no-op.
func (h *Hub) Broadcast(roomID string, frame []byte, exclude Sender) {
	members := h.registry.Members(roomID, exclude)
	if len(members) == 0 {
		return
	}

	var dead []Sender
	for _, c := range members {
		if err := c.Send(frame); err != nil {
			dead = append(dead, c)
		}
	}
	if len(dead) > 0 {
		h.registry.Drop(roomID, dead)
		metrics.ConnectionsDropped.Add(float64(len(dead)))
		metrics.ActiveRooms.Set(float64(h.registry.Rooms()))
		h.log.Warn("pruned dead connections", "room", roomID, "count", len(dead))
	}
	metrics.BroadcastsTotal.Inc()
}

// ServeWS handles a new /ws/{roomId} connection for its whole lifetime.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	if roomID == "" {
		http.Error(w, "roomId required", http.StatusBadRequest)
		return
	}

	sock, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	c := NewConn(uuid.NewString(), sock)
	go c.WriteLoop(r.Context())

	h.log.Info("ws.connected", "room", roomID, "conn", c.ID())
	h.runSession(r.Context(), roomID, c)
	h.log.Info("ws.disconnected", "room", roomID, "conn", c.ID())
}

// runSession drives one connection through join, initial sync, the message
// loop, and leave. Every exit path releases the registry slot and announces
// the new count to whoever remains.
func (h *Hub) runSession(ctx context.Context, roomID string, c clientConn) {
	count := h.registry.Join(roomID, c)
	metrics.ActiveConnections.Inc()
	metrics.ActiveRooms.Set(float64(h.registry.Rooms()))

	defer func() {
		remaining := h.registry.Leave(roomID, c)
		metrics.ActiveConnections.Dec()
		metrics.ActiveRooms.Set(float64(h.registry.Rooms()))
		_ = c.Close()
		h.Broadcast(roomID, EncodeUserCount(remaining), nil)
	}()

	// First sighting of this room in this process: materialize the room
	// record in the background. Idempotent upsert, failure is not fatal.
	if h.registry.EnsureOnce(roomID) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := h.store.EnsureRoom(ctx, roomID, defaultRoomName); err != nil {
				h.log.Error("room.ensure", "room", roomID, "err", err)
			}
		}()
	}

	// Initial sync: latest snapshot (or null on store failure) plus the
	// fresh count, then tell the rest of the room someone arrived.
	snap, err := h.store.LatestSnapshot(ctx, roomID)
	if err != nil {
		h.log.Error("snapshot.load", "room", roomID, "err", err)
		snap = nil
	}
	if err := c.Send(EncodeJoinAck(snap, count)); err != nil {
		return
	}
	h.Broadcast(roomID, EncodeUserCount(count), c)

	for {
		raw, err := c.Read(ctx)
		if err != nil {
			return
		}

		msg, err := DecodeInbound(raw)
		if err != nil {
			// Lenient policy: drop the bad frame, keep the session.
			h.log.Warn("ws.frame", "room", roomID, "err", err)
			continue
		}

		switch msg.Type {
		case TypeUpdate:
			h.relay(ctx, roomID, msg.Raw, c)
			if len(msg.Data) > 0 && h.registry.ShouldAutoSave(roomID, time.Now(), h.interval) {
				go h.persist(roomID, msg.Data, "auto")
			}
		case TypeSnapshot:
			if len(msg.Data) > 0 {
				h.registry.MarkSaved(roomID, time.Now())
				go h.persist(roomID, msg.Data, "requested")
			}
		case TypeCursor:
			h.relay(ctx, roomID, msg.Raw, c)
		default:
			h.log.Debug("ws.frame.ignored", "room", roomID, "type", msg.Type)
		}
	}
}

// relay broadcasts locally and, when a bus is configured, publishes the frame
// for other instances serving the same room. Only board traffic rides the
// bus; user-count frames describe this instance's registry and stay local.
func (h *Hub) relay(ctx context.Context, roomID string, frame []byte, exclude Sender) {
	h.Broadcast(roomID, frame, exclude)
	if h.bus != nil {
		if err := h.bus.Publish(ctx, roomID, frame); err != nil {
			h.log.Warn("bus.publish", "room", roomID, "err", err)
		}
	}
}

// persist writes a snapshot on its own goroutine so a slow store never
// stalls the relay.
func (h *Hub) persist(roomID string, data json.RawMessage, trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := h.store.InsertSnapshot(ctx, roomID, data); err != nil {
		h.log.Error("snapshot.save", "room", roomID, "trigger", trigger, "err", err)
		return
	}
	metrics.SnapshotsSaved.WithLabelValues(trigger).Inc()
	h.log.Info("snapshot.saved", "room", roomID, "trigger", trigger, "bytes", len(data))
}
