package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alexli8408/CoWhiteboard/internal/store"
	"github.com/alexli8408/CoWhiteboard/pkg/metrics"
)

// RoomStore is what the REST layer needs from persistence.
type RoomStore interface {
	CreateRoom(ctx context.Context, id, name string) (store.Room, error)
	GetRoom(ctx context.Context, id string) (store.Room, error)
	LatestSnapshot(ctx context.Context, roomID string) (json.RawMessage, error)
	InsertSnapshot(ctx context.Context, roomID string, data json.RawMessage) error
	TouchRoom(ctx context.Context, id string) error
}

// Counter answers live member-count queries; the ws registry implements it.
type Counter interface {
	Count(roomID string) int
}

type RoomsAPI struct {
	DB     RoomStore
	Counts Counter
	Log    *slog.Logger
}

type createRoomReq struct {
	Name string `json:"name"`
}

type roomResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UserCount int       `json:"userCount"`
}

// Create makes a new whiteboard room.
func (a *RoomsAPI) Create(w http.ResponseWriter, r *http.Request) {
	req := createRoomReq{Name: "Untitled Board"}
	if r.Body != nil {
		// Body is optional; a bare POST creates an untitled board.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Name == "" {
		req.Name = "Untitled Board"
	}

	rm, err := a.DB.CreateRoom(r.Context(), uuid.NewString(), req.Name)
	if err != nil {
		a.Log.Error("room.create", "err", err)
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, roomResponse{ID: rm.ID, Name: rm.Name, CreatedAt: rm.CreatedAt, UserCount: 0})
}

// Get returns room metadata plus the live participant count.
func (a *RoomsAPI) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	rm, err := a.DB.GetRoom(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		a.Log.Error("room.get", "id", id, "err", err)
		http.Error(w, "failed to get room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, roomResponse{
		ID: rm.ID, Name: rm.Name, CreatedAt: rm.CreatedAt,
		UserCount: a.Counts.Count(id),
	})
}

type snapshotResponse struct {
	Data json.RawMessage `json:"data"`
}

// GetSnapshot returns the latest board snapshot, data null when none exists.
func (a *RoomsAPI) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	data, err := a.DB.LatestSnapshot(r.Context(), id)
	if err != nil {
		a.Log.Error("snapshot.get", "id", id, "err", err)
		http.Error(w, "failed to get snapshot", http.StatusInternalServerError)
		return
	}
	writeJSON(w, snapshotResponse{Data: data})
}

// SaveSnapshot appends a snapshot and bumps the room's updated_at.
func (a *RoomsAPI) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	var data json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || len(data) == 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if err := a.DB.InsertSnapshot(r.Context(), id, data); err != nil {
		a.Log.Error("snapshot.save", "id", id, "err", err)
		http.Error(w, "failed to save snapshot", http.StatusInternalServerError)
		return
	}
	if err := a.DB.TouchRoom(r.Context(), id); err != nil {
		a.Log.Warn("room.touch", "id", id, "err", err)
	}
	metrics.SnapshotsSaved.WithLabelValues("rest").Inc()

	writeJSON(w, map[string]string{"status": "ok"})
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
