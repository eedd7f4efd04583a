package httpx

import (
	"log/slog"
	"net/http"

	"github.com/alexli8408/CoWhiteboard/internal/app"
	"github.com/alexli8408/CoWhiteboard/internal/ws"
	"github.com/alexli8408/CoWhiteboard/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, db RoomStore) http.Handler {
	mw := NewMiddleware(cfg)
	api := &RoomsAPI{DB: db, Counts: hub.Registry(), Log: logger}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint, one room per path segment
	mux.Handle("GET /ws/{roomId}", http.HandlerFunc(hub.ServeWS))

	// Room metadata + snapshot endpoints
	mux.Handle("POST /api/rooms", http.HandlerFunc(api.Create))
	mux.Handle("GET /api/rooms/{id}", http.HandlerFunc(api.Get))
	mux.Handle("GET /api/rooms/{id}/snapshot", http.HandlerFunc(api.GetSnapshot))
	mux.Handle("PUT /api/rooms/{id}/snapshot", http.HandlerFunc(api.SaveSnapshot))

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
