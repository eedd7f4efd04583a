package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexli8408/CoWhiteboard/internal/store"
)

type fakeRoomStore struct {
	rooms     map[string]store.Room
	snapshots map[string][]json.RawMessage
	touched   []string
	createErr error
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{
		rooms:     map[string]store.Room{},
		snapshots: map[string][]json.RawMessage{},
	}
}

func (s *fakeRoomStore) CreateRoom(_ context.Context, id, name string) (store.Room, error) {
	if s.createErr != nil {
		return store.Room{}, s.createErr
	}
	r := store.Room{ID: id, Name: name, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.rooms[id] = r
	return r, nil
}

func (s *fakeRoomStore) GetRoom(_ context.Context, id string) (store.Room, error) {
	r, ok := s.rooms[id]
	if !ok {
		return store.Room{}, store.ErrRoomNotFound
	}
	return r, nil
}

func (s *fakeRoomStore) LatestSnapshot(_ context.Context, roomID string) (json.RawMessage, error) {
	snaps := s.snapshots[roomID]
	if len(snaps) == 0 {
		return nil, nil
	}
	return snaps[len(snaps)-1], nil
}

func (s *fakeRoomStore) InsertSnapshot(_ context.Context, roomID string, data json.RawMessage) error {
	s.snapshots[roomID] = append(s.snapshots[roomID], data)
	return nil
}

func (s *fakeRoomStore) TouchRoom(_ context.Context, id string) error {
	s.touched = append(s.touched, id)
	return nil
}

type fixedCounter int

func (c fixedCounter) Count(string) int { return int(c) }

func newTestAPI(db RoomStore, counts Counter) *RoomsAPI {
	return &RoomsAPI{DB: db, Counts: counts, Log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestRoomsAPI_Create(t *testing.T) {
	db := newFakeRoomStore()
	api := newTestAPI(db, fixedCounter(0))

	req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{"name":"Sprint Planning"}`))
	rec := httptest.NewRecorder()
	api.Create(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp roomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Sprint Planning", resp.Name)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, 0, resp.UserCount)
	assert.Contains(t, db.rooms, resp.ID)
}

func TestRoomsAPI_CreateDefaultsName(t *testing.T) {
	db := newFakeRoomStore()
	api := newTestAPI(db, fixedCounter(0))

	req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	api.Create(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp roomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Untitled Board", resp.Name)
}

func TestRoomsAPI_CreateStoreError(t *testing.T) {
	db := newFakeRoomStore()
	db.createErr = errors.New("db down")
	api := newTestAPI(db, fixedCounter(0))

	req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	api.Create(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRoomsAPI_Get(t *testing.T) {
	db := newFakeRoomStore()
	db.rooms["r1"] = store.Room{ID: "r1", Name: "Board"}
	api := newTestAPI(db, fixedCounter(3))

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/r1", nil)
	req.SetPathValue("id", "r1")
	rec := httptest.NewRecorder()
	api.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp roomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "r1", resp.ID)
	// Live count comes from the registry, not the store
	assert.Equal(t, 3, resp.UserCount)
}

func TestRoomsAPI_GetNotFound(t *testing.T) {
	api := newTestAPI(newFakeRoomStore(), fixedCounter(0))

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/ghost", nil)
	req.SetPathValue("id", "ghost")
	rec := httptest.NewRecorder()
	api.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoomsAPI_GetSnapshot(t *testing.T) {
	db := newFakeRoomStore()
	api := newTestAPI(db, fixedCounter(0))

	t.Run("empty room returns null data", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rooms/r1/snapshot", nil)
		req.SetPathValue("id", "r1")
		rec := httptest.NewRecorder()
		api.GetSnapshot(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":null}`, rec.Body.String())
	})

	t.Run("latest snapshot wins", func(t *testing.T) {
		db.snapshots["r1"] = []json.RawMessage{
			json.RawMessage(`{"v":1}`),
			json.RawMessage(`{"v":2}`),
		}
		req := httptest.NewRequest(http.MethodGet, "/api/rooms/r1/snapshot", nil)
		req.SetPathValue("id", "r1")
		rec := httptest.NewRecorder()
		api.GetSnapshot(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":{"v":2}}`, rec.Body.String())
	})
}

func TestRoomsAPI_SaveSnapshot(t *testing.T) {
	db := newFakeRoomStore()
	api := newTestAPI(db, fixedCounter(0))

	req := httptest.NewRequest(http.MethodPut, "/api/rooms/r1/snapshot", strings.NewReader(`{"shapes":[1]}`))
	req.SetPathValue("id", "r1")
	rec := httptest.NewRecorder()
	api.SaveSnapshot(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, db.snapshots["r1"], 1)
	assert.JSONEq(t, `{"shapes":[1]}`, string(db.snapshots["r1"][0]))
	// Saving through REST also bumps the room timestamp
	assert.Equal(t, []string{"r1"}, db.touched)
}

func TestRoomsAPI_SaveSnapshotBadPayload(t *testing.T) {
	api := newTestAPI(newFakeRoomStore(), fixedCounter(0))

	req := httptest.NewRequest(http.MethodPut, "/api/rooms/r1/snapshot", strings.NewReader(`{{{`))
	req.SetPathValue("id", "r1")
	rec := httptest.NewRecorder()
	api.SaveSnapshot(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
