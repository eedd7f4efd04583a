package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"log/slog"
)

// ErrRoomNotFound indicates the requested room does not exist.
var ErrRoomNotFound = errors.New("room not found")

type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgres connects to postgres and returns a pool wrapper
func NewPostgres(ctx context.Context, url string, log *slog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool, log: log}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// CreateRoom inserts a new room record.
func (p *Postgres) CreateRoom(ctx context.Context, id, name string) (Room, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, name)
		VALUES ($1, $2)
		RETURNING id, name, created_at, updated_at
	`, id, name)

	var r Room
	if err := row.Scan(&r.ID, &r.Name, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Room{}, err
	}
	return r, nil
}

// EnsureRoom upserts a room record; an existing room is left untouched.
func (p *Postgres) EnsureRoom(ctx context.Context, id, name string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO rooms (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, id, name)
	return err
}

// GetRoom fetches a room by ID.
func (p *Postgres) GetRoom(ctx context.Context, id string) (Room, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM rooms
		WHERE id = $1
	`, id)

	var r Room
	if err := row.Scan(&r.ID, &r.Name, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Room{}, ErrRoomNotFound
		}
		return Room{}, err
	}
	return r, nil
}

// TouchRoom bumps the room's updated_at timestamp.
func (p *Postgres) TouchRoom(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE rooms SET updated_at = NOW() WHERE id = $1
	`, id)
	return err
}

// LatestSnapshot returns the newest snapshot blob for a room, nil when the
// room has no snapshots yet.
func (p *Postgres) LatestSnapshot(ctx context.Context, roomID string) (json.RawMessage, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT data
		FROM snapshots
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, roomID)

	var data json.RawMessage
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// InsertSnapshot appends a snapshot for a room. Snapshots are append-only;
// history is kept and LatestSnapshot picks the newest.
func (p *Postgres) InsertSnapshot(ctx context.Context, roomID string, data json.RawMessage) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO snapshots (room_id, data)
		VALUES ($1, $2)
	`, roomID, data)
	if err != nil {
		return err
	}
	p.log.Info("snapshot.inserted", "room", roomID, "bytes", len(data))
	return nil
}
