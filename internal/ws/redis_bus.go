package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BusMessage is the envelope published to redis for cross-instance fanout.
// Origin identifies the publishing process so it can skip its own traffic on
// the way back in.
type BusMessage struct {
	Origin  string `json:"origin"`
	RoomID  string `json:"roomId"`
	Payload []byte `json:"payload"`
}

// RedisBus shares room traffic between server instances over redis pub/sub.
type RedisBus struct {
	rdb    *redis.Client
	log    *slog.Logger
	origin string
}

// NewRedisBus connects to redis and verifies connectivity.
func NewRedisBus(ctx context.Context, addr string, db int, log *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBus{rdb: rdb, log: log, origin: uuid.NewString()}, nil
}

// Publish sends a frame to the redis channel for a room.
func (b *RedisBus) Publish(ctx context.Context, roomID string, frame []byte) error {
	raw, _ := json.Marshal(BusMessage{Origin: b.origin, RoomID: roomID, Payload: frame})
	return b.rdb.Publish(ctx, channel(roomID), raw).Err()
}

// Subscribe listens on all room channels and invokes fn for every frame
// published by other instances. Returns when ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(roomID string, frame []byte)) {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				b.log.Warn("bus.channel.closed")
				return
			}
			var bm BusMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
				b.log.Warn("bus.decode", "err", err)
				continue
			}
			if !b.accept(bm) {
				continue
			}
			fn(bm.RoomID, bm.Payload)
		}
	}
}

// accept filters bus traffic: frames this instance published come back via
// psubscribe and must not be delivered twice.
func (b *RedisBus) accept(bm BusMessage) bool {
	return bm.Origin != b.origin && bm.RoomID != ""
}

// Close shuts down the redis connection.
func (b *RedisBus) Close() { _ = b.rdb.Close() }

// channel namespacing for room pub/sub
func channel(roomID string) string { return "room:" + roomID }
