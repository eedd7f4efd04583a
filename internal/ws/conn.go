package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// sendQueueSize controls the max number of frames queued for a client.
	sendQueueSize  = 256
	pingPeriod     = 20 * time.Second
	maxMessageSize = 1 << 20 // 1 MiB, board snapshots ride the socket
)

var errSendQueueFull = errors.New("send queue full")

// Accept upgrades HTTP to websocket (allow all origins)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// Conn adapts one websocket to the session loop: a blocking Read on the
// inbound side, a buffered non-blocking Send drained by WriteLoop on the
// outbound side.
type Conn struct {
	id   string
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func NewConn(id string, ws *websocket.Conn) *Conn {
	ws.SetReadLimit(maxMessageSize)
	return &Conn{
		id:   id,
		ws:   ws,
		out:  make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues a frame for delivery. It never blocks: a full queue or a
// closed connection returns an error, which the relay treats as a dead
// connection.
func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.out <- frame:
		return nil
	default:
		return errSendQueueFull
	}
}

// Read blocks until the next text/binary frame arrives. Any transport error,
// including a clean remote close, surfaces as the error that ends the
// session loop.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, nil
		}
	}
}

// WriteLoop drains the outbound queue and pings periodically. Exits when ctx
// is cancelled or a write fails.
func (c *Conn) WriteLoop(ctx context.Context) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()

	for {
		select {
		case frame := <-c.out:
			if err := c.ws.Write(ctx, websocket.MessageText, frame); err != nil {
				return
			}
		case <-t.C:
			if err := c.ws.Ping(ctx); err != nil {
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close shuts the websocket down and unblocks Send callers. Safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close(websocket.StatusNormalClosure, "bye")
	})
	return err
}
