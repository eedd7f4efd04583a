package ws

import (
	"encoding/json"
	"fmt"
)

// Message types on the wire. Clients send update/snapshot/cursor; the server
// sends join-ack/user-count.
const (
	TypeJoinAck   = "join-ack"
	TypeUserCount = "user-count"
	TypeUpdate    = "update"
	TypeSnapshot  = "snapshot"
	TypeCursor    = "cursor"
)

// Inbound is one client frame decoded at the transport boundary. Raw keeps
// the exact bytes received so broadcasts forward the frame verbatim; Data is
// the optional full-state payload for update/snapshot frames. The board
// payload itself is opaque to the server.
type Inbound struct {
	Type string
	Data json.RawMessage
	Raw  []byte
}

// DecodeInbound parses a client frame. Frames without a type field are
// rejected; frames with an unrecognized type decode fine and are ignored by
// the session loop.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Inbound{}, fmt.Errorf("decoding frame: %w", err)
	}
	if env.Type == "" {
		return Inbound{}, fmt.Errorf("frame missing type field")
	}
	return Inbound{Type: env.Type, Data: env.Data, Raw: raw}, nil
}

type joinAck struct {
	Type     string          `json:"type"`
	Snapshot json.RawMessage `json:"snapshot"`
	Count    int             `json:"count"`
}

type userCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// EncodeJoinAck builds the initial sync frame for a new connection. A nil
// snapshot encodes as JSON null.
func EncodeJoinAck(snapshot json.RawMessage, count int) []byte {
	b, _ := json.Marshal(joinAck{Type: TypeJoinAck, Snapshot: snapshot, Count: count})
	return b
}

// EncodeUserCount builds a participant-count frame.
func EncodeUserCount(count int) []byte {
	b, _ := json.Marshal(userCount{Type: TypeUserCount, Count: count})
	return b
}
