// Package protocol defines the framing shared by the relay and its
// clients: a binary envelope of one kind byte (plus a subtype byte for
// sync frames) followed by a JSON payload. Frames are self-describing,
// so a receiver can tell a state-vector request from a delta without an
// extra round trip.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/eldtechnologies/sketchsync/internal/document"
	"github.com/eldtechnologies/sketchsync/internal/models"
)

// Message kinds, first byte of every frame.
const (
	KindSync      byte = 0x00
	KindAwareness byte = 0x01
)

// Sync subtypes, second byte of a sync frame.
const (
	SyncRequest byte = 0x00 // state-vector request, sent on connect
	SyncReply   byte = 0x01 // catch-up delta answering a request
	SyncUpdate  byte = 0x02 // live delta after a local mutation
)

var (
	ErrTruncated   = errors.New("protocol: truncated frame")
	ErrUnknownKind = errors.New("protocol: unknown message kind")
)

// SyncPayload is the JSON body of every sync frame. A request carries
// only the state vector; a reply carries the delta plus the responder's
// own state vector (so the requester can send back what the responder is
// missing); an update carries only the delta.
type SyncPayload struct {
	StateVector map[string]uint64 `json:"sv,omitempty"`
	Delta       *document.Delta   `json:"delta,omitempty"`
}

// AwarenessPayload is the JSON body of an awareness frame. A client
// sends a single update (State == nil signals removal); the relay sends
// full snapshots of everything it knows.
type AwarenessPayload struct {
	ClientID string                           `json:"client_id,omitempty"`
	State    *models.AwarenessState           `json:"state,omitempty"`
	States   map[string]models.AwarenessState `json:"states,omitempty"`
	Snapshot bool                             `json:"snapshot,omitempty"`
}

// Message is the decoded form of one frame, a tagged union on Kind.
type Message struct {
	Kind      byte
	SyncType  byte
	Sync      *SyncPayload
	Awareness *AwarenessPayload
}

func encodeSync(subtype byte, p SyncPayload) []byte {
	body, _ := json.Marshal(p)
	frame := make([]byte, 0, len(body)+2)
	frame = append(frame, KindSync, subtype)
	return append(frame, body...)
}

// EncodeSyncRequest frames a state-vector request.
func EncodeSyncRequest(sv map[string]uint64) []byte {
	return encodeSync(SyncRequest, SyncPayload{StateVector: sv})
}

// EncodeSyncReply frames a catch-up delta together with the responder's
// state vector.
func EncodeSyncReply(delta document.Delta, sv map[string]uint64) []byte {
	return encodeSync(SyncReply, SyncPayload{Delta: &delta, StateVector: sv})
}

// EncodeSyncUpdate frames a live delta broadcast.
func EncodeSyncUpdate(delta document.Delta) []byte {
	return encodeSync(SyncUpdate, SyncPayload{Delta: &delta})
}

// EncodeAwarenessUpdate frames one client's presence change. A nil
// state signals removal.
func EncodeAwarenessUpdate(clientID string, state *models.AwarenessState) []byte {
	body, _ := json.Marshal(AwarenessPayload{ClientID: clientID, State: state})
	frame := make([]byte, 0, len(body)+1)
	frame = append(frame, KindAwareness)
	return append(frame, body...)
}

// EncodeAwarenessSnapshot frames the full presence map of a room.
func EncodeAwarenessSnapshot(states map[string]models.AwarenessState) []byte {
	body, _ := json.Marshal(AwarenessPayload{States: states, Snapshot: true})
	frame := make([]byte, 0, len(body)+1)
	frame = append(frame, KindAwareness)
	return append(frame, body...)
}

// Decode parses one frame. Callers drop frames that fail to decode; a
// bad frame must never take down a connection or a room.
func Decode(frame []byte) (Message, error) {
	if len(frame) < 1 {
		return Message{}, ErrTruncated
	}
	switch frame[0] {
	case KindSync:
		if len(frame) < 2 {
			return Message{}, ErrTruncated
		}
		subtype := frame[1]
		if subtype != SyncRequest && subtype != SyncReply && subtype != SyncUpdate {
			return Message{}, ErrUnknownKind
		}
		var p SyncPayload
		if err := json.Unmarshal(frame[2:], &p); err != nil {
			return Message{}, err
		}
		return Message{Kind: KindSync, SyncType: subtype, Sync: &p}, nil
	case KindAwareness:
		var p AwarenessPayload
		if err := json.Unmarshal(frame[1:], &p); err != nil {
			return Message{}, err
		}
		return Message{Kind: KindAwareness, Awareness: &p}, nil
	default:
		return Message{}, ErrUnknownKind
	}
}
