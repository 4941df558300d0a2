package server

import (
	"encoding/json"
	"time"

	"llmrace/internal/race"
)

// Stream message types shared by the SSE and WebSocket endpoints.
const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeUpdate   = "update"
	MessageTypeDone     = "done"
	MessageTypeError    = "error"
	MessageTypePing     = "ping"
	MessageTypeCancel   = "cancel"
)

// StreamMessage is one frame sent to a race subscriber.
type StreamMessage struct {
	Type      string         `json:"type"`
	RaceID    string         `json:"raceId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Update    *race.Update   `json:"update,omitempty"`
	Snapshot  *race.Snapshot `json:"snapshot,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// NewSnapshotMessage creates the first frame of a stream.
func NewSnapshotMessage(raceID string, s race.Snapshot) *StreamMessage {
	return &StreamMessage{Type: MessageTypeSnapshot, RaceID: raceID, Timestamp: time.Now(), Snapshot: &s}
}

// NewUpdateMessage wraps an orchestrator update.
func NewUpdateMessage(raceID string, u race.Update) *StreamMessage {
	return &StreamMessage{Type: MessageTypeUpdate, RaceID: raceID, Timestamp: u.Time, Update: &u}
}

// NewDoneMessage carries the settled race.
func NewDoneMessage(raceID string, s race.Snapshot) *StreamMessage {
	return &StreamMessage{Type: MessageTypeDone, RaceID: raceID, Timestamp: time.Now(), Snapshot: &s}
}

// NewPingMessage is a keep-alive frame.
func NewPingMessage() *StreamMessage {
	return &StreamMessage{Type: MessageTypePing, Timestamp: time.Now()}
}

// ToJSON converts a message to JSON bytes
func (m *StreamMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToSSE formats the message as one SSE event.
func (m *StreamMessage) ToSSE() ([]byte, error) {
	data, err := m.ToJSON()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	out = append(out, '\n', '\n')
	return out, nil
}

// ClientMessage is what a WebSocket client may send.
type ClientMessage struct {
	Type string `json:"type"`
}
