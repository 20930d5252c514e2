package streaming

import (
	"encoding/json"
	"time"

	"github.com/GamesCrafters/gamesplane/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeFrameState   = "frame_state"
	TypeEstimate     = "estimate"
	TypeOverlay      = "overlay"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a new session.
type StartSessionPayload struct {
	SessionID string    `json:"sessionId"`
	Game      string    `json:"game"`
	Variant   string    `json:"variant"`
	StartedAt time.Time `json:"startedAt"`
}

// EndSessionPayload closes a session.
type EndSessionPayload struct {
	SessionID string `json:"sessionId"`
	Frames    int    `json:"frames"`
}

// FrameStatePayload carries the localized markers of one frame.
// Located is false when no anchor was visible in the frame.
type FrameStatePayload struct {
	SessionID string              `json:"sessionId"`
	Timestamp time.Time           `json:"timestamp"`
	Located   bool                `json:"located"`
	Anchors   []core.PlacedMarker `json:"anchors,omitempty"`
	Pieces    []core.PlacedMarker `json:"pieces,omitempty"`
	Symbol    string              `json:"symbol,omitempty"`
}

// EstimatePayload is sent when the smoothed board state changes.
type EstimatePayload struct {
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
}

// OverlayPayload reports the overlay status for the current estimate.
type OverlayPayload struct {
	SessionID string       `json:"sessionId"`
	Key       string       `json:"key"`
	State     string       `json:"state"`
	Quad      []core.Pixel `json:"quad,omitempty"`
}
