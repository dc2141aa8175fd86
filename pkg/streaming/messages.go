package streaming

import (
	"encoding/json"

	"github.com/harvestbot/harvester/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeTick         = "tick"
	TypeAssignment   = "assignment"

	// TypeAck is sent by the server in reply to start_session and end_session.
	TypeAck = "ack"
)

// Envelope wraps all messages sent over the WebSocket and every line of a session journal.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a session.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// EndSessionPayload closes a session with its final totals.
type EndSessionPayload struct {
	SessionID   string  `json:"sessionId"`
	Ticks       int     `json:"ticks"`
	Assignments int     `json:"assignments"`
	FinalScore  float64 `json:"finalScore"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
