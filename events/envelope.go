// Package events consumes the server's event stream and fans batches of
// decoded envelopes out to subscribers.
package events

import "encoding/json"

// Kind identifies the event carried by an envelope.
type Kind string

const (
	KindServerConnected    Kind = "server.connected"
	KindMessageUpdated     Kind = "message.updated"
	KindMessagePartUpdated Kind = "message.part.updated"
	KindSessionStatus      Kind = "session.status"
	KindPermissionUpdated  Kind = "permission.updated"
	KindSessionError       Kind = "session.error"
)

// Envelope is the wire shape of every event: a kind plus kind-specific
// properties left undecoded until a subscriber asks for them.
type Envelope struct {
	Type       Kind            `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// DecodeProperties unmarshals the envelope's properties into v.
func (e Envelope) DecodeProperties(v any) error {
	if len(e.Properties) == 0 {
		return nil
	}
	return json.Unmarshal(e.Properties, v)
}

// Part is a fragment of an assistant message.
type Part struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
	Type      string `json:"type"`
	Text      string `json:"text"`
}

// PartProperties accompanies message.part.updated. Delta carries only the
// text appended since the previous update for the same part.
type PartProperties struct {
	Part  Part   `json:"part"`
	Delta string `json:"delta"`
}

// StatusProperties accompanies session.status.
type StatusProperties struct {
	SessionID string `json:"sessionId"`
	Status    struct {
		Type string `json:"type"` // "busy" or "idle"
	} `json:"status"`
}

// PermissionProperties accompanies permission.updated: a pending request
// the client must answer.
type PermissionProperties struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionId"`
	Kind      string   `json:"kind"`
	Tool      string   `json:"tool"`
	Patterns  []string `json:"patterns"`
	Title     string   `json:"title"`
}

// ErrorProperties accompanies session.error.
type ErrorProperties struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}
