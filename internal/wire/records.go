package wire

import "encoding/json"

// Protocol names registered on the peer transport.
const (
	ChatProtocol = "/basilisk/chat/1.0.0"
	InfoProtocol = "/basilisk/info/1.0.0"
)

// MessageType is the record type carried by chat frames.
const MessageType = "message"

// Profile is the peer metadata record exchanged over the info protocol
// and embedded in chat records.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// ChatMessage is one chat record as it travels on the wire.
type ChatMessage struct {
	Type      string  `json:"type"`
	Content   string  `json:"content"`
	Timestamp int64   `json:"timestamp"`
	From      Profile `json:"from"`
	To        string  `json:"to"`
}

// Marshal serializes the record for framing.
func (m ChatMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ParseChatMessage decodes and validates one chat record payload.
func ParseChatMessage(payload []byte) (ChatMessage, error) {
	var m ChatMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, &ProtocolError{Reason: "malformed chat record", Err: err}
	}
	if m.From.ID == "" {
		return m, &ProtocolError{Reason: "chat record missing sender id"}
	}
	if m.To == "" {
		return m, &ProtocolError{Reason: "chat record missing destination"}
	}
	return m, nil
}

// ParseProfile decodes one info-exchange payload.
func ParseProfile(payload []byte) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, &ProtocolError{Reason: "malformed profile record", Err: err}
	}
	if p.ID == "" {
		return p, &ProtocolError{Reason: "profile record missing id"}
	}
	return p, nil
}
