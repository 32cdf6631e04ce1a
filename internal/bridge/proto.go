package bridge

import "encoding/json"

// Command is one UI request. ID is the correlation token the response
// must carry back.
type Command struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is one UI-bound message. An Event with an ID is the correlated
// response to the Command with the same ID; without one it is a
// broadcast notification.
type Event struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Command types recognized by the orchestrator. Anything else is
// silently dropped.
const (
	CmdPingRelay        = "ping-relay"
	CmdSendMessage      = "send-message"
	CmdGetProfileUser   = "get-profile-user"
	CmdPatchProfileSelf = "patch-profile-self"
	CmdGetProfile       = "get-profile"
	CmdGetMessages      = "get-messages"
	CmdGetChats         = "get-chats"
	CmdCreateChat       = "create-chat"
	CmdCloseDatabase    = "close-database"
)

// Correlated response types, one per command.
const (
	RespRelayPinged          = "relay-pinged"
	RespMessageSent          = "message-sent"
	RespProfileUserRetrieved = "profile-user-retrieved"
	RespProfileSelfPatched   = "profile-self-patched"
	RespProfileRetrieved     = "profile-retrieved"
	RespMessagesRetrieved    = "messages-retrieved"
	RespChatsRetrieved       = "chats-retrieved"
	RespChatCreated          = "chat-created"
	RespDatabaseClosed       = "database-closed"
)

// Broadcast event types.
const (
	EvtMessageReceived = "message-received"
	EvtRelayFound      = "relay-found"
	EvtRelayLost       = "relay-lost"
	EvtChatSpawned     = "chat-spawned"
	EvtNodeStarted     = "node-started"
)

// Command payloads.

type SendMessagePayload struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

type ProfileRefPayload struct {
	ID string `json:"id"`
}

type PatchProfilePayload struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type GetMessagesPayload struct {
	Chat string `json:"chat"`
	Page int    `json:"page"`
}

type CreateChatPayload struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Members []string `json:"members,omitempty"`
}
