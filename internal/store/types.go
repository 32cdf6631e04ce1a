package store

import "strings"

// GroupPrefix marks chat ids that denote group conversations. A private
// chat id is the remote peer id itself.
const GroupPrefix = "group:"

// Chat types.
const (
	ChatPrivate = "private"
	ChatGroup   = "group"
)

// IsGroupID reports whether a chat or destination id carries the group marker.
func IsGroupID(id string) bool {
	return strings.HasPrefix(id, GroupPrefix)
}

// Profile is a known peer's metadata. The local node has a profile row too.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Chat is one conversation thread.
type Chat struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Type   string `json:"type"`
}

// Message is one stored chat message. ID is assigned by the store.
type Message struct {
	ID        int64  `json:"id"`
	ChatID    string `json:"chat"`
	FromID    string `json:"from"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}
