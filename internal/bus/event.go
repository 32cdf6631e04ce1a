package bus

import (
	"strings"
	"time"

	"github.com/msadley/Basilisk-sub000/internal/store"
	"github.com/msadley/Basilisk-sub000/internal/wire"
)

// Kind identifies an event variant. The set below is closed: every
// publisher uses one of these constants and carries the matching
// payload type.
type Kind string

// Matches reports whether the kind falls under the given prefix. The
// empty prefix matches every kind.
func (k Kind) Matches(prefix Kind) bool {
	return strings.HasPrefix(string(k), string(prefix))
}

const (
	// KindPeerMessage carries a validated inbound chat record
	// (payload: PeerMessage).
	KindPeerMessage Kind = "peer.message"

	// KindRelayFound and KindRelayLost report relay reachability
	// transitions (payload: RelayStatus).
	KindRelayFound Kind = "relay.found"
	KindRelayLost  Kind = "relay.lost"

	// KindProfileUpdated, KindChatStarted, and KindMessageSaved report
	// durable state changes, emitted in that order for a single save
	// (payloads: ProfileUpdated, ChatStarted, MessageSaved).
	KindProfileUpdated Kind = "store.profile_updated"
	KindChatStarted    Kind = "store.chat_started"
	KindMessageSaved   Kind = "store.message_saved"

	// KindNodeStarted announces the node identity and listen addresses
	// once the transport is up (payload: NodeStarted).
	KindNodeStarted Kind = "node.started"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// PeerMessage is the payload for KindPeerMessage.
type PeerMessage struct {
	Record wire.ChatMessage
	Peer   string
}

// RelayStatus is the payload for KindRelayFound and KindRelayLost.
type RelayStatus struct {
	Addr string
}

// ProfileUpdated is the payload for KindProfileUpdated.
type ProfileUpdated struct {
	Profile store.Profile
}

// ChatStarted is the payload for KindChatStarted.
type ChatStarted struct {
	Chat store.Chat
}

// MessageSaved is the payload for KindMessageSaved.
type MessageSaved struct {
	Message store.Message
}

// NodeStarted is the payload for KindNodeStarted.
type NodeStarted struct {
	ID        string
	Addresses []string
}
