// Package transport provides the peer transport the chat layer builds
// on: open a stream to a peer speaking a named protocol, or register a
// handler for inbound streams of that protocol. Streams are
// authenticated with a signed hello exchange so the remote peer id
// reported to handlers is trustworthy.
package transport

import (
	"context"
	"fmt"
	"io"
)

// Handler processes one inbound stream. The stream is owned by the
// handler once dispatched; remotePeer is the authenticated peer id.
type Handler func(stream io.ReadWriteCloser, remotePeer string)

// Transport is the peer-transport collaborator contract.
type Transport interface {
	// OpenStream dials peerID and negotiates the named protocol.
	OpenStream(ctx context.Context, peerID, protocol string) (io.ReadWriteCloser, error)

	// RegisterHandler installs the handler for inbound streams of the
	// named protocol. Must be called before Start.
	RegisterHandler(protocol string, h Handler)

	// LocalAddrs returns the addresses peers can reach this node on.
	LocalAddrs() []string

	// AddPeer records a peer id → dial address mapping.
	AddPeer(peerID, addr string)

	// OnDisconnect registers a callback invoked with the peer id each
	// time a stream to that peer terminates.
	OnDisconnect(fn func(peerID string))
}

// DialError reports a failure to reach a peer or negotiate a protocol.
type DialError struct {
	Peer string
	Err  error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("transport: dial %s: %v", e.Peer, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }
