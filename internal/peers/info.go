package peers

import (
	"context"
	"encoding/json"
	"io"

	"github.com/msadley/Basilisk-sub000/internal/transport"
	"github.com/msadley/Basilisk-sub000/internal/wire"
	"go.uber.org/zap"
)

// ProfileSource yields the local profile served over the info protocol.
// Reading it live means patches become visible to peers immediately.
type ProfileSource interface {
	LocalProfile() (wire.Profile, error)
}

// InfoServer answers info-protocol requests: one profile payload per
// stream, then close. Request/response, single round, no retry.
type InfoServer struct {
	source ProfileSource
	log    *zap.Logger
}

// NewInfoServer builds the inbound info protocol handler.
func NewInfoServer(source ProfileSource, log *zap.Logger) *InfoServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &InfoServer{source: source, log: log}
}

// Handle writes the local profile as exactly one frame and closes.
func (s *InfoServer) Handle(stream io.ReadWriteCloser, remotePeer string) {
	defer func() { _ = stream.Close() }()

	profile, err := s.source.LocalProfile()
	if err != nil {
		s.log.Error("local profile unavailable", zap.String("peer", remotePeer), zap.Error(err))
		return
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		s.log.Error("marshal local profile", zap.Error(err))
		return
	}
	if err := wire.NewEncoder(stream).Encode(payload); err != nil {
		s.log.Warn("info response write failed", zap.String("peer", remotePeer), zap.Error(err))
	}
}

// InfoClient queries remote profiles. Each query opens a fresh stream;
// the info protocol has no persistent connection.
type InfoClient struct {
	transport transport.Transport
	log       *zap.Logger
}

// NewInfoClient builds the outbound info protocol client.
func NewInfoClient(tr transport.Transport, log *zap.Logger) *InfoClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &InfoClient{transport: tr, log: log}
}

// QueryProfile fetches a peer's profile. A stream that ends before the
// payload arrives is a ProtocolError.
func (c *InfoClient) QueryProfile(ctx context.Context, peerID string) (wire.Profile, error) {
	stream, err := c.transport.OpenStream(ctx, peerID, wire.InfoProtocol)
	if err != nil {
		return wire.Profile{}, err
	}
	defer func() { _ = stream.Close() }()

	payload, err := wire.NewDecoder(stream).Decode()
	if err == io.EOF {
		return wire.Profile{}, &wire.ProtocolError{Reason: "stream ended before profile payload"}
	}
	if err != nil {
		return wire.Profile{}, err
	}
	return wire.ParseProfile(payload)
}
