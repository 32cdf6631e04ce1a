package peers

import (
	"fmt"
	"io"
	"time"

	"github.com/msadley/Basilisk-sub000/internal/bus"
	"github.com/msadley/Basilisk-sub000/internal/metrics"
	"github.com/msadley/Basilisk-sub000/internal/wire"
	"go.uber.org/zap"
)

// SenderMismatchError reports a chat record whose declared sender is not
// the transport-authenticated remote peer.
type SenderMismatchError struct {
	Declared string
	Actual   string
}

func (e *SenderMismatchError) Error() string {
	return fmt.Sprintf("declared sender %s does not match peer %s", e.Declared, e.Actual)
}

// ChatHandler serves the inbound side of the chat protocol: decode
// frames, validate the sender, publish peer.message events. It never
// touches the store; persistence happens downstream of the bus.
type ChatHandler struct {
	bus     *bus.Bus
	metrics *metrics.Set
	log     *zap.Logger
}

// NewChatHandler builds the inbound chat protocol handler.
func NewChatHandler(b *bus.Bus, m *metrics.Set, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{bus: b, metrics: m, log: log}
}

// Handle consumes one inbound chat stream until it ends or turns
// malformed. A sender mismatch discards the frame but keeps the stream;
// a malformed frame ends the stream.
func (h *ChatHandler) Handle(stream io.ReadWriteCloser, remotePeer string) {
	defer func() { _ = stream.Close() }()

	dec := wire.NewDecoder(stream)
	for {
		payload, err := dec.Decode()
		if err == io.EOF {
			return
		}
		if err != nil {
			h.log.Warn("chat stream ended on bad frame", zap.String("peer", remotePeer), zap.Error(err))
			return
		}

		rec, err := wire.ParseChatMessage(payload)
		if err != nil {
			h.log.Warn("malformed chat record, closing stream", zap.String("peer", remotePeer), zap.Error(err))
			return
		}

		if rec.From.ID != remotePeer {
			mismatch := &SenderMismatchError{Declared: rec.From.ID, Actual: remotePeer}
			h.log.Warn("discarding frame", zap.String("peer", remotePeer), zap.Error(mismatch))
			h.metrics.RecordSenderMismatch()
			continue
		}

		h.metrics.RecordMessageReceived()
		h.bus.Publish(bus.Event{
			Kind:      bus.KindPeerMessage,
			Timestamp: time.Now(),
			Payload:   bus.PeerMessage{Record: rec, Peer: remotePeer},
		})
	}
}
