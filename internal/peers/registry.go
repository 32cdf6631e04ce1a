package peers

import (
	"context"
	"sync"

	"github.com/msadley/Basilisk-sub000/internal/metrics"
	"github.com/msadley/Basilisk-sub000/internal/transport"
	"github.com/msadley/Basilisk-sub000/internal/wire"
	"go.uber.org/zap"
)

// Registry caches at most one live outbound chat connection per peer id.
// It is the sole owner of chat-protocol write streams.
type Registry struct {
	transport transport.Transport
	metrics   *metrics.Set
	log       *zap.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewRegistry builds an empty registry over the given transport.
func NewRegistry(tr transport.Transport, m *metrics.Set, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		transport: tr,
		metrics:   m,
		log:       log,
		conns:     make(map[string]*Conn),
	}
}

// GetOrCreate returns the cached connection for peerID, dialing one if
// absent. The lock is held across the dial so check-and-insert is atomic;
// a failed dial leaves no entry behind.
func (r *Registry) GetOrCreate(ctx context.Context, peerID string) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[peerID]; ok {
		return c, nil
	}

	stream, err := r.transport.OpenStream(ctx, peerID, wire.ChatProtocol)
	if err != nil {
		r.metrics.RecordDialFailure()
		return nil, err
	}
	c := newConn(peerID, stream, r.log)
	r.conns[peerID] = c
	r.metrics.SetLiveConnections(len(r.conns))
	r.log.Info("chat connection established", zap.String("peer", peerID))
	return c, nil
}

// Remove evicts and closes the entry for peerID. Idempotent; a missing
// key is not an error. Wired to transport disconnect notifications.
func (r *Registry) Remove(peerID string) {
	r.mu.Lock()
	c, ok := r.conns[peerID]
	delete(r.conns, peerID)
	r.metrics.SetLiveConnections(len(r.conns))
	r.mu.Unlock()

	if ok {
		c.Close()
		r.log.Info("chat connection removed", zap.String("peer", peerID))
	}
}

// Deliver sends one chat record to a peer, establishing the connection
// on demand. There is no retry and no queueing for later: a failure is
// surfaced to the caller as a DeliveryError.
func (r *Registry) Deliver(ctx context.Context, peerID string, msg wire.ChatMessage) error {
	c, err := r.GetOrCreate(ctx, peerID)
	if err != nil {
		return &DeliveryError{Peer: peerID, Err: err}
	}
	if err := c.Send(msg); err != nil {
		r.Remove(peerID)
		return &DeliveryError{Peer: peerID, Err: err}
	}
	r.metrics.RecordMessageSent()
	return nil
}

// CloseAll tears down every cached connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
