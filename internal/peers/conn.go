package peers

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/msadley/Basilisk-sub000/internal/wire"
	"go.uber.org/zap"
)

const sendQueueDepth = 64

var (
	errConnClosed = errors.New("connection closed")
	errQueueFull  = errors.New("send queue full")
)

// DeliveryError reports that a message could not be handed to a peer.
type DeliveryError struct {
	Peer string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Peer, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Conn owns one outbound chat stream to a peer. Sends are queued on a
// buffered channel and drained by a single write loop, so callers never
// block and submission order is preserved. A Conn never reads its stream.
type Conn struct {
	peer   string
	stream io.ReadWriteCloser
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
	log    *zap.Logger
}

func newConn(peer string, stream io.ReadWriteCloser, log *zap.Logger) *Conn {
	c := &Conn{
		peer:   peer,
		stream: stream,
		sendCh: make(chan []byte, sendQueueDepth),
		done:   make(chan struct{}),
		log:    log,
	}
	go c.writeLoop()
	return c
}

// Peer returns the remote peer id this connection writes to.
func (c *Conn) Peer() string { return c.peer }

// Send serializes the record and enqueues it without blocking.
func (c *Conn) Send(msg wire.ChatMessage) error {
	payload, err := msg.Marshal()
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.sendCh <- payload:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errQueueFull
	}
}

// Close signals end-of-stream to the write loop and releases the
// transport stream. Safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Conn) writeLoop() {
	defer func() { _ = c.stream.Close() }()

	enc := wire.NewEncoder(c.stream)
	for {
		select {
		case <-c.done:
			// Drain whatever was queued before the close signal.
			for {
				select {
				case payload := <-c.sendCh:
					if err := enc.Encode(payload); err != nil {
						return
					}
				default:
					return
				}
			}
		case payload := <-c.sendCh:
			if err := enc.Encode(payload); err != nil {
				c.log.Warn("write to peer failed", zap.String("peer", c.peer), zap.Error(err))
				c.Close()
				return
			}
		}
	}
}
