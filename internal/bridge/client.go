package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client talks to a running daemon over the bridge socket. Requests
// carry a generated correlation id; the matching response is routed
// back to the caller while uncorrelated events land on Broadcasts.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Event

	broadcasts chan Event
	done       chan struct{}
	once       sync.Once
	readErr    error
}

// Dial connects to the bridge socket at sockPath.
func Dial(ctx context.Context, sockPath string) (*Client, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", sockPath)
		},
	}
	conn, _, err := dialer.DialContext(ctx, "ws://basilisk/ws", nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}

	c := &Client{
		conn:       conn,
		pending:    make(map[string]chan Event),
		broadcasts: make(chan Event, 32),
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Broadcasts returns the stream of unsolicited daemon events. The
// channel closes when the connection does.
func (c *Client) Broadcasts() <-chan Event {
	return c.broadcasts
}

// Request sends one command and waits for its correlated response.
// A response carrying an error field is returned as a Go error.
func (c *Client) Request(ctx context.Context, cmdType string, payload any) (Event, error) {
	id := uuid.NewString()
	ch := make(chan Event, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	cmd := Command{Type: cmdType, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode payload: %w", err)
		}
		cmd.Payload = raw
	}

	c.writeMu.Lock()
	err := c.conn.WriteJSON(cmd)
	c.writeMu.Unlock()
	if err != nil {
		return Event{}, fmt.Errorf("send %s: %w", cmdType, err)
	}

	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case <-c.done:
		return Event{}, fmt.Errorf("bridge connection closed: %w", c.readErr)
	case evt := <-ch:
		if evt.Error != "" {
			return evt, fmt.Errorf("%s: %s", cmdType, evt.Error)
		}
		return evt, nil
	}
}

// Close tears the connection down.
func (c *Client) Close() error {
	c.shutdown(nil)
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		var evt Event
		if err := c.conn.ReadJSON(&evt); err != nil {
			c.shutdown(err)
			return
		}
		if evt.ID != "" {
			c.mu.Lock()
			ch, ok := c.pending[evt.ID]
			c.mu.Unlock()
			if ok {
				ch <- evt
				continue
			}
		}
		select {
		case c.broadcasts <- evt:
		default:
			// Slow consumer: drop rather than stall the read loop.
		}
	}
}

func (c *Client) shutdown(err error) {
	c.once.Do(func() {
		c.readErr = err
		close(c.done)
		close(c.broadcasts)
	})
}
