package transport

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/msadley/Basilisk-sub000/internal/wire"
	"go.uber.org/zap"
)

const handshakeTimeout = 10 * time.Second

// TCPConfig wires the TCP transport.
type TCPConfig struct {
	Identity      *Identity
	ListenAddr    string
	AdvertiseAddr string // address peers should dial back; defaults to the bound address
	Log           *zap.Logger
}

// TCP is a Transport over plain TCP connections. Each connection starts
// with a mutual signed hello naming the protocol; after that the
// connection is handed to the protocol layer as an opaque byte stream.
type TCP struct {
	identity  *Identity
	listen    string
	advertise string
	log       *zap.Logger

	mu        sync.Mutex
	handlers  map[string]Handler
	book      map[string]string
	streams   map[string]int
	onDisc    []func(string)
	listener  net.Listener
	closeOnce sync.Once
	closed    chan struct{}
}

// NewTCP builds the transport. Start must be called before any stream
// can be opened or accepted.
func NewTCP(cfg TCPConfig) (*TCP, error) {
	if cfg.Identity == nil {
		return nil, errors.New("transport identity is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &TCP{
		identity:  cfg.Identity,
		listen:    cfg.ListenAddr,
		advertise: cfg.AdvertiseAddr,
		log:       cfg.Log,
		handlers:  make(map[string]Handler),
		book:      make(map[string]string),
		streams:   make(map[string]int),
		closed:    make(chan struct{}),
	}, nil
}

// RegisterHandler installs the handler for a protocol name.
func (t *TCP) RegisterHandler(protocol string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[protocol] = h
}

// AddPeer records where a peer can be dialed.
func (t *TCP) AddPeer(peerID, addr string) {
	if peerID == "" || addr == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.book[peerID] = addr
}

// OnDisconnect registers a stream-teardown callback.
func (t *TCP) OnDisconnect(fn func(peerID string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisc = append(t.onDisc, fn)
}

// LocalAddrs returns the reachable addresses of this node.
func (t *TCP) LocalAddrs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.advertise != "" {
		return []string{t.advertise}
	}
	if t.listener != nil {
		return []string{t.listener.Addr().String()}
	}
	return nil
}

// Start binds the listener and begins accepting inbound streams.
func (t *TCP) Start() error {
	ln, err := net.Listen("tcp", t.listen)
	if err != nil {
		return fmt.Errorf("transport listen: %w", err)
	}
	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()
	t.log.Info("transport listening", zap.String("addr", ln.Addr().String()), zap.String("peer_id", t.identity.PeerID))

	go t.acceptLoop(ln)
	return nil
}

// Stop closes the listener. Established streams are torn down by their
// owners.
func (t *TCP) Stop() {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		ln := t.listener
		t.mu.Unlock()
		if ln != nil {
			_ = ln.Close()
		}
	})
}

func (t *TCP) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
			}
			t.log.Warn("accept failed", zap.Error(err))
			return
		}
		go t.handleInbound(conn)
	}
}

func (t *TCP) handleInbound(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))

	dec := wire.NewDecoder(conn)
	remote, err := t.readHello(dec, "")
	if err != nil {
		t.log.Warn("inbound handshake rejected", zap.String("addr", conn.RemoteAddr().String()), zap.Error(err))
		_ = conn.Close()
		return
	}

	t.mu.Lock()
	h, ok := t.handlers[remote.Protocol]
	if ok && remote.ListenAddr != "" {
		t.book[remote.PeerID] = remote.ListenAddr
	}
	t.mu.Unlock()
	if !ok {
		t.log.Warn("no handler for protocol", zap.String("protocol", remote.Protocol), zap.String("peer", remote.PeerID))
		_ = conn.Close()
		return
	}

	if err := t.writeHello(conn, remote.Protocol); err != nil {
		t.log.Warn("inbound handshake reply failed", zap.Error(err))
		_ = conn.Close()
		return
	}
	_ = conn.SetDeadline(time.Time{})

	stream := t.track(conn, dec, remote.PeerID)
	t.log.Debug("inbound stream accepted",
		zap.String("peer", remote.PeerID),
		zap.String("protocol", remote.Protocol))

	go func() {
		h(stream, remote.PeerID)
		_ = stream.Close()
	}()
}

// OpenStream dials peerID for the named protocol. The peer must be in
// the address book (configured statically or learned from an inbound
// hello).
func (t *TCP) OpenStream(ctx context.Context, peerID, protocol string) (io.ReadWriteCloser, error) {
	t.mu.Lock()
	addr, ok := t.book[peerID]
	t.mu.Unlock()
	if !ok {
		return nil, &DialError{Peer: peerID, Err: errors.New("no known address")}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &DialError{Peer: peerID, Err: err}
	}

	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	if err := t.writeHello(conn, protocol); err != nil {
		_ = conn.Close()
		return nil, &DialError{Peer: peerID, Err: err}
	}
	dec := wire.NewDecoder(conn)
	remote, err := t.readHello(dec, peerID)
	if err != nil {
		_ = conn.Close()
		return nil, &DialError{Peer: peerID, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return t.track(conn, dec, remote.PeerID), nil
}

// hello is the handshake record opening every connection, both ways.
type hello struct {
	PeerID     string `json:"peer_id"`
	Protocol   string `json:"protocol"`
	PublicKey  []byte `json:"public_key"`
	Nonce      []byte `json:"nonce"`
	Signature  []byte `json:"signature"`
	ListenAddr string `json:"listen_addr,omitempty"`
}

func helloPayload(peerID, protocol string, nonce []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(peerID)
	buf.WriteString(protocol)
	buf.Write(nonce)
	return buf.Bytes()
}

func (t *TCP) writeHello(w io.Writer, protocol string) error {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	h := hello{
		PeerID:     t.identity.PeerID,
		Protocol:   protocol,
		PublicKey:  t.identity.PublicKey,
		Nonce:      nonce,
		Signature:  ed25519.Sign(t.identity.PrivateKey, helloPayload(t.identity.PeerID, protocol, nonce)),
		ListenAddr: t.advertiseAddr(),
	}
	payload, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return wire.NewEncoder(w).Encode(payload)
}

// readHello reads and verifies the remote hello. When wantPeer is
// non-empty the remote identity must match it.
func (t *TCP) readHello(dec *wire.Decoder, wantPeer string) (*hello, error) {
	payload, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	var h hello
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, fmt.Errorf("parse hello: %w", err)
	}
	if len(h.PublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("hello public key must be %d bytes", ed25519.PublicKeySize)
	}
	if DeriveID(h.PublicKey) != h.PeerID {
		return nil, errors.New("hello peer id does not match public key")
	}
	if !ed25519.Verify(ed25519.PublicKey(h.PublicKey), helloPayload(h.PeerID, h.Protocol, h.Nonce), h.Signature) {
		return nil, errors.New("hello signature invalid")
	}
	if wantPeer != "" && h.PeerID != wantPeer {
		return nil, fmt.Errorf("dialed %s but reached %s", wantPeer, h.PeerID)
	}
	return &h, nil
}

func (t *TCP) advertiseAddr() string {
	addrs := t.LocalAddrs()
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

// track wraps a connection so closing the last live stream to a peer
// fires the disconnect callbacks, once per disconnect. Reads go through
// the handshake decoder: protocol bytes that arrived in the same
// segment as the hello sit in its buffer and must not be skipped.
func (t *TCP) track(conn net.Conn, dec *wire.Decoder, peerID string) io.ReadWriteCloser {
	t.mu.Lock()
	t.streams[peerID]++
	t.mu.Unlock()
	return &trackedConn{Conn: conn, r: dec.Reader(), transport: t, peer: peerID}
}

type trackedConn struct {
	net.Conn
	r         io.Reader
	transport *TCP
	peer      string
	once      sync.Once
}

func (c *trackedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *trackedConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.Conn.Close()
		t := c.transport
		t.mu.Lock()
		t.streams[c.peer]--
		last := t.streams[c.peer] <= 0
		if last {
			delete(t.streams, c.peer)
		}
		fns := append([]func(string){}, t.onDisc...)
		t.mu.Unlock()
		if last {
			for _, fn := range fns {
				fn(c.peer)
			}
		}
	})
	return err
}
