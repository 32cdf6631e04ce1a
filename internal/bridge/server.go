package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/msadley/Basilisk-sub000/internal/bus"
	"github.com/msadley/Basilisk-sub000/internal/metrics"
)

// Dispatcher executes one command and returns its correlated response,
// or nil when the command gets none.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) *Event
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one connected UI. Gorilla allows a single concurrent
// writer per connection, so every write goes through the mutex.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(evt Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(evt)
}

// ServerConfig carries the server's collaborators.
type ServerConfig struct {
	SocketPath string
	Orch       Dispatcher
	Bus        *bus.Bus
	Metrics    *metrics.Set
	Gatherer   prometheus.Gatherer
	Log        *zap.Logger
}

// Server exposes the orchestrator to local UIs over a unix-socket
// websocket. Commands arrive per client, responses go back on the
// same connection, and node events fan out to every client.
type Server struct {
	cfg ServerConfig
	log *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}

	srv   *http.Server
	unsub func()
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewServer builds a server; Start brings it up.
func NewServer(cfg ServerConfig) *Server {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		log:     log,
		clients: make(map[*client]struct{}),
		done:    make(chan struct{}),
	}
}

// Start binds the unix socket and begins serving. The socket file is
// recreated with 0600 so only the owning user can reach the bridge.
func (s *Server) Start() error {
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		ln.Close()
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/ws", s.handleWS)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	s.srv = &http.Server{Handler: router}

	events, unsub := s.cfg.Bus.Subscribe("", 64)
	s.unsub = unsub
	s.wg.Add(1)
	go s.pumpEvents(events)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("bridge server stopped", zap.Error(err))
		}
	}()

	s.log.Info("bridge listening", zap.String("socket", s.cfg.SocketPath))
	return nil
}

// Stop shuts the server down and disconnects every client.
func (s *Server) Stop(ctx context.Context) error {
	close(s.done)
	if s.unsub != nil {
		s.unsub()
	}
	var err error
	if s.srv != nil {
		err = s.srv.Shutdown(ctx)
	}

	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
		delete(s.clients, c)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	cl := &client{conn: conn}
	s.addClient(cl)
	defer s.removeClient(cl)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.log.Warn("undecodable bridge command", zap.Error(err))
			continue
		}
		resp := s.cfg.Orch.Dispatch(c.Request.Context(), cmd)
		if resp == nil {
			continue
		}
		if err := cl.write(*resp); err != nil {
			return
		}
	}
}

func (s *Server) addClient(cl *client) {
	s.mu.Lock()
	s.clients[cl] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.cfg.Metrics.SetBridgeClients(n)
}

func (s *Server) removeClient(cl *client) {
	cl.conn.Close()
	s.mu.Lock()
	delete(s.clients, cl)
	n := len(s.clients)
	s.mu.Unlock()
	s.cfg.Metrics.SetBridgeClients(n)
}

// pumpEvents translates bus events into broadcast frames.
func (s *Server) pumpEvents(events <-chan bus.Event) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if out, ok := translate(evt); ok {
				s.broadcast(out)
			}
		}
	}
}

// translate maps a bus event to its broadcast frame. message_saved
// covers self-authored sends as well as inbound messages: every UI
// client, including the sender's, renders new messages from this
// broadcast.
func translate(evt bus.Event) (Event, bool) {
	switch evt.Kind {
	case bus.KindMessageSaved:
		p := evt.Payload.(bus.MessageSaved)
		return Event{Type: EvtMessageReceived, Payload: p.Message}, true
	case bus.KindChatStarted:
		p := evt.Payload.(bus.ChatStarted)
		return Event{Type: EvtChatSpawned, Payload: p.Chat}, true
	case bus.KindRelayFound:
		p := evt.Payload.(bus.RelayStatus)
		return Event{Type: EvtRelayFound, Payload: map[string]string{"addr": p.Addr}}, true
	case bus.KindRelayLost:
		p := evt.Payload.(bus.RelayStatus)
		return Event{Type: EvtRelayLost, Payload: map[string]string{"addr": p.Addr}}, true
	case bus.KindNodeStarted:
		p := evt.Payload.(bus.NodeStarted)
		return Event{Type: EvtNodeStarted, Payload: map[string]any{
			"id":        p.ID,
			"addresses": p.Addresses,
		}}, true
	default:
		return Event{}, false
	}
}

func (s *Server) broadcast(evt Event) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.write(evt); err != nil {
			s.log.Warn("broadcast write failed", zap.Error(err))
			s.removeClient(c)
		}
	}
}
