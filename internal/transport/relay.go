package transport

import (
	"context"
	"net"
	"time"

	"github.com/msadley/Basilisk-sub000/internal/bus"
	"go.uber.org/zap"
)

const relayDialTimeout = 5 * time.Second

// RelayMonitor probes the configured relay address and publishes
// relay.found / relay.lost events when reachability changes. The relay
// itself is an external intermediary; all this node needs to know is
// whether it is there.
type RelayMonitor struct {
	addr     string
	interval time.Duration
	bus      *bus.Bus
	log      *zap.Logger
	cancel   context.CancelFunc

	reachable bool
	probed    bool
}

// NewRelayMonitor builds a monitor for the given relay address. An empty
// address disables monitoring.
func NewRelayMonitor(addr string, interval time.Duration, b *bus.Bus, log *zap.Logger) *RelayMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RelayMonitor{addr: addr, interval: interval, bus: b, log: log}
}

// Ping measures one round trip to the relay.
func (m *RelayMonitor) Ping(ctx context.Context) (time.Duration, error) {
	d := net.Dialer{Timeout: relayDialTimeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return 0, &DialError{Peer: m.addr, Err: err}
	}
	_ = conn.Close()
	return time.Since(start), nil
}

// Addr returns the monitored relay address.
func (m *RelayMonitor) Addr() string { return m.addr }

// Start begins periodic probing. No-op without a configured relay.
func (m *RelayMonitor) Start(ctx context.Context) {
	if m.addr == "" {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	go m.loop(ctx)
}

// Stop ends probing.
func (m *RelayMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *RelayMonitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ticker.C:
			m.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *RelayMonitor) probe(ctx context.Context) {
	_, err := m.Ping(ctx)
	reachable := err == nil

	if m.probed && reachable == m.reachable {
		return
	}
	m.probed = true
	m.reachable = reachable

	kind := bus.KindRelayFound
	if !reachable {
		kind = bus.KindRelayLost
		m.log.Warn("relay unreachable", zap.String("relay", m.addr), zap.Error(err))
	} else {
		m.log.Info("relay reachable", zap.String("relay", m.addr))
	}
	m.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   bus.RelayStatus{Addr: m.addr},
	})
}
