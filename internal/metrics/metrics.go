package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set holds the daemon's counters and gauges. A nil *Set is a no-op so
// tests can skip metric wiring.
type Set struct {
	messagesReceived prometheus.Counter
	messagesSent     prometheus.Counter
	senderMismatches prometheus.Counter
	dialFailures     prometheus.Counter
	liveConnections  prometheus.Gauge
	bridgeClients    prometheus.Gauge
}

// New registers the metric set on reg (DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Set {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Set{
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "basilisk_messages_received_total",
			Help: "Chat records accepted from peers.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "basilisk_messages_sent_total",
			Help: "Chat records handed to peer connections.",
		}),
		senderMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "basilisk_sender_mismatches_total",
			Help: "Frames discarded because the declared sender did not match the authenticated peer.",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "basilisk_dial_failures_total",
			Help: "Failed attempts to establish an outbound chat connection.",
		}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "basilisk_chat_connections",
			Help: "Outbound chat connections currently cached.",
		}),
		bridgeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "basilisk_bridge_clients",
			Help: "UI bridge clients currently connected.",
		}),
	}

	reg.MustRegister(
		m.messagesReceived,
		m.messagesSent,
		m.senderMismatches,
		m.dialFailures,
		m.liveConnections,
		m.bridgeClients,
	)
	return m
}

func (m *Set) RecordMessageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

func (m *Set) RecordMessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Set) RecordSenderMismatch() {
	if m == nil {
		return
	}
	m.senderMismatches.Inc()
}

func (m *Set) RecordDialFailure() {
	if m == nil {
		return
	}
	m.dialFailures.Inc()
}

func (m *Set) SetLiveConnections(n int) {
	if m == nil {
		return
	}
	m.liveConnections.Set(float64(n))
}

func (m *Set) SetBridgeClients(n int) {
	if m == nil {
		return
	}
	m.bridgeClients.Set(float64(n))
}
