package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chat"

// Metrics holds the Prometheus collectors of the chat room.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Connections      prometheus.Gauge
	OnlineUsers      prometheus.Gauge
	StoredMessages   prometheus.Gauge
	MessagesAppended prometheus.Counter
	EvictedMessages  prometheus.Counter
	MessagesDeleted  prometheus.Counter
	MessagesEdited   prometheus.Counter
	Broadcasts       prometheus.Counter
	DeliveryFailures prometheus.Counter
	DroppedFrames    *prometheus.CounterVec
	StoreErrors      *prometheus.CounterVec
}

// NewMetrics registers every collector on reg.
// The server and each test pass their own registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open WebSocket connections, anonymous included.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Distinct authenticated users in the last presence announcement.",
		}),
		StoredMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_messages",
			Help:      "Messages in the log at the last heartbeat.",
		}),
		MessagesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages persisted to the log.",
		}),
		EvictedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_evicted_total",
			Help:      "Messages removed by retention.",
		}),
		MessagesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Messages removed by moderators.",
		}),
		MessagesEdited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_edited_total",
			Help:      "Messages whose content was replaced.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Events fanned out to the room.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Peers dropped because a send failed or timed out.",
		}),
		DroppedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Inbound frames ignored, by reason.",
		}, []string{"reason"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed message log operations, by operation.",
		}, []string{"operation"}),
	}
	reg.MustRegister(
		m.Connections,
		m.OnlineUsers,
		m.StoredMessages,
		m.MessagesAppended,
		m.EvictedMessages,
		m.MessagesDeleted,
		m.MessagesEdited,
		m.Broadcasts,
		m.DeliveryFailures,
		m.DroppedFrames,
		m.StoreErrors,
	)
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

func (m *Metrics) SetOnline(n int) {
	if m == nil {
		return
	}
	m.OnlineUsers.Set(float64(n))
}

func (m *Metrics) SetStored(n int) {
	if m == nil {
		return
	}
	m.StoredMessages.Set(float64(n))
}

func (m *Metrics) MessageAppended() {
	if m == nil {
		return
	}
	m.MessagesAppended.Inc()
}

// MessagesEvicted satisfies repositories.RetentionObserver.
func (m *Metrics) MessagesEvicted(n int) {
	if m == nil {
		return
	}
	m.EvictedMessages.Add(float64(n))
}

func (m *Metrics) MessageDeleted() {
	if m == nil {
		return
	}
	m.MessagesDeleted.Inc()
}

func (m *Metrics) MessageEdited() {
	if m == nil {
		return
	}
	m.MessagesEdited.Inc()
}

func (m *Metrics) Broadcast(failures int) {
	if m == nil {
		return
	}
	m.Broadcasts.Inc()
	m.DeliveryFailures.Add(float64(failures))
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.DroppedFrames.WithLabelValues(reason).Inc()
}

func (m *Metrics) StoreFailed(operation string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(operation).Inc()
}
