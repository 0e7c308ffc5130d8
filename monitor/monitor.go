// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlinePlayers       prometheus.Gauge
	LobbySize           prometheus.Gauge
	ActiveBattles       prometheus.Gauge
	PendingChallenges   prometheus.Gauge
	MessagesReceived    *prometheus.CounterVec
	HandlerErrors       *prometheus.CounterVec
	RejectedConnections *prometheus.CounterVec
	Challenges          *prometheus.CounterVec
	MessageLatency      prometheus.Histogram
}

func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected clients",
		}),
		LobbySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lobby_players",
			Help:      "Number of lobby entries",
		}),
		ActiveBattles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_battles",
			Help:      "Number of active battles",
		}),
		PendingChallenges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_challenges",
			Help:      "Number of challenges waiting for an answer",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound events",
		}, []string{"event"}),
		HandlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Rejected or failed inbound events",
		}, []string{"kind"}),
		RejectedConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "Connections refused at the handshake",
		}, []string{"reason"}),
		Challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_total",
			Help:      "Challenge outcomes",
		}, []string{"outcome"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Inbound event processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	registerer.MustRegister(
		m.OnlinePlayers,
		m.LobbySize,
		m.ActiveBattles,
		m.PendingChallenges,
		m.MessagesReceived,
		m.HandlerErrors,
		m.RejectedConnections,
		m.Challenges,
		m.MessageLatency,
	)

	return m
}

// Monitor owns its registry, so several can coexist in one process. All
// methods are safe on a nil *Monitor.
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

var publishOnce sync.Once

func NewMonitor(namespace string) *Monitor {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Monitor{
		metrics:   NewMetrics(namespace, registry),
		registry:  registry,
		startTime: time.Now(),
	}

	// expvar names are process-global; the first monitor owns them.
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})

	return m
}

// Handler serves the Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Metrics exposes the raw collectors.
func (m *Monitor) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

func (m *Monitor) IncOnlinePlayers() {
	if m == nil {
		return
	}
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	if m == nil {
		return
	}
	m.metrics.OnlinePlayers.Dec()
}

// SetMatchmaking records the size of the lobby and battle tables.
func (m *Monitor) SetMatchmaking(lobby, pending, active int) {
	if m == nil {
		return
	}
	m.metrics.LobbySize.Set(float64(lobby))
	m.metrics.PendingChallenges.Set(float64(pending))
	m.metrics.ActiveBattles.Set(float64(active))
}

func (m *Monitor) IncMessagesReceived(event string) {
	if m == nil {
		return
	}
	m.metrics.MessagesReceived.WithLabelValues(event).Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) IncHandlerError(kind string) {
	if m == nil {
		return
	}
	m.metrics.HandlerErrors.WithLabelValues(kind).Inc()
}

func (m *Monitor) IncRejectedConnection(reason string) {
	if m == nil {
		return
	}
	m.metrics.RejectedConnections.WithLabelValues(reason).Inc()
}

func (m *Monitor) IncChallenge(outcome string) {
	if m == nil {
		return
	}
	m.metrics.Challenges.WithLabelValues(outcome).Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.MessageLatency.Observe(duration.Seconds())
}
