package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the tag server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Connection metrics
	ConnectionsAccepted prometheus.Counter
	ActiveConnections   prometheus.Gauge
	ReadTimeouts        prometheus.Counter

	// Message metrics
	MessagesReceived prometheus.Counter
	Commands         *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	SendErrors       prometheus.Counter
	RateLimited      prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagserver_connections_accepted_total",
			Help: "Total number of accepted TCP connections",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tagserver_active_connections",
			Help: "Current number of open client connections",
		}),
		ReadTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagserver_read_timeouts_total",
			Help: "Connections closed because the client stayed idle",
		}),
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagserver_messages_received_total",
			Help: "Total number of messages read from clients",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tagserver_commands_total",
			Help: "Messages handled, by command classification",
		}, []string{"command"}),
		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tagserver_command_duration_seconds",
			Help:    "Time spent producing a reply",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8), // 10µs to ~160ms
		}, []string{"command"}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagserver_send_errors_total",
			Help: "Replies that could not be written back",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagserver_rate_limited_total",
			Help: "Messages rejected by the per-connection rate limiter",
		}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsAccepted.Inc()
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) ReadTimedOut() {
	if m == nil {
		return
	}
	m.ReadTimeouts.Inc()
}

// MessageReceived counts every message read, executed or rate limited
func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

// ObserveCommand records one executed message of the given kind
func (m *Metrics) ObserveCommand(command string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.SendErrors.Inc()
}

func (m *Metrics) RateLimitHit() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
