package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines the interface for metrics collection
type Collector interface {
	// Participant metrics
	ParticipantRegistered(role string)
	ParticipantDisconnected(role string)

	// Signaling metrics
	MessageReceived(messageType string, sizeBytes int)
	MessageSent(messageType string, sizeBytes int)
	MessageError(messageType, errorType string)

	// Call metrics
	CallDispatched(callType string)
	CallAccepted(callType string)
	CallTimedOut()
	CallEnded(durationSeconds float64)

	// Handler returns an HTTP handler for the metrics endpoint
	Handler() http.Handler
}

// PrometheusCollector implements the Collector interface using Prometheus
type PrometheusCollector struct {
	activeParticipants *prometheus.GaugeVec
	registrations      *prometheus.CounterVec
	disconnects        *prometheus.CounterVec

	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	messageErrors    *prometheus.CounterVec
	messageSize      *prometheus.HistogramVec

	callsDispatched *prometheus.CounterVec
	callsAccepted   *prometheus.CounterVec
	callsTimedOut   prometheus.Counter
	callDuration    prometheus.Histogram
}

// NewPrometheusCollector creates a new PrometheusCollector
func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		activeParticipants: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_active_participants",
				Help: "Number of connected participants by role",
			},
			[]string{"role"},
		),

		registrations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_registrations_total",
				Help: "Total number of participant registrations",
			},
			[]string{"role"},
		),

		disconnects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_disconnects_total",
				Help: "Total number of participant disconnections",
			},
			[]string{"role"},
		),

		messagesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_received_total",
				Help: "Total number of signaling messages received",
			},
			[]string{"message_type"},
		),

		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_sent_total",
				Help: "Total number of signaling messages sent",
			},
			[]string{"message_type"},
		),

		messageErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_message_errors_total",
				Help: "Total number of signaling message errors",
			},
			[]string{"message_type", "error_type"},
		),

		messageSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_message_size_bytes",
				Help:    "Size of signaling messages in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 10), // 64B to 32KB
			},
			[]string{"message_type", "direction"},
		),

		callsDispatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_calls_dispatched_total",
				Help: "Total number of call requests dispatched to admins",
			},
			[]string{"call_type"},
		),

		callsAccepted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_calls_accepted_total",
				Help: "Total number of calls accepted",
			},
			[]string{"call_type"},
		),

		callsTimedOut: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_calls_timed_out_total",
			Help: "Total number of call requests that rang out unanswered",
		}),

		callDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_call_duration_seconds",
			Help:    "Duration of completed calls in seconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12), // 5s to ~5.5h
		}),
	}
}

// ParticipantRegistered records a participant registration
func (c *PrometheusCollector) ParticipantRegistered(role string) {
	c.registrations.WithLabelValues(role).Inc()
	c.activeParticipants.WithLabelValues(role).Inc()
}

// ParticipantDisconnected records a participant disconnection
func (c *PrometheusCollector) ParticipantDisconnected(role string) {
	c.disconnects.WithLabelValues(role).Inc()
	c.activeParticipants.WithLabelValues(role).Dec()
}

// MessageReceived records a signaling message being received
func (c *PrometheusCollector) MessageReceived(messageType string, sizeBytes int) {
	c.messagesReceived.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues(messageType, "received").Observe(float64(sizeBytes))
}

// MessageSent records a signaling message being sent
func (c *PrometheusCollector) MessageSent(messageType string, sizeBytes int) {
	c.messagesSent.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues(messageType, "sent").Observe(float64(sizeBytes))
}

// MessageError records a signaling message error
func (c *PrometheusCollector) MessageError(messageType, errorType string) {
	c.messageErrors.WithLabelValues(messageType, errorType).Inc()
}

// CallDispatched records a call request being fanned out
func (c *PrometheusCollector) CallDispatched(callType string) {
	c.callsDispatched.WithLabelValues(callType).Inc()
}

// CallAccepted records a call being accepted
func (c *PrometheusCollector) CallAccepted(callType string) {
	c.callsAccepted.WithLabelValues(callType).Inc()
}

// CallTimedOut records a call request ringing out
func (c *PrometheusCollector) CallTimedOut() {
	c.callsTimedOut.Inc()
}

// CallEnded records a completed call's duration
func (c *PrometheusCollector) CallEnded(durationSeconds float64) {
	c.callDuration.Observe(durationSeconds)
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// NoopCollector discards all metrics. Used in tests.
type NoopCollector struct{}

func NewNoopCollector() *NoopCollector { return &NoopCollector{} }

func (*NoopCollector) ParticipantRegistered(string)   {}
func (*NoopCollector) ParticipantDisconnected(string) {}
func (*NoopCollector) MessageReceived(string, int)    {}
func (*NoopCollector) MessageSent(string, int)        {}
func (*NoopCollector) MessageError(string, string)    {}
func (*NoopCollector) CallDispatched(string)          {}
func (*NoopCollector) CallAccepted(string)            {}
func (*NoopCollector) CallTimedOut()                  {}
func (*NoopCollector) CallEnded(float64)              {}
func (*NoopCollector) Handler() http.Handler          { return http.NotFoundHandler() }
