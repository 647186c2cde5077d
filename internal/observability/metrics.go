package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "support_desk"

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal         *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
	ErrorsTotal           *prometheus.CounterVec
	TicketsCreated        prometheus.Counter
	TokenCollisions       prometheus.Counter
	NotificationsTotal    *prometheus.CounterVec
	NotificationsDropped  prometheus.Counter
	NotificationQueueSize prometheus.Gauge
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Error responses by route, method and error code",
		}, []string{"route", "method", "code"}),
		TicketsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_created_total",
			Help:      "Tickets successfully created",
		}),
		TokenCollisions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_token_collisions_total",
			Help:      "Ticket token candidates rejected because they were already taken",
		}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel and result",
		}, []string{"channel", "result"}),
		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Events dropped because the notification queue was full",
		}),
		NotificationQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_queue_depth",
			Help:      "Events waiting for a notification worker",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(route, method, code).Inc()
}

// RecordTicketCreated counts a created ticket.
func (m *Metrics) RecordTicketCreated() {
	if m == nil {
		return
	}
	m.TicketsCreated.Inc()
}

// RecordTokenCollision counts a single rejected token candidate.
func (m *Metrics) RecordTokenCollision() {
	if m == nil {
		return
	}
	m.TokenCollisions.Inc()
}

// RecordNotification counts a delivery attempt.
func (m *Metrics) RecordNotification(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.NotificationsTotal.WithLabelValues(channel, result).Inc()
}

// RecordNotificationDropped counts an event that could not be queued.
func (m *Metrics) RecordNotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

// SetNotificationQueueDepth reports the pending event count.
func (m *Metrics) SetNotificationQueueDepth(n int) {
	if m == nil {
		return
	}
	m.NotificationQueueSize.Set(float64(n))
}
