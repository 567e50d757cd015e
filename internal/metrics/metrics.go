// Package metrics exposes cellstore activity as Prometheus metrics.
//
// A single [Metrics] value serves both the store (dispatch, retry and
// notification counts) and the serving layer (connected clients, dropped
// pushes, feed polls). All metrics are registered on the configured
// registerer when [New] is called.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jpalmerr/cellstore/internal/errs"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "cellstore"

// Config configures [New].
type Config struct {
	// Namespace is the metrics namespace. Defaults to "cellstore".
	Namespace string

	// Registry is where metrics are registered.
	// Defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Buckets are the histogram buckets for dispatch duration.
	// Defaults to prometheus.DefBuckets.
	Buckets []float64
}

// Metrics records store and server activity.
type Metrics struct {
	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	retries          prometheus.Counter
	notifications    *prometheus.CounterVec
	clients          prometheus.Gauge
	dropped          prometheus.Counter
	feedPolls        *prometheus.CounterVec
}

// New creates and registers the metrics.
// Panics if metrics with the same names are already registered on the
// registry, like promauto.
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if cfg.Buckets == nil {
		cfg.Buckets = prometheus.DefBuckets
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "dispatches_total",
			Help:      "Events dispatched, by event name and result.",
		}, []string{"event", "result"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from dispatch to the last notification, in seconds.",
			Buckets:   cfg.Buckets,
		}, []string{"event"}),

		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "update_retries_total",
			Help:      "Reducer results discarded because the state changed while they ran.",
		}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "notifications_total",
			Help:      "Subscriber notifications delivered, by subscription name.",
		}, []string{"subscription"}),

		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "connected_clients",
			Help:      "Streaming clients (SSE and WebSocket) currently connected.",
		}),

		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "dropped_pushes_total",
			Help:      "Notifications dropped because a client buffer was full.",
		}),

		feedPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "feed_polls_total",
			Help:      "Feed polls, by feed name and result.",
		}, []string{"feed", "result"}),
	}
}

// EventDispatched records one dispatch.
func (m *Metrics) EventDispatched(event string, elapsed time.Duration, err error) {
	m.dispatches.WithLabelValues(event, dispatchResult(err)).Inc()
	m.dispatchDuration.WithLabelValues(event).Observe(elapsed.Seconds())
}

// UpdateRetried records one discarded reducer result.
func (m *Metrics) UpdateRetried() {
	m.retries.Inc()
}

// SubscriberNotified records one Notify call.
func (m *Metrics) SubscriberNotified(sub string) {
	m.notifications.WithLabelValues(sub).Inc()
}

// ClientConnected increments the connected client gauge.
func (m *Metrics) ClientConnected() {
	m.clients.Inc()
}

// ClientDisconnected decrements the connected client gauge.
func (m *Metrics) ClientDisconnected() {
	m.clients.Dec()
}

// PushDropped records a notification dropped for a slow client.
func (m *Metrics) PushDropped() {
	m.dropped.Inc()
}

// FeedPolled records one feed poll.
func (m *Metrics) FeedPolled(feed string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.feedPolls.WithLabelValues(feed, result).Inc()
}

// dispatchResult maps an error to a low-cardinality label value.
func dispatchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, errs.ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, errs.ErrInvalidArgs):
		return "invalid_args"
	default:
		return "error"
	}
}
