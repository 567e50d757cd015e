package cellstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/cellstore/internal/metrics"
)

// Recorder receives store activity counts. Implementations must be safe for
// concurrent use and must not call back into the store.
type Recorder interface {
	// EventDispatched is called once per Dispatch with its outcome.
	EventDispatched(event string, elapsed time.Duration, err error)

	// UpdateRetried is called each time a reducer result is discarded
	// because the state changed while the reducer ran.
	UpdateRetried()

	// SubscriberNotified is called before each Notify call.
	SubscriberNotified(sub string)
}

type nopRecorder struct{}

func (nopRecorder) EventDispatched(string, time.Duration, error) {}
func (nopRecorder) UpdateRetried()                               {}
func (nopRecorder) SubscriberNotified(string)                    {}

// PrometheusRecorder is a [Recorder] backed by Prometheus metrics. It also
// records serving-layer activity (connected clients, dropped pushes, feed
// polls) when passed to [Serve] with [WithMetrics].
type PrometheusRecorder = metrics.Metrics

// NewPrometheusRecorder returns a [Recorder] backed by Prometheus metrics
// registered on reg under the "cellstore" namespace. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	return metrics.New(metrics.Config{Registry: reg})
}
