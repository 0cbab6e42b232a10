// Package metrics exposes event bridge counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sighting outcomes recorded by ObserveSighting
const (
	SightingDiscovered = "discovered"
	SightingUpdated    = "updated"
	SightingNotFound   = "not_found"
	SightingInvalid    = "invalid_address"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	sightings     *prometheus.CounterVec
	events        *prometheus.CounterVec
	eventsDropped prometheus.Counter
	peripherals   prometheus.Gauge
	subscribers   prometheus.Gauge
}

// New creates a fresh registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	sightings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blecentral",
		Name:      "sightings_total",
		Help:      "Sightings reported by the device driver, by outcome",
	}, []string{"result"})

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blecentral",
		Name:      "events_published_total",
		Help:      "Events published to subscribers, by kind",
	}, []string{"kind"})

	eventsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blecentral",
		Name:      "events_dropped_total",
		Help:      "Events overwritten in a subscriber buffer before being read",
	})

	peripherals := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blecentral",
		Name:      "peripherals",
		Help:      "Number of peripherals in the registry",
	})

	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blecentral",
		Name:      "subscribers",
		Help:      "Number of active event subscribers",
	})

	registry.MustRegister(sightings, events, eventsDropped, peripherals, subscribers)

	return &Metrics{
		registry:      registry,
		sightings:     sightings,
		events:        events,
		eventsDropped: eventsDropped,
		peripherals:   peripherals,
		subscribers:   subscribers,
	}
}

// ObserveSighting counts one sighting with the given outcome.
func (m *Metrics) ObserveSighting(result string) {
	if m == nil {
		return
	}
	m.sightings.WithLabelValues(result).Inc()
}

// ObserveEvent counts one published event of the given kind.
func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// AddDropped adds n overwritten events.
func (m *Metrics) AddDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsDropped.Add(float64(n))
}

// SetPeripherals records the registry size.
func (m *Metrics) SetPeripherals(n int) {
	if m == nil {
		return
	}
	m.peripherals.Set(float64(n))
}

// SetSubscribers records the number of live subscriptions.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
