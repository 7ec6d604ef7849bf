package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"esimchain/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by module and type.",
			}, []string{"module", "type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Emit implements events.Emitter so the registry can sit in the node's
// emitter fanout.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return
	}
	module, _, found := strings.Cut(eventType, ".")
	if !found {
		module = "unknown"
	}
	m.emitted.WithLabelValues(module, eventType).Inc()
}
