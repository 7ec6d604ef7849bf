package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OracleMetrics captures calls to the proof oracle.
type OracleMetrics struct {
	calls        *prometheus.CounterVec
	latency      prometheus.Histogram
	entropy      prometheus.Histogram
	breakerState prometheus.Gauge
}

var (
	oracleOnce     sync.Once
	oracleRegistry *OracleMetrics
)

// Oracle returns the singleton oracle metrics registry.
func Oracle() *OracleMetrics {
	oracleOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "esim_oracle_calls_total",
				Help: "Proof oracle evaluations by outcome (valid, invalid, error).",
			}, []string{"outcome"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "esim_oracle_call_duration_seconds",
				Help:    "Latency of proof oracle evaluations including retries.",
				Buckets: prometheus.DefBuckets,
			}),
			entropy: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "esim_oracle_entropy_score",
				Help:    "Distribution of entropy scores returned by the oracle.",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100},
			}),
			breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "esim_oracle_breaker_open",
				Help: "1 while the oracle circuit breaker is open, 0 otherwise.",
			}),
		}
		prometheus.MustRegister(
			oracleRegistry.calls,
			oracleRegistry.latency,
			oracleRegistry.entropy,
			oracleRegistry.breakerState,
		)
	})
	return oracleRegistry
}

// ObserveCall records a completed evaluation.
func (m *OracleMetrics) ObserveCall(valid bool, entropy uint32, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe(duration.Seconds())
	switch {
	case err != nil:
		m.calls.WithLabelValues("error").Inc()
		return
	case valid:
		m.calls.WithLabelValues("valid").Inc()
	default:
		m.calls.WithLabelValues("invalid").Inc()
	}
	m.entropy.Observe(float64(entropy))
}

// SetBreakerOpen publishes the breaker state.
func (m *OracleMetrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.breakerState.Set(1)
		return
	}
	m.breakerState.Set(0)
}
