package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveExchanges   prometheus.Gauge
	ExchangeEvents    *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	GenerationLatency prometheus.Histogram
	PacingDelay       prometheus.Histogram

	stageWindow *exchangeWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		stageWindow: newExchangeWindow(256),
		ActiveExchanges: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_exchanges",
			Help:      "Number of chat exchanges currently in flight.",
		}),
		ExchangeEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_events_total",
			Help:      "Chat exchange events by type.",
		}, []string{"event"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Collaborator errors by provider and operation.",
		}, []string{"provider", "op"}),
		GenerationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_ms",
			Help:      "Text generation latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000},
		}),
		PacingDelay: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pacing_delay_ms",
			Help:      "Artificial reveal delay applied before releasing a reply.",
			Buckets:   []float64{1000, 1500, 2000, 3000, 4000, 5000},
		}),
	}
}

func (m *Metrics) ObserveGenerationLatency(d time.Duration) {
	m.GenerationLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObservePacingDelay(d time.Duration) {
	m.PacingDelay.Observe(float64(d.Milliseconds()))
}

// ObserveExchangeStage records one stage latency in the rolling window.
func (m *Metrics) ObserveExchangeStage(stage string, d time.Duration) {
	if m.stageWindow == nil {
		return
	}
	m.stageWindow.Observe(stage, float64(d.Microseconds())/1000.0)
}

// ObserveExchangeIndicator counts a notable exchange condition, e.g.
// a reply degraded to text-only.
func (m *Metrics) ObserveExchangeIndicator(name string) {
	m.stageWindow.ObserveIndicator(name)
}

// SnapshotExchangeStages summarizes the rolling latency window.
func (m *Metrics) SnapshotExchangeStages() ExchangeSnapshot {
	if m.stageWindow == nil {
		return ExchangeSnapshot{}
	}
	return m.stageWindow.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
