package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stage labels.
const (
	StageExtract = "extract"
	StageGate    = "gate"
	StageRank    = "rank"
	StageJoin    = "join"
	StageFilter  = "filter"
)

// Metrics records recommendation pipeline activity on its own registry.
type Metrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	stageSize     *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	embedRequests *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors plus Go runtime collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "recommendation"
	}
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"stage"}),
		stageSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_output_size",
			Help:      "Number of items leaving each pipeline stage.",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 150, 300, 600},
		}, []string{"stage"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Recommendation requests by terminal state.",
		}, []string{"state"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"result"}),
		embedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Embedding service calls by outcome.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.stageDuration,
		m.stageSize,
		m.outcomes,
		m.cacheLookups,
		m.embedRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveStage records a stage's latency and output size. Safe on a nil receiver.
func (m *Metrics) ObserveStage(stage string, d time.Duration, size int) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.stageSize.WithLabelValues(stage).Observe(float64(size))
}

// RecordOutcome counts a request by its terminal state.
func (m *Metrics) RecordOutcome(state string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(state).Inc()
}

// RecordCache counts a cache hit or miss.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordEmbedding counts an embedding call as ok or error.
func (m *Metrics) RecordEmbedding(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.embedRequests.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
