package engine

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the ordering engine. A nil
// *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion metrics
	UtterancesTotal *prometheus.CounterVec
	HistoryPolls    prometheus.Counter

	// Order metrics
	MutationsTotal      *prometheus.CounterVec
	CompletionsTotal    *prometheus.CounterVec
	SuppressedTotal     *prometheus.CounterVec
	CompletionOrderSize prometheus.Histogram

	// Session metrics
	ConnectsTotal   *prometheus.CounterVec
	ConnectDuration prometheus.Histogram

	// Kitchen metrics
	DispatchesTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "kiosk"
	}

	registry := prometheus.NewRegistry()

	utterancesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances seen, by speaker and dedup verdict",
		},
		[]string{"speaker", "verdict"},
	)

	historyPolls := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_polls_total",
			Help:      "Conversation history reads",
		},
	)

	mutationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_mutations_total",
			Help:      "Order state changes, by extraction strategy",
		},
		[]string{"strategy"},
	)

	completionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_completions_total",
			Help:      "Completed orders, by language",
		},
		[]string{"language"},
	)

	suppressedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_completions_suppressed_total",
			Help:      "Completion signals that did not fire, by reason",
		},
		[]string{"reason"},
	)

	completionOrderSize := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_completion_items",
			Help:      "Item count of completed orders",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		},
	)

	connectsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_connects_total",
			Help:      "Session start attempts, by status",
		},
		[]string{"status"},
	)

	connectDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_connect_duration_seconds",
			Help:      "Time to obtain a live session",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
	)

	dispatchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kitchen_dispatches_total",
			Help:      "Completed orders handed to the kitchen, by status",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		utterancesTotal,
		historyPolls,
		mutationsTotal,
		completionsTotal,
		suppressedTotal,
		completionOrderSize,
		connectsTotal,
		connectDuration,
		dispatchesTotal,
	)

	return &Metrics{
		registry:            registry,
		UtterancesTotal:     utterancesTotal,
		HistoryPolls:        historyPolls,
		MutationsTotal:      mutationsTotal,
		CompletionsTotal:    completionsTotal,
		SuppressedTotal:     suppressedTotal,
		CompletionOrderSize: completionOrderSize,
		ConnectsTotal:       connectsTotal,
		ConnectDuration:     connectDuration,
		DispatchesTotal:     dispatchesTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordUtterance(speaker, verdict string) {
	if m == nil {
		return
	}
	m.UtterancesTotal.WithLabelValues(speaker, verdict).Inc()
}

func (m *Metrics) RecordHistoryPoll() {
	if m == nil {
		return
	}
	m.HistoryPolls.Inc()
}

func (m *Metrics) RecordMutation(strategy string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(strategy).Inc()
}

func (m *Metrics) RecordCompletion(language string, items int) {
	if m == nil {
		return
	}
	m.CompletionsTotal.WithLabelValues(language).Inc()
	m.CompletionOrderSize.Observe(float64(items))
}

func (m *Metrics) RecordSuppressed(reason string) {
	if m == nil {
		return
	}
	m.SuppressedTotal.WithLabelValues(reason).Inc()
}

// RecordConnect records a session start attempt.
func (m *Metrics) RecordConnect(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ConnectsTotal.WithLabelValues(status).Inc()
	m.ConnectDuration.Observe(duration.Seconds())
}

// RecordDispatch records a kitchen hand-off.
func (m *Metrics) RecordDispatch(status string) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(status).Inc()
}
