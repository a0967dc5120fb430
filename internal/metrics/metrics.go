package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "market_stream"

// Poll outcomes.
const (
	PollOK      = "ok"
	PollSkipped = "skipped"
	PollError   = "error"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	connections      prometheus.Gauge
	activeSymbols    prometheus.Gauge
	messagesSent     prometheus.Counter
	sendFailures     prometheus.Counter
	evictions        *prometheus.CounterVec
	pollTicks        *prometheus.CounterVec
	fetchDuration    prometheus.Histogram
	quotesDispatched *prometheus.CounterVec
	quotesWritten    prometheus.Counter
	writerErrors     prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg creates
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live WebSocket connections.",
		}),
		activeSymbols: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_symbols",
			Help:      "Symbols with at least one subscriber.",
		}),
		messagesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages queued for delivery to clients.",
		}),
		sendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Sends that failed and triggered eviction.",
		}),
		evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Connections removed, by reason.",
		}, []string{"reason"}),
		pollTicks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Polling driver ticks, by outcome.",
		}, []string{"outcome"}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of one batched quote fetch.",
			Buckets:   prometheus.DefBuckets,
		}),
		quotesDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_dispatched_total",
			Help:      "Per-symbol payloads broadcast, by kind.",
		}, []string{"kind"}),
		quotesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_written_total",
			Help:      "Quote rows inserted into the time-series store.",
		}),
		writerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_errors_total",
			Help:      "Failed quote batch inserts.",
		}),
	}
}

// Handler serves the metrics in g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed(reason string) {
	if m == nil {
		return
	}
	m.connections.Dec()
	m.evictions.WithLabelValues(reason).Inc()
}

func (m *Metrics) MessagesSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messagesSent.Add(float64(n))
}

func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

func (m *Metrics) SetActiveSymbols(n int) {
	if m == nil {
		return
	}
	m.activeSymbols.Set(float64(n))
}

func (m *Metrics) PollTick(outcome string) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
}

// QuoteDispatched counts one broadcast payload; isError selects the "error" kind.
func (m *Metrics) QuoteDispatched(isError bool) {
	if m == nil {
		return
	}
	kind := "quote"
	if isError {
		kind = "error"
	}
	m.quotesDispatched.WithLabelValues(kind).Inc()
}

func (m *Metrics) QuotesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.quotesWritten.Add(float64(n))
}

func (m *Metrics) WriterError() {
	if m == nil {
		return
	}
	m.writerErrors.Inc()
}
