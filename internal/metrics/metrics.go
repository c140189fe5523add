// Package metrics defines the Prometheus collectors for factlens.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "factlens"

// Metrics holds all collectors. Each instance owns its registry, so several
// services (or tests) can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Prediction metrics
	PredictionsTotal     *prometheus.CounterVec
	PredictionConfidence *prometheus.HistogramVec
	UncertainTotal       prometheus.Counter
	ModelLoaded          prometheus.Gauge

	// Analysis pipeline metrics
	AnalyzeDuration *prometheus.HistogramVec
	ExtractDuration prometheus.Histogram
	ErrorsTotal     *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    prometheus.Counter
	WebsocketClients    prometheus.Gauge

	// Feed watcher metrics
	FeedItemsTotal *prometheus.CounterVec
	FeedRunsTotal  *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.initPredictionMetrics(factory)
	m.initPipelineMetrics(factory)
	m.initHTTPMetrics(factory)
	m.initFeedMetrics(factory)

	return m
}

func (m *Metrics) initPredictionMetrics(factory promauto.Factory) {
	m.PredictionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "predictions_total",
			Help:      "Total number of predictions by label and origin",
		},
		[]string{"label", "origin"},
	)

	m.PredictionConfidence = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "prediction_confidence_percent",
			Help:      "Confidence of labelled predictions in percent",
			Buckets:   []float64{50, 60, 65, 70, 75, 80, 85, 90, 95, 100},
		},
		[]string{"label"},
	)

	m.UncertainTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "predictions_uncertain_total",
			Help:      "Predictions where neither class cleared the threshold",
		},
	)

	m.ModelLoaded = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "model_loaded",
			Help:      "1 when the model artifacts are loaded",
		},
	)
}

func (m *Metrics) initPipelineMetrics(factory promauto.Factory) {
	m.AnalyzeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "analyze_duration_seconds",
			Help:      "End-to-end analysis duration",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"origin"},
	)

	m.ExtractDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "extract_duration_seconds",
			Help:      "Article download and parse duration",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	m.ErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Errors by component and code",
		},
		[]string{"component", "code"},
	)
}

func (m *Metrics) initHTTPMetrics(factory promauto.Factory) {
	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.RateLimitedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
	)

	m.WebsocketClients = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "websocket_clients",
			Help:      "Connected live-stream clients",
		},
	)
}

func (m *Metrics) initFeedMetrics(factory promauto.Factory) {
	m.FeedItemsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "feeds",
			Name:      "items_total",
			Help:      "Feed items by result (analyzed, skipped, failed)",
		},
		[]string{"result"},
	)

	m.FeedRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "feeds",
			Name:      "runs_total",
			Help:      "Feed fetches by status",
		},
		[]string{"status"},
	)
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePrediction records one prediction. Error outcomes only count
// towards PredictionsTotal.
func (m *Metrics) ObservePrediction(label, origin string, confidence float64, uncertain bool) {
	m.PredictionsTotal.WithLabelValues(label, origin).Inc()
	if label == "Error" {
		return
	}
	m.PredictionConfidence.WithLabelValues(label).Observe(confidence)
	if uncertain {
		m.UncertainTotal.Inc()
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// SetModelLoaded flips the model gauge.
func (m *Metrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.ModelLoaded.Set(1)
		return
	}
	m.ModelLoaded.Set(0)
}
