// Package metrics exposes Prometheus instrumentation for categorization
// quality, store health and the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kharcha/internal/categorize"
	"kharcha/internal/services"
)

type Metrics struct {
	classifierFallbacks *prometheus.CounterVec
	confidence          *prometheus.HistogramVec
	storeErrors         *prometheus.CounterVec
	eventsPublished     *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

var (
	_ categorize.Observer = (*Metrics)(nil)
	_ services.Observer   = (*Metrics)(nil)
)

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		classifierFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kharcha_classifier_fallbacks_total",
			Help: "Categorizations that fell back to keyword matching, by reason.",
		}, []string{"reason"}),
		confidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kharcha_categorization_confidence",
			Help:    "Confidence of resolved categories, by resolution method.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"method"}),
		storeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kharcha_store_errors_total",
			Help: "Store operations that returned an error, by operation.",
		}, []string{"op"}),
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kharcha_events_published_total",
			Help: "Change events published on the notify bus, by operation.",
		}, []string{"op"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kharcha_http_request_duration_seconds",
			Help:    "HTTP request latency, by route and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// ClassifierFallback counts a silent degradation of the primary classifier.
func (m *Metrics) ClassifierFallback(reason string) {
	m.classifierFallbacks.WithLabelValues(reason).Inc()
}

// Confidence records the confidence the resolver attached to a category.
func (m *Metrics) Confidence(method string, confidence float64) {
	m.confidence.WithLabelValues(method).Observe(confidence)
}

func (m *Metrics) StoreError(op string) {
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) EventPublished(op string) {
	m.eventsPublished.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
