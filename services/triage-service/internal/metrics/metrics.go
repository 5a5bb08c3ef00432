package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	notifications     *prometheus.CounterVec
	classifications   *prometheus.CounterVec
	redactionFailures prometheus.Counter
	taggingFailures   prometheus.Counter
	renewals          *prometheus.CounterVec
	processing        prometheus.Histogram
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_notifications_total",
				Help: "Webhook notification entries by outcome",
			},
			[]string{"outcome"},
		),
		classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_classifications_total",
				Help: "Persisted classifications by tag",
			},
			[]string{"classification"},
		),
		redactionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triage_redaction_soft_failures_total",
			Help: "Emails classified without redaction because the PII services failed",
		}),
		taggingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triage_tagging_failures_total",
			Help: "Mailbox category writes that did not succeed",
		}),
		renewals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_subscription_renewals_total",
				Help: "Subscription renewal attempts by result",
			},
			[]string{"result"},
		),
		processing: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_message_processing_seconds",
			Help:    "Time spent processing one message end to end",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.notifications,
		m.classifications,
		m.redactionFailures,
		m.taggingFailures,
		m.renewals,
		m.processing,
	)
	return m
}

// Handler exposes the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Classification(tag string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(tag).Inc()
}

func (m *Metrics) RedactionFailure() {
	if m == nil {
		return
	}
	m.redactionFailures.Inc()
}

func (m *Metrics) TaggingFailure() {
	if m == nil {
		return
	}
	m.taggingFailures.Inc()
}

func (m *Metrics) Renewal(ok bool) {
	if m == nil {
		return
	}
	result := "renewed"
	if !ok {
		result = "failed"
	}
	m.renewals.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProcessing(started time.Time) {
	if m == nil {
		return
	}
	m.processing.Observe(time.Since(started).Seconds())
}
