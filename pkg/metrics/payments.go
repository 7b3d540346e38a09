package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks webhook intake, purchase transitions and gateway calls.
type PaymentMetrics struct {
	webhookEvents      *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	gatewayDuration    *prometheus.HistogramVec
	unprocessedWebhook prometheus.Gauge
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	m := &PaymentMetrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripe",
			Name:      "webhook_events_total",
			Help:      "Stripe webhook events received, by event type and outcome.",
		}, []string{"type", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchases",
			Name:      "transitions_total",
			Help:      "Purchase state transitions, by target status, trigger source and result.",
		}, []string{"target", "source", "result"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stripe",
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of payment gateway calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation", "outcome"}),
		unprocessedWebhook: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stripe",
			Name:      "webhook_events_unprocessed",
			Help:      "Ledger events recorded but never marked processed.",
		}),
	}
	reg.MustRegister(m.webhookEvents, m.transitions, m.gatewayDuration, m.unprocessedWebhook)
	return m
}

// IncWebhookEvent counts a received webhook event with its handling outcome.
func (m *PaymentMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncTransition counts a purchase transition attempt.
func (m *PaymentMetrics) IncTransition(target, source, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(target), normalizeLabel(source), normalizeLabel(result)).Inc()
}

// ObserveGateway records the latency of a gateway call.
func (m *PaymentMetrics) ObserveGateway(operation, outcome string, d time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Observe(d.Seconds())
}

// SetUnprocessedWebhooks publishes the size of the unprocessed ledger backlog.
func (m *PaymentMetrics) SetUnprocessedWebhooks(n int64) {
	if m == nil || m.unprocessedWebhook == nil {
		return
	}
	m.unprocessedWebhook.Set(float64(n))
}
