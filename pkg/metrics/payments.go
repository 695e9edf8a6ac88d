package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const paymentSubsystem = "payment"

var paymentsCreated = &Metric{
	ID:          "paymentsCreated",
	Name:        "created_total",
	Description: "Payments accepted by intake, partitioned by provider and source.",
	Kind:        CounterVec,
	Labels:      []string{"provider", "source"},
}

var chargeAttempts = &Metric{
	ID:          "chargeAttempts",
	Name:        "charge_attempts_total",
	Description: "Provider charge creation attempts, partitioned by provider and result.",
	Kind:        CounterVec,
	Labels:      []string{"provider", "result"},
}

var chargeDur = &Metric{
	ID:          "chargeDur",
	Name:        "charge_dur_ms",
	Description: "Provider charge creation latency in milliseconds.",
	Kind:        HistogramVec,
	Buckets:     ProviderBuckets,
	Labels:      []string{"provider"},
}

var retriesScheduled = &Metric{
	ID:          "retriesScheduled",
	Name:        "retries_scheduled_total",
	Description: "Charge retries re-enqueued with backoff.",
	Kind:        CounterVec,
	Labels:      []string{"provider"},
}

var deadLetters = &Metric{
	ID:          "deadLetters",
	Name:        "dead_letters_total",
	Description: "Payments pushed to the dead-letter queue after exhausting retries.",
	Kind:        CounterVec,
	Labels:      []string{"provider"},
}

var webhookDeliveries = &Metric{
	ID:          "webhookDeliveries",
	Name:        "webhook_deliveries_total",
	Description: "Provider webhook deliveries, partitioned by provider and outcome.",
	Kind:        CounterVec,
	Labels:      []string{"provider", "outcome"},
}

var refunds = &Metric{
	ID:          "refunds",
	Name:        "refunds_total",
	Description: "Refunds issued, partitioned by provider and mapped status.",
	Kind:        CounterVec,
	Labels:      []string{"provider", "status"},
}

var breakerState = &Metric{
	ID:          "breakerState",
	Name:        "breaker_state",
	Description: "Circuit breaker state per downstream target (0 closed, 1 half-open, 2 open).",
	Kind:        GaugeVec,
	Labels:      []string{"target"},
}

var paymentMetricsList = []*Metric{
	paymentsCreated,
	chargeAttempts,
	chargeDur,
	retriesScheduled,
	deadLetters,
	webhookDeliveries,
	refunds,
	breakerState,
}

// PaymentMetrics records engine level business metrics. A nil *PaymentMetrics is a no-op.
type PaymentMetrics struct {
	created   *prometheus.CounterVec
	attempts  *prometheus.CounterVec
	chargeDur *prometheus.HistogramVec
	retries   *prometheus.CounterVec
	dlq       *prometheus.CounterVec
	webhooks  *prometheus.CounterVec
	refunds   *prometheus.CounterVec
	breakers  *prometheus.GaugeVec
}

// NewPaymentMetrics registers the payment collectors on reg. Collectors already
// registered by an earlier instance are reused.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	collectors := registerAll(reg, paymentSubsystem, paymentMetricsList, nil)
	return &PaymentMetrics{
		created:   collectors[paymentsCreated.ID].(*prometheus.CounterVec),
		attempts:  collectors[chargeAttempts.ID].(*prometheus.CounterVec),
		chargeDur: collectors[chargeDur.ID].(*prometheus.HistogramVec),
		retries:   collectors[retriesScheduled.ID].(*prometheus.CounterVec),
		dlq:       collectors[deadLetters.ID].(*prometheus.CounterVec),
		webhooks:  collectors[webhookDeliveries.ID].(*prometheus.CounterVec),
		refunds:   collectors[refunds.ID].(*prometheus.CounterVec),
		breakers:  collectors[breakerState.ID].(*prometheus.GaugeVec),
	}
}

// NewDefaultPaymentMetrics registers on the process-wide registry.
func NewDefaultPaymentMetrics() *PaymentMetrics {
	return NewPaymentMetrics(prometheus.DefaultRegisterer)
}

func (m *PaymentMetrics) PaymentCreated(provider, source string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(provider, source).Inc()
}

// ChargeAttempt records one provider call and its latency.
func (m *PaymentMetrics) ChargeAttempt(provider string, ok bool, start time.Time) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.attempts.WithLabelValues(provider, result).Inc()
	m.chargeDur.WithLabelValues(provider).Observe(MillisecondsSince(start))
}

func (m *PaymentMetrics) RetryScheduled(provider string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(provider).Inc()
}

func (m *PaymentMetrics) DeadLettered(provider string) {
	if m == nil {
		return
	}
	m.dlq.WithLabelValues(provider).Inc()
}

func (m *PaymentMetrics) WebhookDelivery(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(provider, outcome).Inc()
}

func (m *PaymentMetrics) Refund(provider, status string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(provider, status).Inc()
}

func (m *PaymentMetrics) BreakerState(target string, state int) {
	if m == nil {
		return
	}
	m.breakers.WithLabelValues(target).Set(float64(state))
}
