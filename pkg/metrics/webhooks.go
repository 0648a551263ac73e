package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records outcomes of payment-provider event deliveries.
type WebhookMetrics struct {
	duration   *prometheus.HistogramVec
	processed  *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	failures   *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_handler_duration_seconds",
		Help:    "Duration of webhook event handlers in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_processed",
		Help: "Webhook events applied successfully.",
	}, []string{"event_type"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_duplicate",
		Help: "Webhook deliveries short-circuited as duplicates.",
	}, []string{"event_type"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_failed",
		Help: "Webhook events whose handler returned an error.",
	}, []string{"event_type"})
	reg.MustRegister(duration, processed, duplicates, failures)
	return &WebhookMetrics{
		duration:   duration,
		processed:  processed,
		duplicates: duplicates,
		failures:   failures,
	}
}

// ObserveDuration records handler duration for the event type.
func (m *WebhookMetrics) ObserveDuration(eventType string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

// IncProcessed increments the processed counter for the event type.
func (m *WebhookMetrics) IncProcessed(eventType string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDuplicate increments the duplicate counter for the event type.
func (m *WebhookMetrics) IncDuplicate(eventType string) {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailure increments the failure counter for the event type.
func (m *WebhookMetrics) IncFailure(eventType string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// QuotaMetrics counts entitlement-gated rejections per quota.
type QuotaMetrics struct {
	rejections *prometheus.CounterVec
}

// NewQuotaMetrics registers the quota metrics on the provided registerer.
func NewQuotaMetrics(reg prometheus.Registerer) *QuotaMetrics {
	if reg == nil {
		return &QuotaMetrics{}
	}
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_rejections",
		Help: "Mutations rejected by an entitlement ceiling.",
	}, []string{"quota"})
	reg.MustRegister(rejections)
	return &QuotaMetrics{rejections: rejections}
}

// IncRejection increments the rejection counter for the named quota.
func (m *QuotaMetrics) IncRejection(quota string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(quota)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return strings.ReplaceAll(trimmed, ".", "_")
}
