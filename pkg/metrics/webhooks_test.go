package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWebhookMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)

	m.IncProcessed("checkout.session.completed")
	m.IncProcessed("checkout.session.completed")
	m.IncDuplicate("checkout.session.completed")
	m.IncFailure("invoice.payment_failed")
	m.ObserveDuration("checkout.session.completed", 25*time.Millisecond)

	if got := testutil.ToFloat64(m.processed.WithLabelValues("checkout_session_completed")); got != 2 {
		t.Fatalf("expected 2 processed, got %v", got)
	}
	if got := testutil.ToFloat64(m.duplicates.WithLabelValues("checkout_session_completed")); got != 1 {
		t.Fatalf("expected 1 duplicate, got %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("invoice_payment_failed")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestQuotaMetricsRejections(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewQuotaMetrics(reg)

	m.IncRejection("max_team_members")
	if got := testutil.ToFloat64(m.rejections.WithLabelValues("max_team_members")); got != 1 {
		t.Fatalf("expected 1 rejection, got %v", got)
	}
}

func TestNilRegistererIsSafe(t *testing.T) {
	m := NewWebhookMetrics(nil)
	m.IncProcessed("x")
	m.ObserveDuration("x", time.Second)

	q := NewQuotaMetrics(nil)
	q.IncRejection("x")
}
