package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/flizpay/flizpay-go/pkg/flizpay"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
	var _ flizpay.Metrics = metrics
}

func gather(t *testing.T, reg *prometheus.Registry) []*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	return families
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestRecordWebhookEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookEvent("settlement", "success")
	metrics.RecordWebhookEvent("settlement", "success")
	metrics.RecordWebhookEvent("test", "error")

	family := findFamily(gather(t, reg), "test_flizpay_webhook_events_total")
	if family == nil {
		t.Fatal("Expected webhook events metric family")
	}
	if len(family.GetMetric()) != 2 {
		t.Errorf("Expected 2 label combinations, got %d", len(family.GetMetric()))
	}
}

func TestRecordCashbackApplied(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordCashbackApplied("EUR", 10.00)
	metrics.RecordCashbackApplied("EUR", 5.50)

	families := gather(t, reg)

	count := findFamily(families, "test_flizpay_cashback_applied_total")
	if count == nil || count.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Error("Expected cashback application count of 2")
	}

	amount := findFamily(families, "test_flizpay_cashback_applied_amount_total")
	if amount == nil {
		t.Fatal("Expected cashback amount metric family")
	}
	if got := amount.GetMetric()[0].GetCounter().GetValue(); got != 15.50 {
		t.Errorf("Expected summed amount 15.50, got %v", got)
	}
}

func TestRecordTransactionTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordTransactionTransition("paid", "applied")
	metrics.RecordTransactionTransition("paid", "noop")

	family := findFamily(gather(t, reg), "test_flizpay_transaction_transitions_total")
	if family == nil {
		t.Fatal("Expected transitions metric family")
	}
	if len(family.GetMetric()) != 2 {
		t.Errorf("Expected 2 label combinations, got %d", len(family.GetMetric()))
	}
}

func TestRecordDurations(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookProcessingDuration("settlement", 25*time.Millisecond)
	metrics.RecordAPICall("/transactions", "200")
	metrics.RecordAPICallDuration("/transactions", 120*time.Millisecond)
	metrics.RecordWebhookError("auth_failed")

	families := gather(t, reg)
	for _, name := range []string{
		"test_flizpay_webhook_processing_duration_seconds",
		"test_flizpay_api_calls_total",
		"test_flizpay_api_call_duration_seconds",
		"test_flizpay_webhook_errors_total",
	} {
		if findFamily(families, name) == nil {
			t.Errorf("Expected metric family %s", name)
		}
	}
}
