package flizpay

import "time"

// Metrics defines the interface for tracking gateway operations.
// All methods are optional - a nil-safe NoopMetrics is used when unset.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the gateway.
	// eventType: "test", "cashback_update" or "settlement"
	// status: "success" or "error"
	RecordWebhookEvent(eventType, status string)

	// RecordWebhookProcessingDuration records how long a webhook took to process.
	RecordWebhookProcessingDuration(eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: "auth_failed", "invalid_payload", "payload_too_large",
	// "missing_fields", "not_found" or "processing_error"
	RecordWebhookError(errorType string)

	// RecordCashbackApplied records a committed cashback application.
	RecordCashbackApplied(currency string, amount float64)

	// RecordTransactionTransition records a transaction state transition.
	// result: "applied" or "noop" (illegal transition swallowed)
	RecordTransactionTransition(toState, result string)

	// RecordAPICall records an outbound call to the gateway business API.
	// status: HTTP status code as string (e.g. "200", "401")
	RecordAPICall(endpoint, status string)

	// RecordAPICallDuration records how long an outbound API call took.
	RecordAPICallDuration(endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_ string)                               {}
func (n *NoopMetrics) RecordCashbackApplied(_ string, _ float64)                 {}
func (n *NoopMetrics) RecordTransactionTransition(_, _ string)                   {}
func (n *NoopMetrics) RecordAPICall(_, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_ string, _ time.Duration)           {}
