package flizpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flizpay/flizpay-go/pkg/flizpay/internal"
)

// Webhook event kinds, used as metric labels and log fields.
const (
	EventTest           = "test"
	EventCashbackUpdate = "cashback_update"
	EventSettlement     = "settlement"
)

// StatusCompleted is the settlement status sentinel marking a successful
// payment. Any other status fails the transaction.
const StatusCompleted = "completed"

// WebhookResult is the structured outcome of one webhook delivery.
type WebhookResult struct {
	Success bool
	Status  int
	Message string
	Err     string
	Extra   map[string]any
}

func (r *WebhookResult) body() map[string]any {
	if !r.Success {
		return map[string]any{"error": r.Err}
	}
	body := map[string]any{"success": true}
	if r.Message != "" {
		body["message"] = r.Message
	}
	for k, v := range r.Extra {
		body[k] = v
	}
	return body
}

func successResult() *WebhookResult {
	return &WebhookResult{Success: true, Status: http.StatusOK}
}

func errorResult(status int, msg string) *WebhookResult {
	return &WebhookResult{Status: status, Err: msg}
}

// WebhookHandler returns the HTTP handler that processes gateway webhook
// deliveries. The handler is rate limited per client IP. Mount it on the
// POST route registered with the gateway.
func (s *Service) WebhookHandler() http.Handler {
	return s.rateLimiter.Middleware(http.HandlerFunc(s.handleWebhook))
}

func (s *Service) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	body, err := internal.ReadBodyStrict(w, r, s.maxBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			s.metrics.RecordWebhookError("payload_too_large")
			writeResult(w, errorResult(http.StatusRequestEntityTooLarge, "Payload too large"))
		} else {
			s.metrics.RecordWebhookError("invalid_payload")
			writeResult(w, errorResult(http.StatusBadRequest, "Invalid payload"))
		}
		return
	}

	// Validate the signature against the raw body BEFORE decoding JSON.
	// Malformed JSON from an unauthenticated sender must not be processed.
	signature := r.Header.Get(SignatureHeader)
	if err := s.authenticate(ctx, body, signature); err != nil {
		s.logger.Error("webhook authentication failed",
			Field{Key: "error", Value: err.Error()},
			Field{Key: "payload_length", Value: len(body)},
		)
		s.metrics.RecordWebhookError("auth_failed")
		writeResult(w, errorResult(http.StatusUnauthorized, "Invalid signature"))
		return
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		s.logger.Error("invalid JSON payload", Field{Key: "error", Value: err.Error()})
		s.metrics.RecordWebhookError("invalid_payload")
		writeResult(w, errorResult(http.StatusBadRequest, "Invalid JSON"))
		return
	}

	eventType, result := s.routeWebhook(ctx, payload, body)

	status := "success"
	if !result.Success {
		status = "error"
	}
	s.metrics.RecordWebhookEvent(eventType, status)
	s.metrics.RecordWebhookProcessingDuration(eventType, time.Since(start))

	writeResult(w, result)
}

// authenticate verifies the delivery against the merchant's webhook key. A
// missing key is a configuration error, but the caller sees the same
// unauthorized response as a bad signature.
func (s *Service) authenticate(ctx context.Context, body []byte, signature string) error {
	if signature == "" {
		return ErrInvalidSignature
	}

	webhookKey, err := s.config.GetString(ctx, ConfigKeyWebhookKey, s.salesChannelID)
	if err != nil {
		return fmt.Errorf("reading webhook key: %w", err)
	}
	if webhookKey == "" {
		return ErrWebhookKeyNotConfigured
	}

	if !VerifySignature(body, signature, webhookKey) {
		return ErrInvalidSignature
	}
	return nil
}

// routeWebhook classifies an authenticated payload into exactly one event
// kind and dispatches it. Payloads are untrusted and may satisfy more than
// one predicate; first match wins.
func (s *Service) routeWebhook(ctx context.Context, payload map[string]json.RawMessage, body []byte) (string, *WebhookResult) {
	if _, ok := payload["test"]; ok {
		return EventTest, s.handleTest(ctx)
	}

	if _, ok := payload["updateCashbackInfo"]; ok {
		return EventCashbackUpdate, s.handleCashbackUpdate(ctx, body)
	}

	return EventSettlement, s.ProcessSettlement(ctx, parseSettlementEvent(payload))
}

// handleTest marks the webhook connection as verified. The gateway sends a
// test delivery right after the endpoint is registered.
func (s *Service) handleTest(ctx context.Context) *WebhookResult {
	s.logger.Info("webhook test received")

	if err := s.config.Set(ctx, ConfigKeyWebhookAlive, true, s.salesChannelID); err != nil {
		s.logger.Error("failed to mark webhook alive", Field{Key: "error", Value: err.Error()})
		return errorResult(http.StatusInternalServerError, "Internal server error")
	}

	s.logger.Info("webhook connection verified - payment method enabled")

	return &WebhookResult{
		Success: true,
		Status:  http.StatusOK,
		Message: "Test webhook received successfully",
		Extra: map[string]any{
			"alive":     true,
			"timestamp": s.now().Unix(),
		},
	}
}

// handleCashbackUpdate persists the merchant-level cashback configuration
// pushed by the gateway. This is not order-specific.
func (s *Service) handleCashbackUpdate(ctx context.Context, body []byte) *WebhookResult {
	var payload struct {
		FirstPurchaseAmount float64 `json:"firstPurchaseAmount"`
		Amount              float64 `json:"amount"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		s.logger.Error("invalid cashback update payload", Field{Key: "error", Value: err.Error()})
		return errorResult(http.StatusBadRequest, "Invalid JSON")
	}

	data := CashbackData{
		FirstPurchaseAmount: payload.FirstPurchaseAmount,
		StandardAmount:      payload.Amount,
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return errorResult(http.StatusInternalServerError, "Internal server error")
	}

	if err := s.config.Set(ctx, ConfigKeyCashbackData, string(encoded), s.salesChannelID); err != nil {
		s.logger.Error("failed to store cashback data", Field{Key: "error", Value: err.Error()})
		return errorResult(http.StatusInternalServerError, "Internal server error")
	}

	s.logger.Info("cashback data updated",
		Field{Key: "first_purchase_amount", Value: data.FirstPurchaseAmount},
		Field{Key: "standard_amount", Value: data.StandardAmount},
	)

	return &WebhookResult{
		Success: true,
		Status:  http.StatusOK,
		Message: "Cashback information updated",
	}
}

// parseSettlementEvent extracts the settlement fields from a raw payload.
// Presence checks happen here; validation is the settlement engine's job.
func parseSettlementEvent(payload map[string]json.RawMessage) *SettlementEvent {
	ev := &SettlementEvent{}

	if raw, ok := payload["metadata"]; ok {
		var meta struct {
			OrderID string `json:"orderId"`
		}
		if err := json.Unmarshal(raw, &meta); err == nil {
			ev.OrderID = meta.OrderID
		}
	}
	if raw, ok := payload["status"]; ok {
		if err := json.Unmarshal(raw, &ev.Status); err != nil {
			// A present but non-string status still counts as present; keep
			// the raw token so the settlement engine treats it as a
			// non-completed status instead of a missing field.
			ev.Status = string(raw)
		}
	}
	if raw, ok := payload["transactionId"]; ok {
		_ = json.Unmarshal(raw, &ev.TransactionID)
	}
	if raw, ok := payload["currency"]; ok {
		_ = json.Unmarshal(raw, &ev.Currency)
	}
	if raw, ok := payload["originalAmount"]; ok {
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			ev.OriginalAmount = &v
		}
	}
	if raw, ok := payload["amount"]; ok {
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			ev.Amount = &v
		}
	}

	return ev
}

func writeResult(w http.ResponseWriter, r *WebhookResult) {
	_ = internal.WriteJSON(w, r.Status, r.body())
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
