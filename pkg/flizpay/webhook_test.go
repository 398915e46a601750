package flizpay

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func postWebhook(t *testing.T, handler http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/flizpay/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func postSigned(t *testing.T, handler http.Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	return postWebhook(t, handler, body, SignPayload(body, testWebhookKey))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestWebhookHandler_MethodNotAllowed(t *testing.T) {
	service, _ := newTestService(t, newFakeStore())
	handler := service.WebhookHandler()

	req := httptest.NewRequest(http.MethodGet, "/flizpay/webhook", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestWebhookHandler_MissingSignature(t *testing.T) {
	service, _ := newTestService(t, newFakeStore())

	w := postWebhook(t, service.WebhookHandler(), []byte(`{"test":true}`), "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Invalid signature" {
		t.Errorf("Expected error %q, got %v", "Invalid signature", body["error"])
	}
}

func TestWebhookHandler_InvalidSignature(t *testing.T) {
	service, _ := newTestService(t, newFakeStore())

	body := []byte(`{"test":true}`)
	w := postWebhook(t, service.WebhookHandler(), body, SignPayload(body, "wrong-key"))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestWebhookHandler_WebhookKeyNotConfigured(t *testing.T) {
	store := newFakeStore()
	service, err := New(Config{
		Orders:       store,
		Transactions: store,
		ConfigStore:  newFakeConfigStore(), // no webhook key stored
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	body := []byte(`{"test":true}`)
	w := postWebhook(t, service.WebhookHandler(), body, SignPayload(body, testWebhookKey))

	// A missing key must be indistinguishable from a bad signature
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Invalid signature" {
		t.Errorf("Expected error %q, got %v", "Invalid signature", body["error"])
	}
}

func TestWebhookHandler_MalformedJSON(t *testing.T) {
	service, _ := newTestService(t, newFakeStore())

	// Signed but not JSON: authentication passes, parsing fails
	w := postSigned(t, service.WebhookHandler(), []byte(`{"broken`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Invalid JSON" {
		t.Errorf("Expected error %q, got %v", "Invalid JSON", body["error"])
	}
}

func TestWebhookHandler_PayloadTooLarge(t *testing.T) {
	store := newFakeStore()
	config := newFakeConfigStore()
	_ = config.Set(context.Background(), ConfigKeyWebhookKey, testWebhookKey, "")
	service, err := New(Config{
		Orders:       store,
		Transactions: store,
		ConfigStore:  config,
		MaxBodyBytes: 64,
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	big := []byte(`{"padding":"` + strings.Repeat("x", 128) + `"}`)
	w := postSigned(t, service.WebhookHandler(), big)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}
}

func TestWebhookHandler_TestEvent(t *testing.T) {
	service, config := newTestService(t, newFakeStore())

	w := postSigned(t, service.WebhookHandler(), []byte(`{"test":true}`))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Error("Expected success response")
	}
	if body["alive"] != true {
		t.Error("Expected alive flag in response")
	}

	alive, err := config.GetBool(context.Background(), ConfigKeyWebhookAlive, "")
	if err != nil || !alive {
		t.Errorf("Expected webhook alive flag to be stored, got %v (err %v)", alive, err)
	}
}

func TestWebhookHandler_TestEventWinsOverSettlement(t *testing.T) {
	// A payload carrying both a test marker and settlement fields must be
	// classified as exactly one event: test.
	order := testOrder()
	store := newFakeStore(order)
	service, _ := newTestService(t, store)

	payload := []byte(`{"test":true,"status":"completed","metadata":{"orderId":"order-1"}}`)
	w := postSigned(t, service.WebhookHandler(), payload)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got := store.transactionState("tx-1"); got != TransactionStateOpen {
		t.Errorf("Expected transaction untouched (open), got %s", got)
	}
}

func TestWebhookHandler_CashbackUpdate(t *testing.T) {
	service, config := newTestService(t, newFakeStore())

	payload := []byte(`{"updateCashbackInfo":true,"firstPurchaseAmount":10,"amount":5}`)
	w := postSigned(t, service.WebhookHandler(), payload)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["message"] != "Cashback information updated" {
		t.Errorf("Unexpected message: %v", body["message"])
	}

	raw, err := config.GetString(context.Background(), ConfigKeyCashbackData, "")
	if err != nil {
		t.Fatalf("Failed to read cashback data: %v", err)
	}
	var data CashbackData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		t.Fatalf("Failed to decode stored cashback data %q: %v", raw, err)
	}
	if data.FirstPurchaseAmount != 10 || data.StandardAmount != 5 {
		t.Errorf("Unexpected stored cashback data: %+v", data)
	}
}

func TestWebhookHandler_SettlementMissingOrderID(t *testing.T) {
	service, _ := newTestService(t, newFakeStore())

	w := postSigned(t, service.WebhookHandler(), []byte(`{"status":"completed"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Missing orderId" {
		t.Errorf("Expected error %q, got %v", "Missing orderId", body["error"])
	}
}

func TestWebhookHandler_SettlementCompleted(t *testing.T) {
	order := testOrder()
	store := newFakeStore(order)
	service, _ := newTestService(t, store)

	payload := []byte(`{"status":"completed","transactionId":"fliz-tx-9","currency":"EUR",` +
		`"originalAmount":100.00,"amount":90.00,"metadata":{"orderId":"order-1"}}`)
	w := postSigned(t, service.WebhookHandler(), payload)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if got := store.transactionState("tx-1"); got != TransactionStatePaid {
		t.Errorf("Expected transaction paid, got %s", got)
	}
	if len(order.LineItems) != 2 {
		t.Fatalf("Expected credit line item appended, got %d line items", len(order.LineItems))
	}

	credit := order.LineItems[1]
	if credit.Type != LineItemTypeCredit {
		t.Errorf("Expected credit line item type, got %s", credit.Type)
	}
	if credit.Price.TotalPrice != -10.00 {
		t.Errorf("Expected credit total -10.00, got %.2f", credit.Price.TotalPrice)
	}
	if credit.Position != 2 {
		t.Errorf("Expected credit at position 2, got %d", credit.Position)
	}

	if order.Price.TotalPrice != 90.00 {
		t.Errorf("Expected new total 90.00, got %.2f", order.Price.TotalPrice)
	}
	if order.Price.NetPrice != 75.63 {
		t.Errorf("Expected new net 75.63, got %.2f", order.Price.NetPrice)
	}
	if !order.CashbackApplied() {
		t.Error("Expected idempotency marker to be set")
	}
}

func TestWebhookHandler_SettlementFailed(t *testing.T) {
	order := testOrder()
	store := newFakeStore(order)
	service, _ := newTestService(t, store)

	payload := []byte(`{"status":"failed","metadata":{"orderId":"order-1"}}`)
	w := postSigned(t, service.WebhookHandler(), payload)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := store.transactionState("tx-1"); got != TransactionStateFailed {
		t.Errorf("Expected transaction failed, got %s", got)
	}
	if len(order.LineItems) != 1 {
		t.Errorf("Expected no credit line item, got %d line items", len(order.LineItems))
	}
}

func TestWebhookHandler_SettlementNonStringStatus(t *testing.T) {
	order := testOrder()
	store := newFakeStore(order)
	service, _ := newTestService(t, store)

	payload := []byte(`{"status":123,"metadata":{"orderId":"order-1"}}`)
	w := postSigned(t, service.WebhookHandler(), payload)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := store.transactionState("tx-1"); got != TransactionStateFailed {
		t.Errorf("Expected transaction failed, got %s", got)
	}
	if len(order.LineItems) != 1 {
		t.Errorf("Expected no credit line item, got %d line items", len(order.LineItems))
	}
}

func TestWebhookHandler_DuplicateDelivery(t *testing.T) {
	order := testOrder()
	store := newFakeStore(order)
	service, _ := newTestService(t, store)
	handler := service.WebhookHandler()

	payload := []byte(`{"status":"completed","currency":"EUR",` +
		`"originalAmount":100.00,"amount":90.00,"metadata":{"orderId":"order-1"}}`)

	first := postSigned(t, handler, payload)
	if first.Code != http.StatusOK {
		t.Fatalf("First delivery failed with status %d: %s", first.Code, first.Body.String())
	}

	second := postSigned(t, handler, payload)
	if second.Code != http.StatusOK {
		t.Fatalf("Second delivery failed with status %d: %s", second.Code, second.Body.String())
	}

	if len(order.LineItems) != 2 {
		t.Errorf("Expected exactly one credit line item after redelivery, got %d line items", len(order.LineItems))
	}
	if order.Price.TotalPrice != 90.00 {
		t.Errorf("Expected total 90.00 after redelivery, got %.2f", order.Price.TotalPrice)
	}
	if len(store.applied) != 1 {
		t.Errorf("Expected cashback committed once, got %d", len(store.applied))
	}
}

func TestParseSettlementEvent(t *testing.T) {
	raw := map[string]json.RawMessage{
		"status":         json.RawMessage(`"completed"`),
		"transactionId":  json.RawMessage(`"fliz-tx-9"`),
		"currency":       json.RawMessage(`"EUR"`),
		"originalAmount": json.RawMessage(`100.5`),
		"amount":         json.RawMessage(`95.5`),
		"metadata":       json.RawMessage(`{"orderId":"order-1"}`),
	}

	ev := parseSettlementEvent(raw)

	if ev.OrderID != "order-1" {
		t.Errorf("Expected order id order-1, got %q", ev.OrderID)
	}
	if ev.Status != "completed" || ev.TransactionID != "fliz-tx-9" || ev.Currency != "EUR" {
		t.Errorf("Unexpected event fields: %+v", ev)
	}
	if ev.OriginalAmount == nil || *ev.OriginalAmount != 100.5 {
		t.Errorf("Unexpected original amount: %v", ev.OriginalAmount)
	}
	if ev.Amount == nil || *ev.Amount != 95.5 {
		t.Errorf("Unexpected amount: %v", ev.Amount)
	}
}

func TestParseSettlementEvent_MissingAmounts(t *testing.T) {
	raw := map[string]json.RawMessage{
		"status":   json.RawMessage(`"completed"`),
		"metadata": json.RawMessage(`{"orderId":"order-1"}`),
	}

	ev := parseSettlementEvent(raw)

	if ev.OriginalAmount != nil || ev.Amount != nil {
		t.Errorf("Expected nil amounts, got %v / %v", ev.OriginalAmount, ev.Amount)
	}
}
