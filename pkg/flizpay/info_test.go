package flizpay

import (
	"context"
	"testing"
)

func seedCashbackConfig(t *testing.T, config *fakeConfigStore, data string) {
	t.Helper()
	ctx := context.Background()
	if err := config.Set(ctx, ConfigKeyCashbackData, data, ""); err != nil {
		t.Fatalf("Failed to seed cashback data: %v", err)
	}
}

func TestCashbackInfo_Data(t *testing.T) {
	config := newFakeConfigStore()
	info := NewCashbackInfo(config)
	ctx := context.Background()

	data, err := info.Data(ctx, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if data != nil {
		t.Errorf("Expected nil data for unset config, got %+v", data)
	}

	seedCashbackConfig(t, config, `{"first_purchase_amount":10,"standard_amount":5}`)
	data, err = info.Data(ctx, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if data == nil || data.FirstPurchaseAmount != 10 || data.StandardAmount != 5 {
		t.Errorf("Unexpected data: %+v", data)
	}
}

func TestCashbackInfo_Data_Corrupt(t *testing.T) {
	config := newFakeConfigStore()
	seedCashbackConfig(t, config, `not-json`)
	info := NewCashbackInfo(config)

	data, err := info.Data(context.Background(), "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if data != nil {
		t.Errorf("Expected corrupt data to read as absent, got %+v", data)
	}
}

func TestCashbackInfo_DisplayValue(t *testing.T) {
	tests := []struct {
		name     string
		stored   string
		expected float64
		ok       bool
	}{
		{"first higher", `{"first_purchase_amount":10,"standard_amount":5}`, 10, true},
		{"standard higher", `{"first_purchase_amount":3,"standard_amount":5}`, 5, true},
		{"only standard", `{"first_purchase_amount":0,"standard_amount":5}`, 5, true},
		{"both zero", `{"first_purchase_amount":0,"standard_amount":0}`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := newFakeConfigStore()
			seedCashbackConfig(t, config, tt.stored)
			info := NewCashbackInfo(config)

			value, ok := info.DisplayValue(context.Background(), "")
			if ok != tt.ok || value != tt.expected {
				t.Errorf("DisplayValue() = (%v, %v), want (%v, %v)", value, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestCashbackInfo_Kind(t *testing.T) {
	tests := []struct {
		stored   string
		expected CashbackKind
	}{
		{`{"first_purchase_amount":10,"standard_amount":5}`, CashbackKindBoth},
		{`{"first_purchase_amount":10,"standard_amount":0}`, CashbackKindFirst},
		{`{"first_purchase_amount":0,"standard_amount":5}`, CashbackKindStandard},
		{`{"first_purchase_amount":0,"standard_amount":0}`, CashbackKindNone},
	}

	for _, tt := range tests {
		config := newFakeConfigStore()
		seedCashbackConfig(t, config, tt.stored)
		info := NewCashbackInfo(config)

		if kind := info.Kind(context.Background(), ""); kind != tt.expected {
			t.Errorf("Kind() for %s = %q, want %q", tt.stored, kind, tt.expected)
		}
	}
}

func TestCashbackInfo_Available(t *testing.T) {
	ctx := context.Background()
	config := newFakeConfigStore()
	info := NewCashbackInfo(config)

	if info.Available(ctx, "") {
		t.Error("Expected unavailable with empty config")
	}

	// Build up the required configuration piece by piece
	_ = config.Set(ctx, ConfigKeyWebhookAlive, true, "")
	if info.Available(ctx, "") {
		t.Error("Expected unavailable without webhook key")
	}

	_ = config.Set(ctx, ConfigKeyWebhookKey, testWebhookKey, "")
	if info.Available(ctx, "") {
		t.Error("Expected unavailable without webhook URL")
	}

	_ = config.Set(ctx, ConfigKeyWebhookURL, "https://shop.example.com/flizpay/webhook", "")
	if info.Available(ctx, "") {
		t.Error("Expected unavailable without a positive cashback rate")
	}

	seedCashbackConfig(t, config, `{"first_purchase_amount":0,"standard_amount":5}`)
	if !info.Available(ctx, "") {
		t.Error("Expected available with full configuration")
	}

	// Losing the alive flag disables the offer again
	_ = config.Set(ctx, ConfigKeyWebhookAlive, false, "")
	if info.Available(ctx, "") {
		t.Error("Expected unavailable after webhook alive reset")
	}
}
