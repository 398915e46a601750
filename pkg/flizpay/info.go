package flizpay

import (
	"context"
	"encoding/json"
)

// CashbackData is the merchant-level cashback configuration pushed by the
// gateway: a one-time rate for a customer's first purchase and a standard
// rate for every purchase after that.
type CashbackData struct {
	FirstPurchaseAmount float64 `json:"first_purchase_amount"`
	StandardAmount      float64 `json:"standard_amount"`
}

// CashbackKind classifies which cashback rates a merchant offers.
type CashbackKind string

const (
	CashbackKindNone     CashbackKind = ""
	CashbackKindBoth     CashbackKind = "both"
	CashbackKindFirst    CashbackKind = "first"
	CashbackKindStandard CashbackKind = "standard"
)

// CashbackInfo answers questions about the merchant's current cashback offer
// from stored configuration. Checkout surfaces use it to decide whether and
// what to advertise.
type CashbackInfo struct {
	config ConfigStore
}

// NewCashbackInfo creates a CashbackInfo over a config store.
func NewCashbackInfo(config ConfigStore) *CashbackInfo {
	return &CashbackInfo{config: config}
}

// Data returns the stored cashback configuration, or nil when none is stored
// or the stored value is unusable.
func (c *CashbackInfo) Data(ctx context.Context, salesChannelID string) (*CashbackData, error) {
	raw, err := c.config.GetString(ctx, ConfigKeyCashbackData, salesChannelID)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var data CashbackData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, nil
	}
	return &data, nil
}

// DisplayValue returns the rate worth advertising (the higher of the two)
// and whether any positive rate exists.
func (c *CashbackInfo) DisplayValue(ctx context.Context, salesChannelID string) (float64, bool) {
	data, err := c.Data(ctx, salesChannelID)
	if err != nil || data == nil {
		return 0, false
	}

	if data.FirstPurchaseAmount <= 0 && data.StandardAmount <= 0 {
		return 0, false
	}
	if data.FirstPurchaseAmount > data.StandardAmount {
		return data.FirstPurchaseAmount, true
	}
	return data.StandardAmount, true
}

// Kind reports which cashback rates are active.
func (c *CashbackInfo) Kind(ctx context.Context, salesChannelID string) CashbackKind {
	data, err := c.Data(ctx, salesChannelID)
	if err != nil || data == nil {
		return CashbackKindNone
	}

	switch {
	case data.FirstPurchaseAmount > 0 && data.StandardAmount > 0:
		return CashbackKindBoth
	case data.FirstPurchaseAmount > 0:
		return CashbackKindFirst
	case data.StandardAmount > 0:
		return CashbackKindStandard
	default:
		return CashbackKindNone
	}
}

// Available reports whether cashback can be offered at all: the webhook
// connection must be verified, the webhook key and URL configured, and at
// least one positive rate stored.
func (c *CashbackInfo) Available(ctx context.Context, salesChannelID string) bool {
	alive, err := c.config.GetBool(ctx, ConfigKeyWebhookAlive, salesChannelID)
	if err != nil || !alive {
		return false
	}

	webhookKey, err := c.config.GetString(ctx, ConfigKeyWebhookKey, salesChannelID)
	if err != nil || webhookKey == "" {
		return false
	}

	webhookURL, err := c.config.GetString(ctx, ConfigKeyWebhookURL, salesChannelID)
	if err != nil || webhookURL == "" {
		return false
	}

	_, ok := c.DisplayValue(ctx, salesChannelID)
	return ok
}
