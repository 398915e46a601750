package flizpay

import (
	"context"
	"encoding/json"
	"fmt"
)

// GatewayClient is the outbound surface of the gateway business API the
// setup flow depends on. Implemented by the client package.
type GatewayClient interface {
	// GenerateWebhookKey requests a fresh webhook signing secret.
	GenerateWebhookKey(ctx context.Context) (string, error)

	// RegisterWebhookURL registers the shop's webhook endpoint with the
	// gateway and returns the URL the gateway confirmed.
	RegisterWebhookURL(ctx context.Context, webhookURL string) (string, error)

	// FetchCashbackData retrieves the merchant's active cashback rates,
	// or nil when no active cashback is configured.
	FetchCashbackData(ctx context.Context) (*CashbackData, error)
}

// SetupResult reports what the gateway configuration flow stored.
type SetupResult struct {
	WebhookURL string
	WebhookKey string
	Cashback   *CashbackData
}

// ConfigureGateway runs the merchant onboarding flow against the gateway:
// store the API key, register the webhook URL, obtain and store the webhook
// signing key, then pull the current cashback rates. The webhookAlive flag
// is reset first and only set again once the gateway's test delivery
// arrives.
//
// Any step failing clears the stored API key so a broken half-configured
// state is not left behind, and returns an error wrapping ErrGatewaySetup.
func ConfigureGateway(
	ctx context.Context,
	config ConfigStore,
	gateway GatewayClient,
	apiKey, webhookURL, salesChannelID string,
	logger Logger,
) (*SetupResult, error) {
	if logger == nil {
		logger = &NoopLogger{}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrGatewaySetup)
	}
	if webhookURL == "" {
		return nil, fmt.Errorf("%w: webhook url is required", ErrGatewaySetup)
	}

	if err := config.Set(ctx, ConfigKeyAPIKey, apiKey, salesChannelID); err != nil {
		return nil, fmt.Errorf("%w: storing api key: %v", ErrGatewaySetup, err)
	}
	// Reset until the gateway's test webhook proves the connection.
	if err := config.Set(ctx, ConfigKeyWebhookAlive, false, salesChannelID); err != nil {
		return nil, fmt.Errorf("%w: resetting webhook status: %v", ErrGatewaySetup, err)
	}

	registeredURL, err := gateway.RegisterWebhookURL(ctx, webhookURL)
	if err != nil {
		clearAPIKey(ctx, config, salesChannelID, logger)
		logger.Error("failed to register webhook URL", Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("%w: registering webhook url: %v", ErrGatewaySetup, err)
	}
	if err := config.Set(ctx, ConfigKeyWebhookURL, registeredURL, salesChannelID); err != nil {
		return nil, fmt.Errorf("%w: storing webhook url: %v", ErrGatewaySetup, err)
	}
	logger.Info("webhook URL registered", Field{Key: "webhook_url", Value: registeredURL})

	webhookKey, err := gateway.GenerateWebhookKey(ctx)
	if err != nil || webhookKey == "" {
		clearAPIKey(ctx, config, salesChannelID, logger)
		logger.Error("failed to obtain webhook key")
		return nil, fmt.Errorf("%w: obtaining webhook key: %v", ErrGatewaySetup, err)
	}
	if err := config.Set(ctx, ConfigKeyWebhookKey, webhookKey, salesChannelID); err != nil {
		return nil, fmt.Errorf("%w: storing webhook key: %v", ErrGatewaySetup, err)
	}

	result := &SetupResult{WebhookURL: registeredURL, WebhookKey: webhookKey}

	// Cashback rates are optional; a merchant without an active cashback
	// program still completes setup.
	cashback, err := gateway.FetchCashbackData(ctx)
	if err != nil {
		logger.Warn("failed to fetch cashback data", Field{Key: "error", Value: err.Error()})
		return result, nil
	}
	if cashback != nil {
		encoded, err := json.Marshal(cashback)
		if err == nil {
			if err := config.Set(ctx, ConfigKeyCashbackData, string(encoded), salesChannelID); err != nil {
				logger.Warn("failed to store cashback data", Field{Key: "error", Value: err.Error()})
				return result, nil
			}
			result.Cashback = cashback
		}
	}

	return result, nil
}

func clearAPIKey(ctx context.Context, config ConfigStore, salesChannelID string, logger Logger) {
	if err := config.Set(ctx, ConfigKeyAPIKey, "", salesChannelID); err != nil {
		logger.Error("failed to clear api key", Field{Key: "error", Value: err.Error()})
	}
}
