package flizpay

import "context"

const configPrefix = "flizpay.config."

// Merchant configuration keys. All values may be scoped per sales channel;
// an empty sales channel ID addresses the merchant-wide default scope.
const (
	// ConfigKeyAPIKey authenticates outbound calls to the gateway business API
	ConfigKeyAPIKey = configPrefix + "apiKey"

	// ConfigKeyWebhookKey is the shared secret used to verify inbound
	// webhook signatures
	ConfigKeyWebhookKey = configPrefix + "webhookKey"

	// ConfigKeyWebhookURL is the publicly reachable webhook endpoint
	// registered with the gateway
	ConfigKeyWebhookURL = configPrefix + "webhookUrl"

	// ConfigKeyWebhookAlive is set once a test webhook has been received,
	// proving the gateway can reach the shop
	ConfigKeyWebhookAlive = configPrefix + "webhookAlive"

	// ConfigKeyCashbackData holds the merchant-level cashback rates as JSON
	ConfigKeyCashbackData = configPrefix + "cashbackData"
)

// ConfigStore provides access to merchant configuration. It is injected into
// every component that needs configuration instead of being read from ambient
// global state.
//
// Getters return the type's zero value and a nil error for unset keys;
// errors indicate backend failures only.
type ConfigStore interface {
	// GetString retrieves a string value scoped to a sales channel.
	GetString(ctx context.Context, key, salesChannelID string) (string, error)

	// GetBool retrieves a boolean value scoped to a sales channel.
	GetBool(ctx context.Context, key, salesChannelID string) (bool, error)

	// Set stores a value scoped to a sales channel.
	Set(ctx context.Context, key string, value any, salesChannelID string) error
}
