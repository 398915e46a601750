// Package redis provides a Redis implementation of the flizpay.ConfigStore
// interface. Plugin configuration is small and read on every webhook, which
// makes a shared cache a natural home for it.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flizpay/flizpay-go/pkg/flizpay"
)

// ConfigStore implements flizpay.ConfigStore using Redis
type ConfigStore struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis config store configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "flizpay:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "flizpay:",
	}
}

// New creates a new Redis config store.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*ConfigStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "flizpay:"
	}

	return &ConfigStore{client: client, config: config}, nil
}

func (c *ConfigStore) key(key, salesChannelID string) string {
	if salesChannelID == "" {
		return c.config.KeyPrefix + key
	}
	return c.config.KeyPrefix + salesChannelID + ":" + key
}

// GetString implements flizpay.ConfigStore. A sales-channel-scoped value
// takes precedence; an unset key returns the empty string without error.
func (c *ConfigStore) GetString(ctx context.Context, key, salesChannelID string) (string, error) {
	v, err := c.lookup(ctx, key, salesChannelID)
	if err != nil {
		return "", err
	}
	return v, nil
}

// GetBool implements flizpay.ConfigStore
func (c *ConfigStore) GetBool(ctx context.Context, key, salesChannelID string) (bool, error) {
	v, err := c.lookup(ctx, key, salesChannelID)
	if err != nil {
		return false, err
	}
	return v == "1" || v == "true", nil
}

// Set implements flizpay.ConfigStore
func (c *ConfigStore) Set(ctx context.Context, key string, value any, salesChannelID string) error {
	var encoded string
	switch t := value.(type) {
	case string:
		encoded = t
	case bool:
		if t {
			encoded = "1"
		} else {
			encoded = "0"
		}
	default:
		encoded = fmt.Sprintf("%v", value)
	}

	if err := c.client.Set(ctx, c.key(key, salesChannelID), encoded, 0).Err(); err != nil {
		return fmt.Errorf("failed to set config value: %w", err)
	}
	return nil
}

func (c *ConfigStore) lookup(ctx context.Context, key, salesChannelID string) (string, error) {
	if salesChannelID != "" {
		v, err := c.client.Get(ctx, c.key(key, salesChannelID)).Result()
		if err == nil {
			return v, nil
		}
		if err != redis.Nil {
			return "", fmt.Errorf("failed to get config value: %w", err)
		}
	}

	v, err := c.client.Get(ctx, c.key(key, "")).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config value: %w", err)
	}
	return v, nil
}

var _ flizpay.ConfigStore = (*ConfigStore)(nil)
