package flizpay

import (
	"fmt"
	"time"

	"github.com/flizpay/flizpay-go/pkg/flizpay/internal"
)

const (
	defaultMaxBodyBytes      = 256 * 1024
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
)

// Config configures a webhook Service.
type Config struct {
	// Orders resolves and mutates orders. Required.
	Orders OrderStore

	// Transactions transitions order transactions. Required.
	Transactions TransactionStateHandler

	// ConfigStore provides merchant configuration (webhook key, cashback
	// data). Required.
	ConfigStore ConfigStore

	// SalesChannelID scopes configuration lookups. Empty addresses the
	// merchant-wide default scope.
	SalesChannelID string

	// Logger is used for structured logging (default: NoopLogger).
	Logger Logger

	// Metrics tracks webhook operations (default: NoopMetrics).
	Metrics Metrics

	// MaxBodyBytes caps the webhook request body (default: 256KB).
	MaxBodyBytes int64

	// RateLimitRequests is the per-IP request budget for the webhook
	// endpoint within RateLimitWindow (default: 100 per minute).
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Service receives gateway webhook deliveries, authenticates them and applies
// payment settlements and cashback to orders.
type Service struct {
	orders         OrderStore
	transactions   TransactionStateHandler
	config         ConfigStore
	salesChannelID string
	logger         Logger
	metrics        Metrics
	maxBodyBytes   int64
	rateLimiter    *internal.RateLimiter
	now            func() time.Time
}

// New creates a webhook Service.
func New(cfg Config) (*Service, error) {
	if cfg.Orders == nil {
		return nil, fmt.Errorf("order store is required")
	}
	if cfg.Transactions == nil {
		return nil, fmt.Errorf("transaction state handler is required")
	}
	if cfg.ConfigStore == nil {
		return nil, fmt.Errorf("config store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	rateLimitRequests := cfg.RateLimitRequests
	if rateLimitRequests <= 0 {
		rateLimitRequests = defaultRateLimitRequests
	}
	rateLimitWindow := cfg.RateLimitWindow
	if rateLimitWindow <= 0 {
		rateLimitWindow = defaultRateLimitWindow
	}

	return &Service{
		orders:         cfg.Orders,
		transactions:   cfg.Transactions,
		config:         cfg.ConfigStore,
		salesChannelID: cfg.SalesChannelID,
		logger:         logger,
		metrics:        metrics,
		maxBodyBytes:   maxBody,
		rateLimiter:    internal.NewRateLimiter(rateLimitRequests, rateLimitWindow),
		now:            time.Now,
	}, nil
}
