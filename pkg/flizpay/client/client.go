// Package client implements the outbound FLIZpay business API used to
// onboard a merchant (webhook registration, webhook key generation, cashback
// rates) and to start checkout transactions. The settlement core treats it
// as a black box; see https://docs.flizpay.de for the endpoint catalogue.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/flizpay/flizpay-go/pkg/flizpay"
)

// DefaultBaseURL is the production FLIZpay API endpoint.
const DefaultBaseURL = "https://api.flizpay.de"

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "flizpay-go/1.0"
)

// Config configures a Client.
type Config struct {
	// APIKey authenticates every request. Required.
	APIKey string

	// BaseURL overrides the API endpoint (default: DefaultBaseURL).
	BaseURL string

	// HTTPClient is an optional HTTP client. If nil, a default client with
	// a 30s timeout is used. Allows custom timeouts, proxies, or
	// instrumentation.
	HTTPClient *http.Client

	// UserAgent overrides the User-Agent header.
	UserAgent string

	// Logger is used for structured logging (default: NoopLogger).
	Logger flizpay.Logger

	// Metrics tracks outbound API calls (default: NoopMetrics).
	Metrics flizpay.Metrics
}

// Client calls the FLIZpay business API.
type Client struct {
	apiKey     string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     flizpay.Logger
	metrics    flizpay.Metrics
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, flizpay.ErrAPIKeyNotConfigured
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &flizpay.NoopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &flizpay.NoopMetrics{}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// GenerateWebhookKey requests a fresh webhook signing secret for the merchant.
func (c *Client) GenerateWebhookKey(ctx context.Context) (string, error) {
	var out struct {
		WebhookKey string `json:"webhookKey"`
	}
	if err := c.do(ctx, http.MethodGet, "/business/generate-webhook-key", nil, &out); err != nil {
		return "", err
	}
	if out.WebhookKey == "" {
		return "", fmt.Errorf("gateway returned no webhook key")
	}
	return out.WebhookKey, nil
}

// RegisterWebhookURL registers the shop's webhook endpoint and returns the
// URL the gateway confirmed. A confirmation that differs from what was sent
// means the gateway did not save it.
func (c *Client) RegisterWebhookURL(ctx context.Context, webhookURL string) (string, error) {
	body := map[string]string{"webhookUrl": webhookURL}
	var out struct {
		WebhookURL string `json:"webhookUrl"`
	}
	if err := c.do(ctx, http.MethodPost, "/business/edit", body, &out); err != nil {
		return "", err
	}
	if out.WebhookURL != webhookURL {
		return "", fmt.Errorf("gateway did not confirm webhook url %q (got %q)", webhookURL, out.WebhookURL)
	}
	return out.WebhookURL, nil
}

// FetchCashbackData retrieves the merchant's first active cashback program
// with a positive rate, or nil when none is active.
func (c *Client) FetchCashbackData(ctx context.Context) (*flizpay.CashbackData, error) {
	var out struct {
		Cashbacks []struct {
			Active              bool    `json:"active"`
			FirstPurchaseAmount float64 `json:"firstPurchaseAmount"`
			Amount              float64 `json:"amount"`
		} `json:"cashbacks"`
	}
	if err := c.do(ctx, http.MethodGet, "/business/cashback", nil, &out); err != nil {
		return nil, err
	}

	for _, cb := range out.Cashbacks {
		if cb.Active && (cb.FirstPurchaseAmount > 0 || cb.Amount > 0) {
			return &flizpay.CashbackData{
				FirstPurchaseAmount: cb.FirstPurchaseAmount,
				StandardAmount:      cb.Amount,
			}, nil
		}
	}
	return nil, nil
}

// Customer identifies the paying customer of a transaction.
type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// TransactionRequest starts a checkout transaction at the gateway.
type TransactionRequest struct {
	Amount        float64  `json:"amount"`
	Currency      string   `json:"currency"`
	ExternalID    string   `json:"externalId"`
	SuccessURL    string   `json:"successUrl"`
	FailureURL    string   `json:"failureUrl"`
	Customer      Customer `json:"customer"`
	Source        string   `json:"source"`
	NeedsShipping bool     `json:"needsShipping"`
}

// CreateTransaction creates a payment transaction and returns the checkout
// redirect URL the customer is sent to.
func (c *Client) CreateTransaction(ctx context.Context, req *TransactionRequest) (string, error) {
	var out struct {
		RedirectURL string `json:"redirectUrl"`
	}
	if err := c.do(ctx, http.MethodPost, "/transactions", req, &out); err != nil {
		return "", err
	}
	if out.RedirectURL == "" {
		return "", fmt.Errorf("gateway returned no redirect url")
	}
	return out.RedirectURL, nil
}

// apiEnvelope is the gateway's response wrapper. Payloads live under "data";
// error responses carry a message.
type apiEnvelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	start := time.Now()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAPICall(path, "error")
		c.logger.Error("gateway API call failed",
			flizpay.Field{Key: "method", Value: method},
			flizpay.Field{Key: "endpoint", Value: path},
			flizpay.Field{Key: "error", Value: err.Error()},
		)
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.RecordAPICall(path, strconv.Itoa(resp.StatusCode))
	c.metrics.RecordAPICallDuration(path, time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("invalid JSON response from gateway: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("gateway API returned error",
			flizpay.Field{Key: "method", Value: method},
			flizpay.Field{Key: "endpoint", Value: path},
			flizpay.Field{Key: "status", Value: resp.StatusCode},
			flizpay.Field{Key: "message", Value: envelope.Message},
		)
		return fmt.Errorf("gateway error %d: %s", resp.StatusCode, envelope.Message)
	}

	if out == nil {
		return nil
	}

	// Payloads are wrapped under "data"; fall back to the whole body for
	// endpoints that respond unwrapped.
	payload := raw
	if len(envelope.Data) > 0 {
		payload = envelope.Data
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
