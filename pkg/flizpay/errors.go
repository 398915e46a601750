package flizpay

import "errors"

var (
	// ErrOrderNotFound is returned when the referenced order does not exist
	ErrOrderNotFound = errors.New("order not found")

	// ErrTransactionNotFound is returned when an order has no transaction
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrIllegalTransition is returned when a transaction state change is not
	// allowed from the current state. The settlement engine recovers from it
	// locally and treats it as an idempotent no-op.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrInvalidSignature is returned when webhook signature validation fails
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrWebhookKeyNotConfigured is returned when no webhook key is stored
	// for the merchant; the webhook caller sees the same unauthorized
	// response as a bad signature
	ErrWebhookKeyNotConfigured = errors.New("webhook key not configured")

	// ErrAPIKeyNotConfigured is returned when an outbound call is attempted
	// without an API key
	ErrAPIKeyNotConfigured = errors.New("api key not configured")

	// ErrGatewaySetup is returned when the gateway configuration flow fails
	ErrGatewaySetup = errors.New("gateway setup failed")
)
