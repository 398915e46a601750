package flizpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-FLIZ-SIGNATURE"

// VerifySignature checks a webhook signature against the raw request body.
// The HMAC must be computed over the exact bytes that were signed, never a
// re-serialized payload, because re-serialization can change the byte layout.
// The comparison is constant-time.
func VerifySignature(body []byte, signature, webhookKey string) bool {
	if signature == "" || webhookKey == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(webhookKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// SignPayload computes the hex HMAC-SHA256 signature for a payload. Used by
// tests and tooling that simulate gateway deliveries.
func SignPayload(body []byte, webhookKey string) string {
	mac := hmac.New(sha256.New, []byte(webhookKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
