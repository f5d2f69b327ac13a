package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// MaxWebhookAge is how stale a signed webhook timestamp may be before the
// delivery is rejected as a possible replay.
const MaxWebhookAge = 5 * time.Minute

// WebhookVerifier validates provider webhook signature headers of the form
// "t=<unix>,v1=<hex hmac-sha256 of "<unix>.<body>">".
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier creates a verifier for the shared webhook secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Verify checks the signature and timestamp of a webhook delivery.
func (v *WebhookVerifier) Verify(rawBody []byte, signatureHeader string, now time.Time) bool {
	if len(v.secret) == 0 || signatureHeader == "" {
		return false
	}

	timestamp, signatures := parseSignatureHeader(signatureHeader)
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > MaxWebhookAge || age < -MaxWebhookAge {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

// parseSignatureHeader extracts t and all v1 entries from the header.
func parseSignatureHeader(header string) (timestamp string, signatures []string) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	return timestamp, signatures
}
