package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func signPayload(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifier_Verify(t *testing.T) {
	const secret = "whsec_test"
	body := []byte(`{"type":"video.asset.ready"}`)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ts := now.Unix()
	goodSig := signPayload(secret, ts, body)

	v := NewWebhookVerifier(secret)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"valid signature", fmt.Sprintf("t=%d,v1=%s", ts, goodSig), true},
		{"valid with spaces", fmt.Sprintf("t=%d, v1=%s", ts, goodSig), true},
		{"wrong signature", fmt.Sprintf("t=%d,v1=%s", ts, signPayload("other-secret", ts, body)), false},
		{"signature for different body", fmt.Sprintf("t=%d,v1=%s", ts, signPayload(secret, ts, []byte("{}"))), false},
		{"empty header", "", false},
		{"missing timestamp", "v1=" + goodSig, false},
		{"missing signature", fmt.Sprintf("t=%d", ts), false},
		{"non-numeric timestamp", "t=yesterday,v1=" + goodSig, false},
		{"garbage", "not-a-signature-header", false},
		{
			"second v1 entry matches",
			fmt.Sprintf("t=%d,v1=%s,v1=%s", ts, signPayload("rotated", ts, body), goodSig),
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.Verify(body, tt.header, now); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWebhookVerifier_TimestampWindow(t *testing.T) {
	const secret = "whsec_test"
	body := []byte(`{}`)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	v := NewWebhookVerifier(secret)

	tests := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"fresh", now.Add(-time.Minute), true},
		{"at the edge", now.Add(-MaxWebhookAge), true},
		{"too old", now.Add(-MaxWebhookAge - time.Second), false},
		{"slightly in the future", now.Add(time.Minute), true},
		{"too far in the future", now.Add(MaxWebhookAge + time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := tt.ts.Unix()
			header := fmt.Sprintf("t=%d,v1=%s", ts, signPayload(secret, ts, body))
			if got := v.Verify(body, header, now); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWebhookVerifier_EmptySecret(t *testing.T) {
	v := NewWebhookVerifier("")
	now := time.Now()
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signPayload("", now.Unix(), []byte("{}")))

	if v.Verify([]byte("{}"), header, now) {
		t.Error("Verify() = true with an empty secret")
	}
}
