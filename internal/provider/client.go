// Package provider is the typed facade over the managed video platform's
// REST API: direct uploads, assets, signing keys, playback tokens, and
// webhook signature verification.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brightclass/video-service/internal/metrics"
	"github.com/brightclass/video-service/pkg/models"
	"github.com/brightclass/video-service/pkg/retry"
)

// DefaultRequestTimeout bounds every provider API call.
const DefaultRequestTimeout = 30 * time.Second

var tracer = otel.Tracer("video-provider")

// Client is the managed provider API client.
type Client struct {
	baseURL     string
	tokenID     string
	tokenSecret string
	httpClient  *http.Client
	retryPolicy retry.Policy
	signer      *TokenSigner
	webhook     *WebhookVerifier
	log         *slog.Logger
}

// Config holds client construction parameters.
type Config struct {
	BaseURL       string
	TokenID       string
	TokenSecret   string
	WebhookSecret string
	SigningKeyID  string
	// SigningKeyPrivate is the base64-encoded PEM RSA private key.
	SigningKeyPrivate string
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// New creates a provider client. When signing key material is configured it
// is decoded eagerly so bad keys fail at startup, not at playback time.
func New(cfg *Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}

	c := &Client{
		baseURL:     cfg.BaseURL,
		tokenID:     cfg.TokenID,
		tokenSecret: cfg.TokenSecret,
		httpClient:  httpClient,
		retryPolicy: retry.Policy{
			MaxAttempts: retry.DefaultMaxAttempts,
			Base:        retry.DefaultBase,
			Retryable: func(err error) bool {
				return errors.Is(err, models.ErrProviderUnavailable)
			},
		},
		webhook: NewWebhookVerifier(cfg.WebhookSecret),
		log:     cfg.Logger,
	}

	if cfg.SigningKeyID != "" && cfg.SigningKeyPrivate != "" {
		signer, err := NewTokenSigner(cfg.SigningKeyID, cfg.SigningKeyPrivate)
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
		c.signer = signer
	}

	return c, nil
}

// Signer returns the playback token signer, or nil if signing keys are not
// configured.
func (c *Client) Signer() *TokenSigner {
	return c.signer
}

// SetSigner installs a signer provisioned at runtime via CreateSigningKey.
func (c *Client) SetSigner(s *TokenSigner) {
	c.signer = s
}

// CreateDirectUpload mints an upload URL the caller PUTs raw bytes to.
func (c *Client) CreateDirectUpload(ctx context.Context, req *DirectUploadRequest) (*DirectUpload, error) {
	ctx, span := tracer.Start(ctx, "provider-create-direct-upload")
	defer span.End()

	body := map[string]any{
		"cors_origin": req.CORSOrigin,
		"new_asset_settings": map[string]any{
			"playback_policy": []PlaybackPolicy{req.PlaybackPolicy},
			"passthrough":     encodePassthrough(req.Passthrough),
		},
	}
	if req.TimeoutSeconds > 0 {
		body["timeout"] = req.TimeoutSeconds
	}

	var out struct {
		Data DirectUpload `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/uploads", body, &out, "create_direct_upload"); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("provider.upload_id", out.Data.ID))
	return &out.Data, nil
}

// GetUpload fetches the state of a direct upload.
func (c *Client) GetUpload(ctx context.Context, uploadID string) (*Upload, error) {
	if uploadID == "" {
		return nil, fmt.Errorf("%w: upload id required", models.ErrInvalidInput)
	}

	var out struct {
		Data Upload `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/uploads/"+uploadID, nil, &out, "get_upload"); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// GetAsset fetches a provider asset.
func (c *Client) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	if assetID == "" {
		return nil, fmt.Errorf("%w: asset id required", models.ErrInvalidInput)
	}

	var out struct {
		Data Asset `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/assets/"+assetID, nil, &out, "get_asset"); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// DeleteAsset removes a provider asset. Deleting a missing asset succeeds.
func (c *Client) DeleteAsset(ctx context.Context, assetID string) error {
	if assetID == "" {
		return nil
	}

	err := c.do(ctx, http.MethodDelete, "/assets/"+assetID, nil, nil, "delete_asset")
	if err != nil && errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}

// ListSigningKeys returns existing signing keys (ids only; private keys are
// never returned after creation).
func (c *Client) ListSigningKeys(ctx context.Context) ([]SigningKey, error) {
	var out struct {
		Data []SigningKey `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/signing-keys", nil, &out, "list_signing_keys"); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateSigningKey provisions a new signing key. The private key in the
// response is base64-encoded PEM and only available here.
func (c *Client) CreateSigningKey(ctx context.Context) (*SigningKey, error) {
	var out struct {
		Data SigningKey `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/signing-keys", map[string]any{}, &out, "create_signing_key"); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// VerifyWebhookSignature checks a webhook delivery's signature header.
func (c *Client) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	return c.webhook.Verify(rawBody, signatureHeader, time.Now())
}

// do issues one API request with basic auth, retrying transient failures.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, operation string) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	err := c.retryPolicy.Do(ctx, func(ctx context.Context) error {
		return c.once(ctx, method, path, payload, out)
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ProviderRequests.WithLabelValues(operation, status).Inc()
	return err
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.tokenID, c.tokenSecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", models.ErrProviderUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", models.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("%w: invalid response body: %v", models.ErrProviderRejected, err)
			}
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", models.ErrNotFound, method, path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %d", models.ErrProviderUnavailable, method, path, resp.StatusCode)
	default:
		// Non-retryable 4xx; carry the provider's error body for the caller.
		return fmt.Errorf("%w: %s %s: status %d: %s",
			models.ErrProviderRejected, method, path, resp.StatusCode, string(respBody))
	}
}

// encodePassthrough serializes correlation metadata into the opaque
// passthrough string the provider echoes back on webhooks.
func encodePassthrough(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// DecodePassthrough parses a passthrough blob back into metadata. Unparseable
// blobs return an empty map so webhook handling never fails on them.
func DecodePassthrough(s string) map[string]string {
	out := map[string]string{}
	if s == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}
