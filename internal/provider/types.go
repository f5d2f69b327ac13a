package provider

import "encoding/json"

// PlaybackPolicy controls how playback URLs for an asset are authorized.
type PlaybackPolicy string

const (
	PolicyPublic PlaybackPolicy = "public"
	PolicySigned PlaybackPolicy = "signed"
)

// DirectUploadRequest configures a new direct upload.
type DirectUploadRequest struct {
	CORSOrigin     string            `json:"cors_origin,omitempty"`
	PlaybackPolicy PlaybackPolicy    `json:"playback_policy,omitempty"`
	Passthrough    map[string]string `json:"passthrough,omitempty"`
	TimeoutSeconds int               `json:"timeout,omitempty"`
}

// DirectUpload is a minted upload slot. The client PUTs raw bytes to URL.
type DirectUpload struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	Status         string `json:"status"`
	TimeoutSeconds int    `json:"timeout"`
	AssetID        string `json:"asset_id,omitempty"`
}

// Upload is the state of a direct upload after creation.
type Upload struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	AssetID string `json:"asset_id,omitempty"`
}

// PlaybackID is one playback handle on an asset.
type PlaybackID struct {
	ID     string         `json:"id"`
	Policy PlaybackPolicy `json:"policy"`
}

// Track is one media track of an asset.
type Track struct {
	Type            string  `json:"type"`
	DurationSeconds float64 `json:"duration,omitempty"`
	MaxWidth        int     `json:"max_width,omitempty"`
	MaxHeight       int     `json:"max_height,omitempty"`
}

// AssetError is the provider's error payload on an errored asset.
type AssetError struct {
	Type     string   `json:"type,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

// Asset is a provider-side video asset.
type Asset struct {
	ID              string       `json:"id"`
	Status          string       `json:"status"` // preparing, processing, ready, errored
	PlaybackIDs     []PlaybackID `json:"playback_ids,omitempty"`
	DurationSeconds float64      `json:"duration,omitempty"`
	AspectRatio     string       `json:"aspect_ratio,omitempty"`
	Tracks          []Track      `json:"tracks,omitempty"`
	Errors          *AssetError  `json:"errors,omitempty"`
	Passthrough     string       `json:"passthrough,omitempty"`
	CreatedAt       string       `json:"created_at,omitempty"`
}

// Ready reports whether the asset finished processing with a playback handle.
func (a *Asset) Ready() bool {
	return a.Status == "ready" && len(a.PlaybackIDs) > 0
}

// FirstPlaybackID returns the asset's first playback id, or "".
func (a *Asset) FirstPlaybackID() string {
	if len(a.PlaybackIDs) == 0 {
		return ""
	}
	return a.PlaybackIDs[0].ID
}

// SigningKey is a provider signing key for signed playback tokens.
type SigningKey struct {
	ID         string `json:"id"`
	PrivateKey string `json:"private_key,omitempty"` // base64-encoded PEM, returned once on create
	CreatedAt  string `json:"created_at,omitempty"`
}

// WebhookEvent is a provider callback payload.
type WebhookEvent struct {
	Type      string          `json:"type"`
	CreatedAt string          `json:"created_at,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// WebhookAsset is the data payload of asset.* events.
type WebhookAsset struct {
	ID          string       `json:"id"`
	Status      string       `json:"status,omitempty"`
	PlaybackIDs []PlaybackID `json:"playback_ids,omitempty"`
	Duration    float64      `json:"duration,omitempty"`
	Errors      *AssetError  `json:"errors,omitempty"`
	Passthrough string       `json:"passthrough,omitempty"`
	UploadID    string       `json:"upload_id,omitempty"`
}

// WebhookUpload is the data payload of upload.* events.
type WebhookUpload struct {
	ID          string `json:"id"`
	Status      string `json:"status,omitempty"`
	AssetID     string `json:"asset_id,omitempty"`
	Passthrough string `json:"passthrough,omitempty"`
}
