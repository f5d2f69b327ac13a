package models

// Progress event types published on the progress bus.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventFailed   = "failed"
)

// ProgressEvent is the JSON payload streamed to subscribed clients while a
// lesson's video is transcoding or migrating.
type ProgressEvent struct {
	Type        string  `json:"type"`
	LessonID    string  `json:"lessonId,omitempty"`
	Progress    float64 `json:"progress,omitempty"`
	CurrentStep string  `json:"currentStep,omitempty"`
	VideoURL    string  `json:"videoUrl,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// DashboardEvent is the JSON payload pushed to dashboard subscribers.
type DashboardEvent struct {
	Type       string `json:"type"`
	UpdateType string `json:"updateType"`
	Payload    any    `json:"payload,omitempty"`
}

// Webhook event names delivered by the managed provider.
const (
	WebhookAssetReady         = "video.asset.ready"
	WebhookAssetErrored       = "video.asset.errored"
	WebhookAssetDeleted       = "video.asset.deleted"
	WebhookUploadAssetCreated = "video.upload.asset_created"
	WebhookUploadCancelled    = "video.upload.cancelled"
	WebhookUploadErrored      = "video.upload.errored"
)
