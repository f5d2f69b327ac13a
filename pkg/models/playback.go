package models

// PlaybackStatus is the status surfaced on a playback descriptor.
type PlaybackStatus string

const (
	PlaybackReady      PlaybackStatus = "ready"
	PlaybackPreparing  PlaybackStatus = "preparing"
	PlaybackProcessing PlaybackStatus = "processing"
	PlaybackErrored    PlaybackStatus = "errored"
	PlaybackNoVideo    PlaybackStatus = "no_video"
	PlaybackError      PlaybackStatus = "error"
)

// PlaybackDescriptor is the unified playback response for a lesson,
// regardless of which backend serves the video.
type PlaybackDescriptor struct {
	Provider        VideoProvider  `json:"provider"`
	HasVideo        bool           `json:"hasVideo"`
	Status          PlaybackStatus `json:"status"`
	PlaybackURL     string         `json:"playbackUrl,omitempty"`
	ThumbnailURL    string         `json:"thumbnailUrl,omitempty"`
	DurationSeconds float64        `json:"duration,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Playback token audiences accepted by the managed provider.
const (
	TokenAudienceVideo      = "video"
	TokenAudienceThumbnail  = "thumbnail"
	TokenAudienceStoryboard = "storyboard"
)

// Default playback token lifetimes in seconds.
const (
	DefaultVideoTokenTTL      = 86400
	DefaultThumbnailTokenTTL  = 604800
	DefaultStoryboardTokenTTL = 604800
)
