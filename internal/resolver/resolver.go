// Package resolver maps a lesson's video fields onto a unified playback
// descriptor, choosing between the managed provider and self-hosted storage.
package resolver

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/brightclass/video-service/internal/provider"
	"github.com/brightclass/video-service/pkg/models"
)

// StreamSigner mints time-limited URLs for self-hosted object keys.
type StreamSigner interface {
	SignedStreamURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// DefaultStreamTTL bounds signed self-hosted playback URLs.
const DefaultStreamTTL = 6 * time.Hour

// Resolver builds playback descriptors. Decide is a pure function of the
// lesson; Resolve only adds URL signing on top of it.
type Resolver struct {
	signer       StreamSigner
	tokens       *provider.TokenSigner
	signedPolicy bool
}

// New creates a Resolver. tokens may be nil when playback policy is public.
func New(signer StreamSigner, tokens *provider.TokenSigner, signedPolicy bool) *Resolver {
	return &Resolver{signer: signer, tokens: tokens, signedPolicy: signedPolicy}
}

// Decide returns which provider serves the lesson's video. Pure and total;
// the priority order is strict and short-circuits on first match.
func Decide(lesson *models.Lesson) models.VideoProvider {
	switch {
	case lesson.Managed.PlaybackID != "":
		return models.ProviderManaged
	case lesson.Managed.AssetID != "" && lesson.Managed.Status == models.ManagedReady:
		return models.ProviderManaged
	case lesson.VideoProvider == models.ProviderManaged && lesson.Managed.AssetID != "":
		return models.ProviderManaged
	case lesson.VideoProvider == models.ProviderSelf && lesson.HasSelfVideo():
		return models.ProviderSelf
	case lesson.HasSelfVideo():
		return models.ProviderSelf
	default:
		return models.ProviderNone
	}
}

// Resolve produces the playback descriptor for a lesson.
func (r *Resolver) Resolve(ctx context.Context, lesson *models.Lesson) (*models.PlaybackDescriptor, error) {
	switch Decide(lesson) {
	case models.ProviderManaged:
		return r.resolveManaged(lesson)
	case models.ProviderSelf:
		return r.resolveSelf(ctx, lesson)
	default:
		return &models.PlaybackDescriptor{
			Provider: models.ProviderNone,
			HasVideo: false,
			Status:   models.PlaybackNoVideo,
		}, nil
	}
}

func (r *Resolver) resolveManaged(lesson *models.Lesson) (*models.PlaybackDescriptor, error) {
	desc := &models.PlaybackDescriptor{
		Provider:        models.ProviderManaged,
		HasVideo:        true,
		ThumbnailURL:    lesson.ThumbnailURL,
		DurationSeconds: lesson.DurationSeconds,
		Metadata: map[string]any{
			"assetId":                   lesson.Managed.AssetID,
			"playbackId":                lesson.Managed.PlaybackID,
			"uploadId":                  lesson.Managed.UploadID,
			"supportsAdaptiveStreaming": true,
			"format":                    "hls",
		},
	}

	switch lesson.Managed.Status {
	case models.ManagedReady:
		if lesson.Managed.PlaybackID != "" {
			desc.Status = models.PlaybackReady
			desc.PlaybackURL = lesson.Managed.PlaybackID
			if r.signedPolicy && r.tokens != nil {
				token, err := r.tokens.GeneratePlaybackToken(lesson.Managed.PlaybackID, provider.TokenOptions{
					Type: models.TokenAudienceVideo,
				})
				if err != nil {
					return nil, err
				}
				desc.Metadata["playbackToken"] = token
			}
		} else {
			// Ready without a playback handle; reconciliation will fill it in.
			desc.Status = models.PlaybackProcessing
		}
	case models.ManagedPreparing:
		desc.Status = models.PlaybackPreparing
	case models.ManagedProcessing:
		desc.Status = models.PlaybackProcessing
	case models.ManagedErrored:
		desc.Status = models.PlaybackError
		desc.Metadata["error"] = redact(lesson.Managed.Error)
	default:
		desc.Status = models.PlaybackPreparing
	}

	return desc, nil
}

func (r *Resolver) resolveSelf(ctx context.Context, lesson *models.Lesson) (*models.PlaybackDescriptor, error) {
	desc := &models.PlaybackDescriptor{
		Provider:        models.ProviderSelf,
		HasVideo:        true,
		Status:          models.PlaybackReady,
		ThumbnailURL:    lesson.ThumbnailURL,
		DurationSeconds: lesson.DurationSeconds,
	}

	adaptive := false
	var playbackURL string

	switch {
	case isHLSURL(lesson.VideoURL):
		playbackURL = lesson.VideoURL
		adaptive = true
	case lesson.HLSURL != "":
		playbackURL = lesson.HLSURL
		adaptive = true
	case lesson.ObjectKey != "":
		signed, err := r.signer.SignedStreamURL(ctx, lesson.ObjectKey, DefaultStreamTTL)
		if err != nil {
			return nil, err
		}
		playbackURL = signed
	default:
		playbackURL = lesson.VideoURL
	}

	desc.PlaybackURL = playbackURL
	desc.Metadata = map[string]any{
		"objectKey":                 lesson.ObjectKey,
		"videoUrl":                  lesson.VideoURL,
		"hlsUrl":                    lesson.HLSURL,
		"supportsAdaptiveStreaming": adaptive,
		"format":                    selfFormat(adaptive, lesson),
	}
	return desc, nil
}

// isHLSURL reports whether the URL already points at an HLS playlist.
func isHLSURL(url string) bool {
	return url != "" && (strings.Contains(url, ".m3u8") || strings.Contains(url, "/hls/"))
}

func selfFormat(adaptive bool, lesson *models.Lesson) string {
	if adaptive {
		return "hls"
	}
	source := lesson.ObjectKey
	if source == "" {
		source = lesson.VideoURL
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(source), "."))
	if ext == "webm" {
		return "webm"
	}
	return "mp4"
}

// redact trims an upstream error payload to a short summary so raw provider
// bodies never reach playback clients.
func redact(msg string) string {
	const maxLen = 140
	if idx := strings.IndexByte(msg, '\n'); idx != -1 {
		msg = msg[:idx]
	}
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
