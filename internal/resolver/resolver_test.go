package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/brightclass/video-service/pkg/models"
)

type fakeSigner struct {
	url string
	err error
}

func (f *fakeSigner) SignedStreamURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return f.url + key, f.err
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		lesson models.Lesson
		want   models.VideoProvider
	}{
		{
			"playback id wins",
			models.Lesson{Managed: models.ManagedVideo{PlaybackID: "pb-1"}, ObjectKey: "originals/a.mp4"},
			models.ProviderManaged,
		},
		{
			"ready managed asset without playback id",
			models.Lesson{Managed: models.ManagedVideo{AssetID: "a-1", Status: models.ManagedReady}},
			models.ProviderManaged,
		},
		{
			"declared managed with pending asset",
			models.Lesson{VideoProvider: models.ProviderManaged, Managed: models.ManagedVideo{AssetID: "a-1", Status: models.ManagedProcessing}},
			models.ProviderManaged,
		},
		{
			"declared self with video",
			models.Lesson{VideoProvider: models.ProviderSelf, ObjectKey: "originals/a.mp4"},
			models.ProviderSelf,
		},
		{
			"undeclared self video falls back",
			models.Lesson{VideoURL: "https://cdn/v.mp4"},
			models.ProviderSelf,
		},
		{
			"declared managed with no asset but self video",
			models.Lesson{VideoProvider: models.ProviderManaged, HLSURL: "https://cdn/hls/a/master.m3u8"},
			models.ProviderSelf,
		},
		{
			"nothing",
			models.Lesson{},
			models.ProviderNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(&tt.lesson); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_NoVideo(t *testing.T) {
	r := New(&fakeSigner{}, nil, false)

	desc, err := r.Resolve(context.Background(), &models.Lesson{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if desc.HasVideo {
		t.Error("HasVideo = true for empty lesson")
	}
	if desc.Status != models.PlaybackNoVideo {
		t.Errorf("Status = %v, want %v", desc.Status, models.PlaybackNoVideo)
	}
}

func TestResolve_ManagedStates(t *testing.T) {
	r := New(&fakeSigner{}, nil, false)

	tests := []struct {
		name       string
		managed    models.ManagedVideo
		wantStatus models.PlaybackStatus
	}{
		{"ready", models.ManagedVideo{PlaybackID: "pb-1", Status: models.ManagedReady}, models.PlaybackReady},
		{"ready without playback id", models.ManagedVideo{AssetID: "a-1", Status: models.ManagedReady}, models.PlaybackProcessing},
		{"preparing", models.ManagedVideo{PlaybackID: "pb-1", Status: models.ManagedPreparing}, models.PlaybackPreparing},
		{"processing", models.ManagedVideo{PlaybackID: "pb-1", Status: models.ManagedProcessing}, models.PlaybackProcessing},
		{"errored", models.ManagedVideo{PlaybackID: "pb-1", Status: models.ManagedErrored, Error: "boom"}, models.PlaybackError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lesson := &models.Lesson{VideoProvider: models.ProviderManaged, Managed: tt.managed}
			desc, err := r.Resolve(context.Background(), lesson)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if desc.Provider != models.ProviderManaged {
				t.Errorf("Provider = %v, want managed", desc.Provider)
			}
			if desc.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", desc.Status, tt.wantStatus)
			}
		})
	}
}

func TestResolve_SelfHLSPreferred(t *testing.T) {
	r := New(&fakeSigner{url: "signed://"}, nil, false)

	lesson := &models.Lesson{
		VideoProvider: models.ProviderSelf,
		HLSURL:        "https://cdn/hls/a/master.m3u8",
		ObjectKey:     "originals/a.mp4",
	}
	desc, err := r.Resolve(context.Background(), lesson)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if desc.PlaybackURL != lesson.HLSURL {
		t.Errorf("PlaybackURL = %q, want the HLS URL", desc.PlaybackURL)
	}
	if adaptive := desc.Metadata["supportsAdaptiveStreaming"].(bool); !adaptive {
		t.Error("supportsAdaptiveStreaming = false for HLS playback")
	}
	if desc.Metadata["format"] != "hls" {
		t.Errorf("format = %v, want hls", desc.Metadata["format"])
	}
}

func TestResolve_SelfSignsOriginal(t *testing.T) {
	r := New(&fakeSigner{url: "signed://"}, nil, false)

	lesson := &models.Lesson{
		VideoProvider: models.ProviderSelf,
		ObjectKey:     "originals/a.mp4",
	}
	desc, err := r.Resolve(context.Background(), lesson)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if desc.PlaybackURL != "signed://originals/a.mp4" {
		t.Errorf("PlaybackURL = %q, want signed URL", desc.PlaybackURL)
	}
	if adaptive := desc.Metadata["supportsAdaptiveStreaming"].(bool); adaptive {
		t.Error("supportsAdaptiveStreaming = true for a raw original")
	}
	if desc.Metadata["format"] != "mp4" {
		t.Errorf("format = %v, want mp4", desc.Metadata["format"])
	}
}

func TestResolve_SelfWebMFormat(t *testing.T) {
	r := New(&fakeSigner{url: "signed://"}, nil, false)

	lesson := &models.Lesson{
		VideoProvider: models.ProviderSelf,
		ObjectKey:     "originals/recording.webm",
	}
	desc, err := r.Resolve(context.Background(), lesson)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if desc.Metadata["format"] != "webm" {
		t.Errorf("format = %v, want webm", desc.Metadata["format"])
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short message", "encode failed", "encode failed"},
		{"first line only", "encode failed\nstack trace follows", "encode failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redact(tt.in); got != tt.want {
				t.Errorf("redact() = %q, want %q", got, tt.want)
			}
		})
	}

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	if got := redact(string(long)); len(got) != 140 {
		t.Errorf("redact() length = %d, want 140", len(got))
	}
}
