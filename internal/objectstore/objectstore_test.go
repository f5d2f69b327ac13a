package objectstore

import (
	"log/slog"
	"testing"
)

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"originals/abc-123-talk.mp4", true},
		{"hls/abc-123-talk/master.m3u8", true},
		{"thumbnails/abc.jpg", false},
		{"originals", false},
		{"", false},
		{"/originals/abc.mp4", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := ValidKey(tt.key); got != tt.want {
				t.Errorf("ValidKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestHLSPrefixFor(t *testing.T) {
	tests := []struct {
		objectKey string
		want      string
	}{
		{"originals/abc-123-talk.mp4", "hls/abc-123-talk/"},
		{"originals/no-extension", "hls/no-extension/"},
		{"originals/two.dots.webm", "hls/two.dots/"},
		{"bare.mp4", "hls/bare/"},
	}

	for _, tt := range tests {
		t.Run(tt.objectKey, func(t *testing.T) {
			if got := HLSPrefixFor(tt.objectKey); got != tt.want {
				t.Errorf("HLSPrefixFor(%q) = %q, want %q", tt.objectKey, got, tt.want)
			}
		})
	}
}

func TestPublicURL(t *testing.T) {
	// s3.NewPresignClient panics on a nil client, so build the store
	// directly instead of going through NewFromClient.
	withCDN := &S3Store{bucket: "videos", region: "us-east-1", cdnDomain: "cdn.example.com", log: slog.Default()}
	if got := withCDN.PublicURL("hls/a/master.m3u8"); got != "https://cdn.example.com/hls/a/master.m3u8" {
		t.Errorf("PublicURL() = %q", got)
	}

	noCDN := &S3Store{bucket: "videos", region: "us-east-1", log: slog.Default()}
	if got := noCDN.PublicURL("hls/a/master.m3u8"); got != "https://videos.s3.us-east-1.amazonaws.com/hls/a/master.m3u8" {
		t.Errorf("PublicURL() = %q", got)
	}
}
