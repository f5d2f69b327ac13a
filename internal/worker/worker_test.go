package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/brightclass/video-service/internal/transcoder"
)

// fakeStore records Put calls; putErr makes every Put fail.
type fakeStore struct {
	mu     sync.Mutex
	puts   map[string]string // key -> content type
	putErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{puts: make(map[string]string)}
}

func (f *fakeStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.puts[key] = contentType
	f.mu.Unlock()
	return "https://cdn/" + key, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error          { return nil }
func (f *fakeStore) DeletePrefix(ctx context.Context, prefix string) error { return nil }
func (f *fakeStore) SignedStreamURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed/" + key, nil
}
func (f *fakeStore) DownloadToTemp(ctx context.Context, key string) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeStore) Head(ctx context.Context, key string) (int64, error) { return 0, nil }
func (f *fakeStore) PublicURL(key string) string                         { return "https://cdn/" + key }

func testWorker(objects *fakeStore) *Worker {
	return &Worker{
		objects: objects,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeRenditionDir(t *testing.T, names []string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("data"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestUploadRenditions(t *testing.T) {
	store := newFakeStore()
	w := testWorker(store)
	dir := writeRenditionDir(t, []string{"master.m3u8", "720p.m3u8", "720p_000.ts", "720p_001.ts"})

	if err := w.uploadRenditions(context.Background(), dir, "hls/lesson-1/"); err != nil {
		t.Fatalf("uploadRenditions() error = %v", err)
	}

	var keys []string
	for key := range store.puts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	want := []string{
		"hls/lesson-1/720p.m3u8",
		"hls/lesson-1/720p_000.ts",
		"hls/lesson-1/720p_001.ts",
		"hls/lesson-1/master.m3u8",
	}
	if len(keys) != len(want) {
		t.Fatalf("uploaded %d files, want %d: %v", len(keys), len(want), keys)
	}
	for i, key := range keys {
		if key != want[i] {
			t.Errorf("key[%d] = %s, want %s", i, key, want[i])
		}
	}
	if ct := store.puts["hls/lesson-1/master.m3u8"]; ct != "application/vnd.apple.mpegurl" {
		t.Errorf("playlist content type = %s", ct)
	}
	if ct := store.puts["hls/lesson-1/720p_000.ts"]; ct != "video/mp2t" {
		t.Errorf("segment content type = %s", ct)
	}
}

func TestUploadRenditions_PropagatesPutError(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New("bucket unreachable")
	w := testWorker(store)
	dir := writeRenditionDir(t, []string{"master.m3u8", "480p_000.ts"})

	err := w.uploadRenditions(context.Background(), dir, "hls/lesson-1/")
	if err == nil {
		t.Fatal("uploadRenditions() expected error")
	}
	if !errors.Is(err, store.putErr) {
		t.Errorf("uploadRenditions() error = %v, want the upload failure", err)
	}
}

func TestProbeSource_MissingBinaryIsTolerated(t *testing.T) {
	w := testWorker(newFakeStore())
	w.transcoder = transcoder.New(&transcoder.Config{
		ProbePath: "/nonexistent/ffprobe-for-test",
		Logger:    w.log,
	})

	probe, err := w.probeSource(context.Background(), "input.mp4")
	if err != nil {
		t.Fatalf("probeSource() error = %v, want nil when the binary is absent", err)
	}
	if probe.Height != 0 || probe.DurationSeconds != 0 {
		t.Errorf("probe = %+v, want zero metadata", probe)
	}

	// Zero height keeps the full ladder downstream.
	if got := len(transcoder.SelectPresets(transcoder.DefaultPresets, probe.Height)); got != len(transcoder.DefaultPresets) {
		t.Errorf("SelectPresets() with unknown height returned %d presets", got)
	}
}

func TestHLSContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"master.m3u8", "application/vnd.apple.mpegurl"},
		{"720p_003.TS", "video/mp2t"},
		{"thumb.jpg", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := hlsContentType(tt.name); got != tt.want {
			t.Errorf("hlsContentType(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}
