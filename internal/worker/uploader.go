package worker

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/brightclass/video-service/pkg/models"
)

// MaxConcurrentUploads bounds parallel rendition uploads per job.
const MaxConcurrentUploads = 20

// uploadRenditions pushes every playlist and segment under hlsDir to the
// object store below hlsPrefix. Files upload concurrently; the first
// failure wins and stops new uploads from starting.
func (w *Worker) uploadRenditions(ctx context.Context, hlsDir, hlsPrefix string) error {
	entries, err := os.ReadDir(hlsDir)
	if err != nil {
		return fmt.Errorf("failed to read rendition directory: %w", err)
	}

	var firstErr atomic.Pointer[error]
	sem := make(chan struct{}, MaxConcurrentUploads)
	var wg sync.WaitGroup

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if firstErr.Load() != nil {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return fmt.Errorf("%w: during rendition upload", models.ErrContextCanceled)
		}

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()

			if firstErr.Load() != nil {
				return
			}

			file, err := os.Open(filepath.Join(hlsDir, name))
			if err != nil {
				wrapped := fmt.Errorf("failed to open rendition file %s: %w", name, err)
				firstErr.CompareAndSwap(nil, &wrapped)
				return
			}
			defer file.Close()

			key := path.Join(hlsPrefix, name)
			if _, putErr := w.objects.Put(ctx, key, file, hlsContentType(name)); putErr != nil {
				firstErr.CompareAndSwap(nil, &putErr)
				return
			}

			w.log.DebugContext(ctx, "Uploaded rendition file", "key", key)
		}(entry.Name())
	}

	wg.Wait()
	if errPtr := firstErr.Load(); errPtr != nil {
		return *errPtr
	}
	return nil
}

func hlsContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	default:
		return "application/octet-stream"
	}
}
