// Package migrate moves self-hosted lesson videos onto the managed
// provider in bulk, with verification and rollback.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brightclass/video-service/internal/metrics"
	"github.com/brightclass/video-service/internal/objectstore"
	"github.com/brightclass/video-service/internal/progress"
	"github.com/brightclass/video-service/internal/provider"
	"github.com/brightclass/video-service/internal/videostore"
	"github.com/brightclass/video-service/pkg/models"
	"github.com/brightclass/video-service/pkg/retry"
)

// Migration limits
const (
	DefaultBatchSize     = 3
	DefaultRetryAttempts = 2
	InterWaveDelay       = 2 * time.Second
	StreamCopyTimeout    = 10 * time.Minute
	sourceURLTTL         = time.Hour
)

// Lesson migration outcomes
const (
	StatusMigrated        = "migrated"
	StatusAlreadyMigrated = "already_migrated"
	StatusSkipped         = "skipped"
	StatusFailed          = "failed"
)

// BatchOptions tune a bulk migration run.
type BatchOptions struct {
	BatchSize      int  `json:"batchSize,omitempty"`
	KeepSelfBackup bool `json:"keepSelfBackup,omitempty"`
	RetryAttempts  int  `json:"retryAttempts,omitempty"`
}

// LessonResult is the outcome for one lesson in a batch.
type LessonResult struct {
	LessonID string `json:"lessonId"`
	Status   string `json:"status"`
	UploadID string `json:"uploadId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResult aggregates a bulk migration run.
type BatchResult struct {
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Details    []LessonResult `json:"details"`
	DurationMS int64          `json:"durationMs"`
}

// VerifyResult reports the provider-side state after migration.
type VerifyResult struct {
	LessonID   string `json:"lessonId"`
	Verified   bool   `json:"verified"`
	Status     string `json:"status"`
	PlaybackID string `json:"playbackId,omitempty"`
}

// Engine migrates lesson videos to the managed provider.
type Engine struct {
	videos   *videostore.Store
	objects  objectstore.Store
	provider *provider.Client
	bus      *progress.Bus
	copier   *http.Client
	maxBytes int64
	sleep    retry.Sleeper
	log      *slog.Logger
}

// New creates an Engine. maxBytes caps the size of a single migrated video.
func New(videos *videostore.Store, objects objectstore.Store, client *provider.Client, bus *progress.Bus, maxBytes int64, log *slog.Logger) *Engine {
	return &Engine{
		videos:   videos,
		objects:  objects,
		provider: client,
		bus:      bus,
		copier:   &http.Client{Timeout: StreamCopyTimeout},
		maxBytes: maxBytes,
		log:      log,
	}
}

// MigrateBatch migrates the lessons in waves, pausing between waves so the
// provider ingest queue is never flooded.
func (e *Engine) MigrateBatch(ctx context.Context, lessonIDs []string, opts BatchOptions) (*BatchResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}

	start := time.Now()
	result := &BatchResult{Total: len(lessonIDs)}

	for wave := 0; wave < len(lessonIDs); wave += opts.BatchSize {
		end := wave + opts.BatchSize
		if end > len(lessonIDs) {
			end = len(lessonIDs)
		}

		for _, lessonID := range lessonIDs[wave:end] {
			detail := e.MigrateSingleVideo(ctx, lessonID, opts)
			result.Details = append(result.Details, detail)
			switch detail.Status {
			case StatusMigrated:
				result.Successful++
			case StatusAlreadyMigrated, StatusSkipped:
				result.Skipped++
			default:
				result.Failed++
			}
		}

		if end < len(lessonIDs) {
			if err := sleepCtx(ctx, InterWaveDelay); err != nil {
				result.DurationMS = time.Since(start).Milliseconds()
				return result, err
			}
		}
	}

	result.DurationMS = time.Since(start).Milliseconds()
	e.log.InfoContext(ctx, "Migration batch complete",
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"durationMs", result.DurationMS,
	)
	return result, nil
}

// MigrateSingleVideo migrates one lesson, retrying transient failures with
// exponential backoff.
func (e *Engine) MigrateSingleVideo(ctx context.Context, lessonID string, opts BatchOptions) LessonResult {
	start := time.Now()
	result := LessonResult{LessonID: lessonID}

	lesson, err := e.videos.GetLesson(ctx, lessonID)
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		metrics.MigrationsProcessed.WithLabelValues(StatusFailed).Inc()
		return result
	}

	if lesson.Managed.AssetID != "" {
		result.Status = StatusAlreadyMigrated
		metrics.MigrationsProcessed.WithLabelValues(StatusAlreadyMigrated).Inc()
		return result
	}
	if !lesson.HasSelfVideo() {
		result.Status = StatusSkipped
		result.Error = "lesson has no self-hosted video"
		metrics.MigrationsProcessed.WithLabelValues(StatusSkipped).Inc()
		return result
	}

	totalAttempts := opts.RetryAttempts + 1
	var lastErr error
	for attempt := 1; attempt <= totalAttempts; attempt++ {
		lastErr = e.attemptMigration(ctx, lesson, opts, attempt)
		if lastErr == nil {
			result.Status = StatusMigrated
			result.UploadID = lesson.Managed.UploadID
			metrics.MigrationsProcessed.WithLabelValues(StatusMigrated).Inc()
			metrics.MigrationDuration.Observe(time.Since(start).Seconds())
			return result
		}

		e.log.WarnContext(ctx, "Migration attempt failed",
			"lessonId", lessonID,
			"attempt", attempt,
			"error", lastErr,
		)
		if err := e.videos.RecordMigrationError(ctx, lessonID, lastErr.Error(), attempt); err != nil {
			e.log.WarnContext(ctx, "Failed to record migration error", "lessonId", lessonID, "error", err)
		}

		if attempt < totalAttempts {
			backoff := time.Duration(1<<attempt) * time.Second
			if err := e.sleepFor(ctx, backoff); err != nil {
				break
			}
		}
	}

	result.Status = StatusFailed
	result.Error = lastErr.Error()
	metrics.MigrationsProcessed.WithLabelValues(StatusFailed).Inc()
	return result
}

func (e *Engine) attemptMigration(ctx context.Context, lesson *models.Lesson, opts BatchOptions, attempt int) error {
	sourceURL, contentLength, err := e.resolveSource(ctx, lesson)
	if err != nil {
		return err
	}
	if contentLength > e.maxBytes {
		return fmt.Errorf("%w: source is %d bytes, migration limit is %d", models.ErrInvalidInput, contentLength, e.maxBytes)
	}

	upload, err := e.provider.CreateDirectUpload(ctx, &provider.DirectUploadRequest{
		Passthrough: map[string]string{
			"lessonId":        lesson.ID,
			"migrationSource": "self",
			"migratedAt":      time.Now().UTC().Format(time.RFC3339),
			"title":           lesson.Title,
		},
	})
	if err != nil {
		return err
	}

	e.bus.Publish(lesson.ID, models.ProgressEvent{
		Type:        models.EventProgress,
		Progress:    30,
		CurrentStep: "copying",
	})

	if err := e.streamCopy(ctx, sourceURL, upload.URL); err != nil {
		return err
	}

	managed := lesson.Managed
	managed.UploadID = upload.ID
	managed.Status = models.ManagedPreparing
	managed.CreatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := e.videos.UpdateLessonVideoFields(ctx, lesson.ID, successUpdate(&managed, attempt, opts)); err != nil {
		return err
	}
	lesson.Managed = managed

	e.bus.Publish(lesson.ID, models.ProgressEvent{
		Type:        models.EventProgress,
		Progress:    80,
		CurrentStep: "provider_processing",
	})
	return nil
}

// successUpdate is the lesson update persisted once an attempt succeeds.
// The attempt count records how many tries the migration took, including
// failed ones recorded along the way; last_error clears on success.
func successUpdate(managed *models.ManagedVideo, attempt int, opts BatchOptions) *videostore.LessonVideoUpdate {
	managedProvider := models.ProviderManaged
	update := &videostore.LessonVideoUpdate{
		VideoProvider: &managedProvider,
		Managed:       managed,
		Migration: &models.MigrationState{
			AttemptCount:   attempt,
			KeptSelfBackup: opts.KeepSelfBackup,
		},
	}
	if !opts.KeepSelfBackup {
		empty := ""
		update.VideoURL = &empty
		update.HLSURL = &empty
		update.ObjectKey = &empty
	}
	return update
}

// resolveSource picks the bytes to copy: a signed URL of the stored
// original when one exists, otherwise the lesson's raw video URL.
func (e *Engine) resolveSource(ctx context.Context, lesson *models.Lesson) (string, int64, error) {
	if lesson.ObjectKey != "" {
		size, err := e.objects.Head(ctx, lesson.ObjectKey)
		if err != nil {
			return "", 0, err
		}
		url, err := e.objects.SignedStreamURL(ctx, lesson.ObjectKey, sourceURLTTL)
		if err != nil {
			return "", 0, err
		}
		return url, size, nil
	}
	if lesson.VideoURL != "" {
		return lesson.VideoURL, 0, nil
	}
	return "", 0, fmt.Errorf("%w: lesson has no migratable source", models.ErrInvalidInput)
}

// streamCopy chains a GET of the source into a PUT to the upload URL
// without buffering the video in memory.
func (e *Engine) streamCopy(ctx context.Context, sourceURL, uploadURL string) error {
	ctx, cancel := context.WithTimeout(ctx, StreamCopyTimeout)
	defer cancel()

	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build source request: %w", err)
	}
	getResp, err := e.copier.Do(getReq)
	if err != nil {
		return fmt.Errorf("%w: source fetch failed: %v", models.ErrStorageUnavailable, err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: source fetch returned %d", models.ErrStorageUnavailable, getResp.StatusCode)
	}
	if getResp.ContentLength > e.maxBytes {
		return fmt.Errorf("%w: source is %d bytes, migration limit is %d", models.ErrInvalidInput, getResp.ContentLength, e.maxBytes)
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, getResp.Body)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	putReq.ContentLength = getResp.ContentLength
	contentType := getResp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	putReq.Header.Set("Content-Type", contentType)

	putResp, err := e.copier.Do(putReq)
	if err != nil {
		return fmt.Errorf("%w: upload stream failed: %v", models.ErrProviderUnavailable, err)
	}
	defer putResp.Body.Close()
	_, _ = io.Copy(io.Discard, putResp.Body)

	if putResp.StatusCode < 200 || putResp.StatusCode >= 300 {
		return fmt.Errorf("%w: upload returned %d", models.ErrProviderRejected, putResp.StatusCode)
	}
	return nil
}

// VerifyMigration fetches the provider asset and persists its current
// state. Verified means the asset finished processing.
func (e *Engine) VerifyMigration(ctx context.Context, lessonID string) (*VerifyResult, error) {
	lesson, err := e.videos.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.Managed.AssetID == "" {
		return nil, fmt.Errorf("%w: lesson %s has no managed asset", models.ErrConflictState, lessonID)
	}

	asset, err := e.provider.GetAsset(ctx, lesson.Managed.AssetID)
	if err != nil {
		return nil, err
	}

	managed := lesson.Managed
	if pid := asset.FirstPlaybackID(); pid != "" {
		managed.PlaybackID = pid
	}
	switch asset.Status {
	case "ready":
		managed.Status = models.ManagedReady
	case "errored":
		managed.Status = models.ManagedErrored
	case "preparing":
		managed.Status = models.ManagedPreparing
	default:
		managed.Status = models.ManagedProcessing
	}

	update := &videostore.LessonVideoUpdate{Managed: &managed}
	if asset.DurationSeconds > 0 {
		duration := asset.DurationSeconds
		update.DurationSeconds = &duration
	}
	if err := e.videos.UpdateLessonVideoFields(ctx, lessonID, update); err != nil {
		return nil, err
	}

	return &VerifyResult{
		LessonID:   lessonID,
		Verified:   asset.Ready(),
		Status:     asset.Status,
		PlaybackID: managed.PlaybackID,
	}, nil
}

// RollbackMigration reverts a lesson to its self-hosted video. Refused
// when the migration discarded the self-hosted copy.
func (e *Engine) RollbackMigration(ctx context.Context, lessonID string) error {
	lesson, err := e.videos.GetLesson(ctx, lessonID)
	if err != nil {
		return err
	}
	if !lesson.HasSelfVideo() {
		return fmt.Errorf("%w: no self-hosted backup to roll back to", models.ErrConflictState)
	}

	if lesson.Managed.AssetID != "" {
		if err := e.provider.DeleteAsset(ctx, lesson.Managed.AssetID); err != nil && !errors.Is(err, models.ErrNotFound) {
			e.log.WarnContext(ctx, "Failed to delete managed asset during rollback",
				"lessonId", lessonID,
				"assetId", lesson.Managed.AssetID,
				"error", err,
			)
		}
	}

	selfProvider := models.ProviderSelf
	if err := e.videos.UpdateLessonVideoFields(ctx, lessonID, &videostore.LessonVideoUpdate{
		VideoProvider: &selfProvider,
		Managed:       &models.ManagedVideo{},
		Migration:     &models.MigrationState{},
	}); err != nil {
		return err
	}

	e.log.InfoContext(ctx, "Migration rolled back", "lessonId", lessonID)
	return nil
}

func (e *Engine) sleepFor(ctx context.Context, d time.Duration) error {
	if e.sleep != nil {
		return e.sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
