// Package ingest owns the self-hosted upload path: validate, store the
// original, link the asset row, and hand the transcode off to the worker
// queue. It also mints managed-provider direct uploads and tears videos
// down on delete.
package ingest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brightclass/video-service/internal/access"
	"github.com/brightclass/video-service/internal/config"
	"github.com/brightclass/video-service/internal/metrics"
	"github.com/brightclass/video-service/internal/objectstore"
	"github.com/brightclass/video-service/internal/progress"
	"github.com/brightclass/video-service/internal/provider"
	"github.com/brightclass/video-service/internal/queue"
	"github.com/brightclass/video-service/internal/videostore"
	"github.com/brightclass/video-service/pkg/models"
	"github.com/brightclass/video-service/pkg/retry"
)

// UploadResult is returned to the API after a successful ingest.
type UploadResult struct {
	AssetID     string `json:"assetId"`
	ObjectKey   string `json:"objectKey"`
	StorageURL  string `json:"storageUrl"`
	SizeBytes   int64  `json:"sizeBytes"`
	ContentHash string `json:"contentHash"`
}

// ManagedUploadResult is the direct upload slot handed back to the client.
type ManagedUploadResult struct {
	UploadID  string `json:"uploadId"`
	UploadURL string `json:"uploadUrl"`
}

// Pipeline wires ingest dependencies together.
type Pipeline struct {
	objects  objectstore.Store
	videos   *videostore.Store
	jobs     *queue.Queue
	provider *provider.Client
	guard    *access.Guard
	bus      *progress.Bus
	cfg      *config.Config
	log      *slog.Logger
}

// New creates a Pipeline.
func New(objects objectstore.Store, videos *videostore.Store, jobs *queue.Queue, client *provider.Client, guard *access.Guard, bus *progress.Bus, cfg *config.Config, log *slog.Logger) *Pipeline {
	return &Pipeline{
		objects:  objects,
		videos:   videos,
		jobs:     jobs,
		provider: client,
		guard:    guard,
		bus:      bus,
		cfg:      cfg,
		log:      log,
	}
}

// UploadVideo ingests a self-hosted original. The body is streamed to the
// object store while the content hash accumulates; the asset row and lesson
// update commit together, and the transcode job is enqueued only after that
// commit.
func (p *Pipeline) UploadVideo(ctx context.Context, caller models.Caller, lessonID, filename string, size int64, body io.Reader) (*UploadResult, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(body, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: failed to read upload header: %v", models.ErrInvalidInput, err)
	}
	header = header[:n]

	if err := ValidateUpload(filename, size, p.cfg.Limits.MaxUploadBytes, header); err != nil {
		metrics.UploadsIngested.WithLabelValues("rejected").Inc()
		return nil, err
	}

	lesson, err := p.authorizedLesson(ctx, caller, lessonID, models.ActionUpload)
	if err != nil {
		return nil, err
	}

	p.bus.Publish(lessonID, models.ProgressEvent{
		Type:        models.EventProgress,
		Progress:    5,
		CurrentStep: "uploading",
	})

	key := fmt.Sprintf("%s%s-%d-%s", objectstore.OriginalsPrefix, lessonID, time.Now().Unix(), SafeObjectName(filename))
	hash := md5.New()
	stream := io.TeeReader(io.MultiReader(bytes.NewReader(header), body), hash)

	storageURL, err := p.objects.Put(ctx, key, stream, contentTypeForExt(filename))
	if err != nil {
		metrics.UploadsIngested.WithLabelValues("storage_error").Inc()
		return nil, err
	}

	asset := &models.VideoAsset{
		ID:          uuid.New().String(),
		UploaderID:  caller.UserID,
		ObjectKey:   key,
		StorageURL:  storageURL,
		SizeBytes:   size,
		ContentHash: hex.EncodeToString(hash.Sum(nil)),
		Status:      models.AssetProcessing,
	}

	update := &videostore.LessonVideoUpdate{
		ObjectKey: &key,
		VideoURL:  &storageURL,
	}
	if err := p.videos.LinkAssetToLesson(ctx, lessonID, asset, update); err != nil {
		// Orphaned object; prefix cleanup on delete picks it up eventually.
		metrics.UploadsIngested.WithLabelValues("link_error").Inc()
		return nil, err
	}

	job := &models.TranscodeJob{
		LessonID:  lessonID,
		AssetID:   asset.ID,
		ObjectKey: key,
		Bucket:    p.cfg.AWS.StorageBucket,
		Filename:  filename,
		Attempt:   1,
	}
	if err := p.jobs.EnqueueTranscode(ctx, job); err != nil {
		// The asset stays in processing; reconciliation of stuck assets is a
		// manual operation, so surface the failure loudly.
		p.log.ErrorContext(ctx, "Upload committed but transcode enqueue failed",
			"lessonId", lessonID,
			"assetId", asset.ID,
			"error", err,
		)
		metrics.UploadsIngested.WithLabelValues("enqueue_error").Inc()
		return nil, err
	}

	p.bus.Publish(lessonID, models.ProgressEvent{
		Type:        models.EventProgress,
		Progress:    15,
		CurrentStep: "queued",
	})

	metrics.UploadsIngested.WithLabelValues("success").Inc()
	p.log.InfoContext(ctx, "Video upload ingested",
		"lessonId", lessonID,
		"assetId", asset.ID,
		"objectKey", key,
		"sizeBytes", size,
		"title", lesson.Title,
	)

	return &UploadResult{
		AssetID:     asset.ID,
		ObjectKey:   key,
		StorageURL:  storageURL,
		SizeBytes:   size,
		ContentHash: asset.ContentHash,
	}, nil
}

// UploadViaManaged mints a direct upload slot at the managed provider and
// records the pending upload on the lesson.
func (p *Pipeline) UploadViaManaged(ctx context.Context, caller models.Caller, lessonID, corsOrigin string) (*ManagedUploadResult, error) {
	lesson, err := p.authorizedLesson(ctx, caller, lessonID, models.ActionUpload)
	if err != nil {
		return nil, err
	}

	policy := provider.PolicyPublic
	if p.cfg.SignedPlayback() {
		policy = provider.PolicySigned
	}

	upload, err := p.provider.CreateDirectUpload(ctx, &provider.DirectUploadRequest{
		CORSOrigin:     corsOrigin,
		PlaybackPolicy: policy,
		Passthrough:    map[string]string{"lessonId": lessonID},
	})
	if err != nil {
		return nil, err
	}

	managed := lesson.Managed
	managed.UploadID = upload.ID
	managed.Status = models.ManagedPreparing
	if managed.CreatedAt == "" {
		managed.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	if err := p.videos.UpdateLessonVideoFields(ctx, lessonID, &videostore.LessonVideoUpdate{
		Managed: &managed,
	}); err != nil {
		return nil, err
	}

	p.log.InfoContext(ctx, "Managed direct upload created",
		"lessonId", lessonID,
		"uploadId", upload.ID,
		"policy", string(policy),
	)

	return &ManagedUploadResult{UploadID: upload.ID, UploadURL: upload.URL}, nil
}

// DeleteVideo removes a lesson's video everywhere: the managed asset, the
// stored objects, the asset rows, and finally the lesson's video fields.
// Object deletions are best-effort; the field clear is the commit point.
func (p *Pipeline) DeleteVideo(ctx context.Context, caller models.Caller, lessonID string) error {
	lesson, err := p.authorizedLesson(ctx, caller, lessonID, models.ActionDelete)
	if err != nil {
		return err
	}

	if lesson.Managed.AssetID != "" {
		policy := retry.DefaultPolicy()
		err := policy.Do(ctx, func(ctx context.Context) error {
			return p.provider.DeleteAsset(ctx, lesson.Managed.AssetID)
		})
		if err != nil {
			return fmt.Errorf("failed to delete managed asset %s: %w", lesson.Managed.AssetID, err)
		}
	}

	if lesson.ObjectKey != "" {
		if err := p.objects.Delete(ctx, lesson.ObjectKey); err != nil {
			p.log.WarnContext(ctx, "Failed to delete original object",
				"lessonId", lessonID,
				"objectKey", lesson.ObjectKey,
				"error", err,
			)
		}
		if err := p.objects.DeletePrefix(ctx, objectstore.HLSPrefixFor(lesson.ObjectKey)); err != nil {
			p.log.WarnContext(ctx, "Failed to delete HLS renditions",
				"lessonId", lessonID,
				"error", err,
			)
		}
	}

	if err := p.videos.DeleteAssets(ctx, lessonID); err != nil {
		p.log.WarnContext(ctx, "Failed to delete asset rows", "lessonId", lessonID, "error", err)
	}

	empty := ""
	noneProvider := models.ProviderNone
	if err := p.videos.UpdateLessonVideoFields(ctx, lessonID, &videostore.LessonVideoUpdate{
		VideoProvider: &noneProvider,
		VideoURL:      &empty,
		HLSURL:        &empty,
		ObjectKey:     &empty,
		Managed:       &models.ManagedVideo{},
		Migration:     &models.MigrationState{},
	}); err != nil {
		return err
	}

	p.log.InfoContext(ctx, "Video deleted", "lessonId", lessonID)
	return nil
}

// authorizedLesson loads the lesson and enforces management access. A
// lesson the caller cannot manage reads the same as a missing one.
func (p *Pipeline) authorizedLesson(ctx context.Context, caller models.Caller, lessonID string, action models.AccessAction) (*models.Lesson, error) {
	lesson, err := p.videos.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if err := p.guard.AuthorizeManage(ctx, caller, lesson, action); err != nil {
		return nil, err
	}
	return lesson, nil
}

