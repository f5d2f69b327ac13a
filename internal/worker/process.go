package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/brightclass/video-service/internal/metrics"
	"github.com/brightclass/video-service/internal/objectstore"
	"github.com/brightclass/video-service/internal/transcoder"
	"github.com/brightclass/video-service/internal/videostore"
	"github.com/brightclass/video-service/pkg/models"
)

// processJob runs the full transcode pipeline for one job. A nil return
// acknowledges the message; an error leaves it for redelivery.
func (w *Worker) processJob(ctx context.Context, job *models.TranscodeJob) error {
	log := w.log.With("lessonId", job.LessonID, "assetId", job.AssetID)

	attempt, err := w.videos.BeginAssetAttempt(ctx, job.LessonID, job.AssetID)
	if err != nil {
		if errors.Is(err, models.ErrAssetNotFound) {
			// Asset row was deleted while the job sat in the queue.
			log.WarnContext(ctx, "Dropping job for missing asset")
			return nil
		}
		return err
	}

	if attempt > models.MaxProcessingAttempts {
		log.ErrorContext(ctx, "Retry cap exceeded, failing asset", "attempt", attempt)
		w.failAsset(ctx, job, "transcode retry cap exceeded")
		return nil
	}

	log.InfoContext(ctx, "Processing transcode job", "attempt", attempt)

	// Encoder absent: publish the original as-is and finish in degraded
	// mode rather than retrying a job that can never succeed on this host.
	if !w.transcoder.Available() {
		return w.completeDegraded(ctx, job)
	}

	if err := w.transcode(ctx, job); err != nil {
		if attempt >= models.MaxProcessingAttempts {
			log.ErrorContext(ctx, "Transcode failed terminally", "attempt", attempt, "error", err)
			w.failAsset(ctx, job, err.Error())
			return nil
		}

		log.WarnContext(ctx, "Transcode failed, will retry", "attempt", attempt, "error", err)
		if markErr := w.videos.MarkAssetRetrying(ctx, job.LessonID, job.AssetID, err.Error()); markErr != nil {
			log.ErrorContext(ctx, "Failed to mark asset retrying", "error", markErr)
		}
		w.bus.Publish(job.LessonID, models.ProgressEvent{
			Type:        models.EventProgress,
			Progress:    20,
			CurrentStep: "retrying",
		})
		metrics.RecordTranscodeFailure()
		return err
	}

	metrics.RecordTranscodeSuccess()
	return nil
}

func (w *Worker) transcode(ctx context.Context, job *models.TranscodeJob) error {
	start := time.Now()

	w.bus.Publish(job.LessonID, models.ProgressEvent{
		Type:        models.EventProgress,
		Progress:    20,
		CurrentStep: "downloading",
	})

	downloadStart := time.Now()
	localPath, err := w.objects.DownloadToTemp(ctx, job.ObjectKey)
	if err != nil {
		return err
	}
	metrics.DownloadDuration.Observe(time.Since(downloadStart).Seconds())
	defer os.Remove(localPath)

	if ctx.Err() != nil {
		return fmt.Errorf("%w: before transcoding", models.ErrContextCanceled)
	}

	probe, err := w.probeSource(ctx, localPath)
	if err != nil {
		return err
	}

	hlsDir, err := os.MkdirTemp("", "hls-"+job.AssetID)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrTranscoderFailed, err)
	}
	defer os.RemoveAll(hlsDir)

	w.bus.Publish(job.LessonID, models.ProgressEvent{
		Type:        models.EventProgress,
		Progress:    30,
		CurrentStep: "transcoding",
	})

	// Encoder progress spans 30-85 of the overall pipeline.
	onProgress := func(pct float64) {
		w.bus.Publish(job.LessonID, models.ProgressEvent{
			Type:        models.EventProgress,
			Progress:    30 + pct*0.55,
			CurrentStep: "transcoding",
		})
	}

	if _, err := w.transcoder.TranscodeToHLS(ctx, localPath, hlsDir, probe.Height, probe.DurationSeconds, onProgress); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%w: before upload", models.ErrContextCanceled)
	}

	w.bus.Publish(job.LessonID, models.ProgressEvent{
		Type:        models.EventProgress,
		Progress:    88,
		CurrentStep: "publishing",
	})

	hlsPrefix := objectstore.HLSPrefixFor(job.ObjectKey)
	uploadStart := time.Now()
	if err := w.uploadRenditions(ctx, hlsDir, hlsPrefix); err != nil {
		return err
	}
	metrics.UploadDuration.Observe(time.Since(uploadStart).Seconds())

	masterURL := w.objects.PublicURL(path.Join(hlsPrefix, "master.m3u8"))

	if err := w.videos.CompleteAsset(ctx, job.LessonID, job.AssetID, masterURL); err != nil {
		return err
	}

	duration := probe.DurationSeconds
	update := &videostore.LessonVideoUpdate{
		VideoURL: &masterURL,
		HLSURL:   &masterURL,
	}
	if duration > 0 {
		update.DurationSeconds = &duration
	}
	if err := w.videos.UpdateLessonVideoFields(ctx, job.LessonID, update); err != nil {
		// The asset is ready; a stale lesson pointer heals on the next
		// write, so log rather than retrying the whole transcode.
		w.log.ErrorContext(ctx, "Failed to update lesson video fields",
			"lessonId", job.LessonID,
			"error", err,
		)
	}

	w.bus.Publish(job.LessonID, models.ProgressEvent{
		Type:     models.EventComplete,
		Progress: 100,
		VideoURL: masterURL,
	})

	w.log.InfoContext(ctx, "Transcode completed",
		"lessonId", job.LessonID,
		"assetId", job.AssetID,
		"durationSeconds", time.Since(start).Seconds(),
		"playbackURL", masterURL,
	)
	return nil
}

// probeSource inspects the downloaded original. A missing probe binary is
// tolerated: the container was validated at upload, so the transcode runs
// with unknown height (full ladder) and duration (no percent progress).
// Real probe failures, an unreadable file or no video stream, still fail
// the job.
func (w *Worker) probeSource(ctx context.Context, localPath string) (*transcoder.ProbeResult, error) {
	probe, err := w.transcoder.Probe(ctx, localPath)
	if transcoder.IsProbeMissing(err) {
		w.log.WarnContext(ctx, "Probe binary missing, transcoding without source metadata")
		return &transcoder.ProbeResult{}, nil
	}
	return probe, err
}

// completeDegraded marks the asset ready without an HLS ladder; playback
// serves the signed original instead.
func (w *Worker) completeDegraded(ctx context.Context, job *models.TranscodeJob) error {
	log := w.log.With("lessonId", job.LessonID, "assetId", job.AssetID)
	log.WarnContext(ctx, "Encoder unavailable, completing in degraded mode")

	if err := w.videos.CompleteAssetDegraded(ctx, job.LessonID, job.AssetID); err != nil {
		return err
	}

	// Duration still helps playback and analytics when the probe binary is
	// present even though the encoder is not.
	if localPath, err := w.objects.DownloadToTemp(ctx, job.ObjectKey); err == nil {
		defer os.Remove(localPath)
		if probe, probeErr := w.transcoder.Probe(ctx, localPath); probeErr == nil && probe.DurationSeconds > 0 {
			duration := probe.DurationSeconds
			if updErr := w.videos.UpdateLessonVideoFields(ctx, job.LessonID, &videostore.LessonVideoUpdate{
				DurationSeconds: &duration,
			}); updErr != nil {
				log.WarnContext(ctx, "Failed to store probed duration", "error", updErr)
			}
		}
	}

	w.bus.Publish(job.LessonID, models.ProgressEvent{
		Type:     models.EventComplete,
		Progress: 100,
	})

	metrics.RecordTranscodeSkipped()
	return nil
}

func (w *Worker) failAsset(ctx context.Context, job *models.TranscodeJob, reason string) {
	if err := w.videos.MarkAssetFailed(ctx, job.LessonID, job.AssetID, reason); err != nil {
		w.log.ErrorContext(ctx, "Failed to mark asset failed",
			"lessonId", job.LessonID,
			"assetId", job.AssetID,
			"error", err,
		)
	}
	w.bus.Publish(job.LessonID, models.ProgressEvent{
		Type:  models.EventFailed,
		Error: reason,
	})
	metrics.RecordTranscodeFailure()
}
