package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brightclass/video-service/internal/metrics"
	"github.com/brightclass/video-service/internal/provider"
	"github.com/brightclass/video-service/internal/videostore"
	"github.com/brightclass/video-service/pkg/models"
)

// HandleWebhook verifies and applies one provider webhook delivery. The
// transition rules are the same ones the polling sync uses, so a webhook
// and a sweep can never disagree about the state machine.
func (r *Reconciler) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) error {
	if !r.provider.VerifyWebhookSignature(rawBody, signatureHeader) {
		metrics.WebhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		return fmt.Errorf("%w: webhook signature verification failed", models.ErrPermissionDenied)
	}

	var event provider.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		return fmt.Errorf("%w: malformed webhook payload: %v", models.ErrInvalidInput, err)
	}

	var err error
	switch event.Type {
	case models.WebhookAssetReady, models.WebhookAssetErrored, models.WebhookAssetDeleted:
		err = r.handleAssetEvent(ctx, &event)
	case models.WebhookUploadAssetCreated, models.WebhookUploadCancelled, models.WebhookUploadErrored:
		err = r.handleUploadEvent(ctx, &event)
	default:
		// Unknown event types are acknowledged and dropped.
		metrics.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
		r.log.InfoContext(ctx, "Ignoring unknown webhook event", "type", event.Type)
		return nil
	}

	if err != nil {
		metrics.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		return err
	}
	metrics.WebhookEvents.WithLabelValues(event.Type, "success").Inc()
	return nil
}

func (r *Reconciler) handleAssetEvent(ctx context.Context, event *provider.WebhookEvent) error {
	var asset provider.WebhookAsset
	if err := json.Unmarshal(event.Data, &asset); err != nil {
		return fmt.Errorf("%w: malformed asset payload: %v", models.ErrInvalidInput, err)
	}

	lessonID := provider.DecodePassthrough(asset.Passthrough)["lessonId"]
	if lessonID == "" {
		r.log.WarnContext(ctx, "Asset webhook without lesson passthrough", "assetId", asset.ID)
		return nil
	}

	lesson, err := r.videos.GetLesson(ctx, lessonID)
	if err != nil {
		return err
	}
	m := lesson.Managed
	if m.AssetID == "" {
		m.AssetID = asset.ID
	}

	switch event.Type {
	case models.WebhookAssetReady:
		playbackID := ""
		if len(asset.PlaybackIDs) > 0 {
			playbackID = asset.PlaybackIDs[0].ID
		}
		return r.applyAssetState(ctx, lesson, &m, "ready", playbackID, "", asset.Duration)
	case models.WebhookAssetErrored:
		return r.applyAssetState(ctx, lesson, &m, "errored", "", flattenError(asset.Errors), 0)
	case models.WebhookAssetDeleted:
		return r.clearManaged(ctx, lesson)
	}
	return nil
}

func (r *Reconciler) handleUploadEvent(ctx context.Context, event *provider.WebhookEvent) error {
	var upload provider.WebhookUpload
	if err := json.Unmarshal(event.Data, &upload); err != nil {
		return fmt.Errorf("%w: malformed upload payload: %v", models.ErrInvalidInput, err)
	}

	lessonID := provider.DecodePassthrough(upload.Passthrough)["lessonId"]
	if lessonID == "" {
		r.log.WarnContext(ctx, "Upload webhook without lesson passthrough", "uploadId", upload.ID)
		return nil
	}

	lesson, err := r.videos.GetLesson(ctx, lessonID)
	if err != nil {
		return err
	}
	m := lesson.Managed

	switch event.Type {
	case models.WebhookUploadAssetCreated:
		if upload.AssetID == "" {
			return nil
		}
		m.AssetID = upload.AssetID
		return r.applyTransition(ctx, lesson, &m, models.ManagedProcessing, "")
	case models.WebhookUploadCancelled:
		return r.applyTransition(ctx, lesson, &m, models.ManagedErrored, "direct upload cancelled")
	case models.WebhookUploadErrored:
		return r.applyTransition(ctx, lesson, &m, models.ManagedErrored, "direct upload failed")
	}
	return nil
}

// clearManaged drops all managed fields after the provider deleted the
// asset; the lesson falls back to self-hosted video when it has any.
func (r *Reconciler) clearManaged(ctx context.Context, lesson *models.Lesson) error {
	nextProvider := models.ProviderNone
	if lesson.HasSelfVideo() {
		nextProvider = models.ProviderSelf
	}
	return r.videos.UpdateLessonVideoFields(ctx, lesson.ID, &videostore.LessonVideoUpdate{
		VideoProvider:   &nextProvider,
		Managed:         &models.ManagedVideo{},
		ExpectedVersion: lesson.Version,
	})
}
