// Package reconcile keeps lessons on the managed provider converged with
// the provider's actual asset state, via periodic polling and webhooks.
package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/brightclass/video-service/internal/metrics"
	"github.com/brightclass/video-service/internal/progress"
	"github.com/brightclass/video-service/internal/provider"
	"github.com/brightclass/video-service/internal/videostore"
	"github.com/brightclass/video-service/pkg/models"
)

// Reconciler applies managed provider state onto lessons.
type Reconciler struct {
	videos    *videostore.Store
	provider  *provider.Client
	bus       *progress.Bus
	analytics AnalyticsRefresher
	batchSize int32
	log       *slog.Logger
}

// AnalyticsRefresher is the slice of the analytics engine the reconciler
// drives.
type AnalyticsRefresher interface {
	RefreshLesson(ctx context.Context, lessonID string) error
	Cleanup(ctx context.Context) (int, error)
}

// New creates a Reconciler.
func New(videos *videostore.Store, client *provider.Client, bus *progress.Bus, analytics AnalyticsRefresher, batchSize int, log *slog.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Reconciler{
		videos:    videos,
		provider:  client,
		bus:       bus,
		analytics: analytics,
		batchSize: int32(batchSize),
		log:       log,
	}
}

// SyncStatuses runs one status sync sweep. Per-lesson failures are logged
// and never abort the batch.
func (r *Reconciler) SyncStatuses(ctx context.Context) error {
	lessons, err := r.videos.ListLessonsNeedingManagedSync(ctx, r.batchSize)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("status", "error").Inc()
		return err
	}

	for i := range lessons {
		lesson := &lessons[i]
		if err := r.syncLesson(ctx, lesson); err != nil {
			r.log.ErrorContext(ctx, "Failed to sync lesson",
				"lessonId", lesson.ID,
				"error", err,
			)
		}
	}

	metrics.ReconcileRuns.WithLabelValues("status", "success").Inc()
	r.log.InfoContext(ctx, "Status sync sweep complete", "lessons", len(lessons))
	return nil
}

func (r *Reconciler) syncLesson(ctx context.Context, lesson *models.Lesson) error {
	m := lesson.Managed

	// Upload minted but no asset yet: ask the provider whether the client
	// finished uploading.
	if m.UploadID != "" && m.AssetID == "" {
		upload, err := r.provider.GetUpload(ctx, m.UploadID)
		if err != nil {
			return err
		}
		if upload.AssetID == "" {
			return nil
		}
		m.AssetID = upload.AssetID
		return r.applyTransition(ctx, lesson, &m, models.ManagedProcessing, "")
	}

	if m.AssetID == "" {
		return nil
	}

	asset, err := r.provider.GetAsset(ctx, m.AssetID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// The asset is gone upstream; surface that as an error state
			// rather than polling forever.
			return r.applyTransition(ctx, lesson, &m, models.ManagedErrored, "asset no longer exists at provider")
		}
		return err
	}

	return r.applyAssetState(ctx, lesson, &m, asset.Status, asset.FirstPlaybackID(), flattenError(asset.Errors), asset.DurationSeconds)
}

// applyAssetState maps a provider-reported asset status onto the lesson.
func (r *Reconciler) applyAssetState(ctx context.Context, lesson *models.Lesson, m *models.ManagedVideo, status, playbackID, errMsg string, duration float64) error {
	switch status {
	case "ready":
		if playbackID != "" {
			m.PlaybackID = playbackID
		}
		if m.PlaybackID == "" {
			// Ready with no playback handle is not actionable yet.
			return nil
		}
		if err := r.applyReady(ctx, lesson, m, duration); err != nil {
			return err
		}
		r.bus.Publish(lesson.ID, models.ProgressEvent{
			Type:     models.EventComplete,
			Progress: 100,
			VideoURL: m.PlaybackID,
		})
		return nil
	case "errored":
		return r.applyTransition(ctx, lesson, m, models.ManagedErrored, errMsg)
	case "preparing":
		return r.applyTransition(ctx, lesson, m, models.ManagedPreparing, "")
	case "processing":
		return r.applyTransition(ctx, lesson, m, models.ManagedProcessing, "")
	default:
		r.log.WarnContext(ctx, "Unknown provider asset status",
			"lessonId", lesson.ID,
			"status", status,
		)
		return nil
	}
}

// applyReady persists the ready transition, flipping the lesson onto the
// managed provider.
func (r *Reconciler) applyReady(ctx context.Context, lesson *models.Lesson, m *models.ManagedVideo, duration float64) error {
	if models.ManagedReady.Rank() < lesson.Managed.Status.Rank() {
		return nil
	}
	m.Status = models.ManagedReady
	m.Error = ""

	managedProvider := models.ProviderManaged
	update := &videostore.LessonVideoUpdate{
		VideoProvider:   &managedProvider,
		Managed:         m,
		ExpectedVersion: lesson.Version,
	}
	if duration > 0 {
		update.DurationSeconds = &duration
	}

	err := r.videos.UpdateLessonVideoFields(ctx, lesson.ID, update)
	if errors.Is(err, models.ErrConflictState) {
		// Another writer won; the next sweep re-evaluates from fresh state.
		r.log.InfoContext(ctx, "Skipping stale transition", "lessonId", lesson.ID)
		return nil
	}
	if err != nil {
		return err
	}
	metrics.ReconcileTransitions.WithLabelValues(string(models.ManagedReady)).Inc()
	return nil
}

// applyTransition persists a non-ready state change. Transitions only ever
// advance; a report that would regress the state machine is ignored.
func (r *Reconciler) applyTransition(ctx context.Context, lesson *models.Lesson, m *models.ManagedVideo, status models.ManagedStatus, errMsg string) error {
	if status.Rank() < lesson.Managed.Status.Rank() {
		return nil
	}
	if status == lesson.Managed.Status && m.AssetID == lesson.Managed.AssetID && errMsg == "" {
		return nil
	}
	m.Status = status
	if errMsg != "" {
		m.Error = errMsg
	}

	err := r.videos.UpdateLessonVideoFields(ctx, lesson.ID, &videostore.LessonVideoUpdate{
		Managed:         m,
		ExpectedVersion: lesson.Version,
	})
	if errors.Is(err, models.ErrConflictState) {
		r.log.InfoContext(ctx, "Skipping stale transition", "lessonId", lesson.ID)
		return nil
	}
	if err != nil {
		return err
	}
	metrics.ReconcileTransitions.WithLabelValues(string(status)).Inc()

	if status == models.ManagedErrored {
		r.bus.Publish(lesson.ID, models.ProgressEvent{
			Type:  models.EventFailed,
			Error: errMsg,
		})
	}
	return nil
}

// SyncAnalytics refreshes cached aggregates for every ready managed lesson.
func (r *Reconciler) SyncAnalytics(ctx context.Context) error {
	var startKey map[string]types.AttributeValue
	refreshed := 0
	for {
		lessons, next, err := r.videos.ListLessonsByProvider(ctx, models.ProviderManaged, r.batchSize, startKey)
		if err != nil {
			metrics.ReconcileRuns.WithLabelValues("analytics", "error").Inc()
			return err
		}

		for _, lesson := range lessons {
			if lesson.Managed.Status != models.ManagedReady {
				continue
			}
			if err := r.analytics.RefreshLesson(ctx, lesson.ID); err != nil {
				r.log.WarnContext(ctx, "Failed to refresh lesson analytics",
					"lessonId", lesson.ID,
					"error", err,
				)
				continue
			}
			refreshed++
		}

		if next == nil {
			break
		}
		startKey = next
	}

	metrics.ReconcileRuns.WithLabelValues("analytics", "success").Inc()
	r.log.InfoContext(ctx, "Analytics sync complete", "refreshed", refreshed)
	return nil
}

// CleanupAnalytics removes view sessions past the retention window.
func (r *Reconciler) CleanupAnalytics(ctx context.Context) error {
	deleted, err := r.analytics.Cleanup(ctx)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("cleanup", "error").Inc()
		return err
	}
	metrics.ReconcileRuns.WithLabelValues("cleanup", "success").Inc()
	r.log.InfoContext(ctx, "Analytics cleanup complete", "deleted", deleted)
	return nil
}

func flattenError(e *provider.AssetError) string {
	if e == nil {
		return ""
	}
	msg := e.Type
	for _, m := range e.Messages {
		if msg != "" {
			msg += ": "
		}
		msg += m
	}
	return msg
}
