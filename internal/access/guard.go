// Package access decides who may play, download, upload, or delete a
// lesson's video, and records every denial.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brightclass/video-service/internal/metrics"
	"github.com/brightclass/video-service/internal/videostore"
	"github.com/brightclass/video-service/pkg/models"
)

// Guard evaluates access rules against course ownership and enrollment.
type Guard struct {
	videos   *videostore.Store
	detector *Detector
	log      *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(videos *videostore.Store, detector *Detector, log *slog.Logger) *Guard {
	return &Guard{videos: videos, detector: detector, log: log}
}

// AuthorizeManage allows upload and delete for the course owner or an
// admin. Non-owners get ErrLessonNotFound so lesson existence does not
// leak.
func (g *Guard) AuthorizeManage(ctx context.Context, caller models.Caller, lesson *models.Lesson, action models.AccessAction) error {
	if caller.Role == models.RoleAdmin {
		return nil
	}

	owner, err := g.isCourseOwner(ctx, caller.UserID, lesson.CourseID)
	if err != nil {
		return err
	}
	if owner {
		return nil
	}

	g.recordDenial(ctx, caller, lesson.ID, action)
	return models.ErrLessonNotFound
}

// AuthorizeAnalytics allows analytics reads for the course owner or an
// admin, with the same not-found masking as management actions.
func (g *Guard) AuthorizeAnalytics(ctx context.Context, caller models.Caller, lesson *models.Lesson) error {
	return g.AuthorizeManage(ctx, caller, lesson, models.ActionAnalytics)
}

// AuthorizeCourseAnalytics allows course-level analytics for the course
// owner or an admin.
func (g *Guard) AuthorizeCourseAnalytics(ctx context.Context, caller models.Caller, courseID string) error {
	if caller.Role == models.RoleAdmin {
		return nil
	}
	owner, err := g.isCourseOwner(ctx, caller.UserID, courseID)
	if err != nil {
		return err
	}
	if owner {
		return nil
	}
	g.recordDenial(ctx, caller, courseID, models.ActionAnalytics)
	return models.ErrNotFound
}

// AuthorizePlayback allows the course owner, enrolled students, and admins.
func (g *Guard) AuthorizePlayback(ctx context.Context, caller models.Caller, lesson *models.Lesson) error {
	return g.authorizeViewing(ctx, caller, lesson, models.ActionPlayback)
}

// AuthorizeDownload is playback plus the lesson's allow_download flag for
// enrolled students. Owners and admins may always download.
func (g *Guard) AuthorizeDownload(ctx context.Context, caller models.Caller, lesson *models.Lesson) error {
	return g.authorizeViewing(ctx, caller, lesson, models.ActionDownload)
}

func (g *Guard) authorizeViewing(ctx context.Context, caller models.Caller, lesson *models.Lesson, action models.AccessAction) error {
	if caller.Role == models.RoleAdmin {
		return nil
	}

	owner, err := g.isCourseOwner(ctx, caller.UserID, lesson.CourseID)
	if err != nil {
		return err
	}
	if owner {
		return nil
	}

	enrollment, err := g.videos.GetEnrollment(ctx, caller.UserID, lesson.CourseID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if enrollment != nil && enrollment.Active {
		if action != models.ActionDownload || lesson.AllowDownload {
			return nil
		}
	}

	g.recordDenial(ctx, caller, lesson.ID, action)
	return fmt.Errorf("%w: %s on lesson %s", models.ErrPermissionDenied, action, lesson.ID)
}

func (g *Guard) isCourseOwner(ctx context.Context, userID, courseID string) (bool, error) {
	if courseID == "" {
		return false, nil
	}
	course, err := g.videos.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return course.CreatedBy == userID, nil
}

// recordDenial writes the audit row and feeds the pattern detector. Audit
// failures are logged, never surfaced to the caller.
func (g *Guard) recordDenial(ctx context.Context, caller models.Caller, lessonID string, action models.AccessAction) {
	metrics.AccessDenials.WithLabelValues(string(action)).Inc()
	if g.detector != nil {
		g.detector.RecordDenial(caller.UserID)
	}

	entry := &models.AccessLogEntry{
		UserID:        caller.UserID,
		UserRole:      caller.Role,
		Resource:      lessonID,
		Action:        action,
		AccessGranted: false,
		IPAddress:     caller.IPAddress,
		UserAgent:     caller.UserAgent,
	}
	if err := g.videos.RecordAccess(ctx, entry); err != nil {
		g.log.WarnContext(ctx, "Failed to write access log entry",
			"lessonId", lessonID,
			"userId", caller.UserID,
			"error", err,
		)
	}
}
