package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/brightclass/video-service/internal/access"
	"github.com/brightclass/video-service/internal/analytics"
	"github.com/brightclass/video-service/internal/auth"
	"github.com/brightclass/video-service/internal/config"
	"github.com/brightclass/video-service/internal/ingest"
	"github.com/brightclass/video-service/internal/migrate"
	"github.com/brightclass/video-service/internal/progress"
	"github.com/brightclass/video-service/internal/reconcile"
	"github.com/brightclass/video-service/internal/resolver"
	"github.com/brightclass/video-service/internal/videostore"
	"github.com/brightclass/video-service/pkg/models"
)

// Request limits
const (
	maxWebhookBody  = 1 << 20 // 1 MB
	maxJSONBody     = 1 << 20
	multipartMemory = 32 << 20 // form parts above this spill to disk
	downloadURLTTL  = 15 * time.Minute
)

// signatureHeader carries the webhook HMAC from the managed provider.
const signatureHeader = "Provider-Signature"

// HandlersConfig holds handler dependencies.
type HandlersConfig struct {
	Config     *config.Config
	Logger     *slog.Logger
	Ingest     *ingest.Pipeline
	Resolver   *resolver.Resolver
	Videos     *videostore.Store
	Analytics  *analytics.Engine
	Migrations *migrate.Engine
	Reconciler *reconcile.Reconciler
	Guard      *access.Guard
	Detector   *access.Detector
	Bus        *progress.Bus
	Downloads  resolver.StreamSigner
}

// Handlers implements the HTTP endpoints.
type Handlers struct {
	cfg        *config.Config
	log        *slog.Logger
	ingest     *ingest.Pipeline
	resolver   *resolver.Resolver
	videos     *videostore.Store
	analytics  *analytics.Engine
	migrations *migrate.Engine
	reconciler *reconcile.Reconciler
	guard      *access.Guard
	detector   *access.Detector
	bus        *progress.Bus
	downloads  resolver.StreamSigner
}

// NewHandlers creates the handler set.
func NewHandlers(cfg *HandlersConfig) *Handlers {
	return &Handlers{
		cfg:        cfg.Config,
		log:        cfg.Logger,
		ingest:     cfg.Ingest,
		resolver:   cfg.Resolver,
		videos:     cfg.Videos,
		analytics:  cfg.Analytics,
		migrations: cfg.Migrations,
		reconciler: cfg.Reconciler,
		guard:      cfg.Guard,
		detector:   cfg.Detector,
		bus:        cfg.Bus,
		downloads:  cfg.Downloads,
	}
}

// UploadVideoHandler ingests a self-hosted video upload.
func (h *Handlers) UploadVideoHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	lessonID := r.PathValue("lessonID")

	// Cap the request body; the form envelope adds a little overhead on
	// top of the video itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Limits.MaxUploadBytes+multipartMemory)

	file, header, err := r.FormFile("video")
	if err != nil {
		h.writeError(w, r, models.ErrInvalidInput)
		return
	}
	defer file.Close()

	result, err := h.ingest.UploadVideo(r.Context(), caller, lessonID, header.Filename, header.Size, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// ManagedUploadHandler mints a direct upload slot at the managed provider.
func (h *Handlers) ManagedUploadHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	lessonID := r.PathValue("lessonID")

	var body struct {
		CORSOrigin string `json:"corsOrigin"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.ingest.UploadViaManaged(r.Context(), caller, lessonID, body.CORSOrigin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// DeleteVideoHandler removes a lesson's video everywhere.
func (h *Handlers) DeleteVideoHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.ingest.DeleteVideo(r.Context(), caller, r.PathValue("lessonID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// PlaybackHandler resolves the playback descriptor for a lesson.
func (h *Handlers) PlaybackHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	lesson, err := h.videos.GetLesson(r.Context(), r.PathValue("lessonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.guard.AuthorizePlayback(r.Context(), caller, lesson); err != nil {
		h.writeError(w, r, err)
		return
	}

	desc, err := h.resolver.Resolve(r.Context(), lesson)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, desc)
}

// DownloadHandler mints a short-lived download URL for the stored original.
func (h *Handlers) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	lesson, err := h.videos.GetLesson(r.Context(), r.PathValue("lessonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.guard.AuthorizeDownload(r.Context(), caller, lesson); err != nil {
		h.writeError(w, r, err)
		return
	}
	if lesson.ObjectKey == "" {
		h.writeError(w, r, models.ErrConflictState)
		return
	}

	url, err := h.downloads.SignedStreamURL(r.Context(), lesson.ObjectKey, downloadURLTTL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"url":       url,
		"expiresAt": time.Now().Add(downloadURLTTL).UTC().Format(time.RFC3339),
	})
}

// RecordViewHandler records a playback view session.
func (h *Handlers) RecordViewHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var session models.ViewSession
	if err := decodeJSON(r, &session); err != nil {
		h.writeError(w, r, err)
		return
	}
	if session.LessonID == "" {
		h.writeError(w, r, models.ErrInvalidInput)
		return
	}

	// The session belongs to whoever sent it; the body's userId is not
	// trusted.
	session.UserID = caller.UserID
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.SessionStartedAt == "" {
		session.SessionStartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	session.Normalize()

	if err := h.analytics.RecordView(r.Context(), &session); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"sessionId": session.ID})
}

// LessonAnalyticsHandler returns the lesson aggregate for a timeframe.
func (h *Handlers) LessonAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	lesson, err := h.videos.GetLesson(r.Context(), r.PathValue("lessonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.guard.AuthorizeAnalytics(r.Context(), caller, lesson); err != nil {
		h.writeError(w, r, err)
		return
	}

	opts := analytics.Options{
		Timeframe:    r.URL.Query().Get("timeframe"),
		ForceRefresh: r.URL.Query().Get("refresh") == "true",
	}
	result, err := h.analytics.LessonAnalytics(r.Context(), lesson.ID, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// LessonHeatmapHandler returns the engagement heatmap for a lesson.
func (h *Handlers) LessonHeatmapHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	lesson, err := h.videos.GetLesson(r.Context(), r.PathValue("lessonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.guard.AuthorizeAnalytics(r.Context(), caller, lesson); err != nil {
		h.writeError(w, r, err)
		return
	}

	segments, _ := strconv.Atoi(r.URL.Query().Get("segments"))
	heatmap, err := h.analytics.LessonHeatmap(r.Context(), lesson.ID, segments)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, heatmap)
}

// CourseAnalyticsHandler returns the course-level aggregate.
func (h *Handlers) CourseAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	courseID := r.PathValue("courseID")

	if err := h.guard.AuthorizeCourseAnalytics(r.Context(), caller, courseID); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.analytics.CourseAnalytics(r.Context(), courseID, analytics.Options{
		Timeframe: r.URL.Query().Get("timeframe"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// TeacherDashboardHandler returns the caller's teaching dashboard. Admins
// may inspect another teacher via the teacherId query parameter.
func (h *Handlers) TeacherDashboardHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	teacherID := caller.UserID
	if requested := r.URL.Query().Get("teacherId"); requested != "" && requested != caller.UserID {
		if caller.Role != models.RoleAdmin {
			h.writeError(w, r, models.ErrPermissionDenied)
			return
		}
		teacherID = requested
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	dashboard, err := h.analytics.TeacherDashboard(r.Context(), teacherID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dashboard)
}

// ProviderWebhookHandler applies a managed provider webhook delivery.
// Authentication is the signature header, not a bearer token.
func (h *Handlers) ProviderWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := readAll(w, r, maxWebhookBody)
	if err != nil {
		h.writeError(w, r, models.ErrInvalidInput)
		return
	}

	if err := h.reconciler.HandleWebhook(r.Context(), body, r.Header.Get(signatureHeader)); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// MigrateBatchHandler runs a bulk self-to-managed migration. Admin only.
func (h *Handlers) MigrateBatchHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok || caller.Role != models.RoleAdmin {
		h.writeError(w, r, models.ErrPermissionDenied)
		return
	}

	var body struct {
		LessonIDs []string `json:"lessonIds"`
		migrate.BatchOptions
	}
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(body.LessonIDs) == 0 {
		h.writeError(w, r, models.ErrInvalidInput)
		return
	}

	result, err := h.migrations.MigrateBatch(r.Context(), body.LessonIDs, body.BatchOptions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// VerifyMigrationHandler checks a migrated lesson against the provider.
func (h *Handlers) VerifyMigrationHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok || caller.Role != models.RoleAdmin {
		h.writeError(w, r, models.ErrPermissionDenied)
		return
	}

	result, err := h.migrations.VerifyMigration(r.Context(), r.PathValue("lessonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// RollbackMigrationHandler reverts a lesson to its self-hosted video.
func (h *Handlers) RollbackMigrationHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok || caller.Role != models.RoleAdmin {
		h.writeError(w, r, models.ErrPermissionDenied)
		return
	}

	lessonID := r.PathValue("lessonID")
	if err := h.migrations.RollbackMigration(r.Context(), lessonID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"lessonId": lessonID, "status": "rolled_back"})
}

// SuspiciousUsersHandler lists users over the denial threshold. Admin only.
func (h *Handlers) SuspiciousUsersHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok || caller.Role != models.RoleAdmin {
		h.writeError(w, r, models.ErrPermissionDenied)
		return
	}

	users := h.detector.SuspiciousUsers()
	if users == nil {
		users = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// writeJSON writes a JSON response with the given status code.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", "error", err)
	}
}

// writeError maps sentinel errors onto HTTP statuses.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInvalidContainer),
		errors.Is(err, models.ErrFilenameTooLong):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrLessonNotFound),
		errors.Is(err, models.ErrAssetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrConflictState):
		status = http.StatusConflict
	case errors.Is(err, models.ErrProviderUnavailable),
		errors.Is(err, models.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, models.ErrProviderRejected),
		errors.Is(err, models.ErrStorageRejected):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.log.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		http.Error(w, "Internal server error", status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// decodeJSON reads a bounded JSON body. An empty body decodes to the zero
// value so optional bodies do not need special-casing.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return models.ErrInvalidInput
	}
	return nil
}

// readAll reads a bounded request body.
func readAll(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
}
