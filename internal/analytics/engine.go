package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/brightclass/video-service/internal/metrics"
	"github.com/brightclass/video-service/internal/videostore"
	"github.com/brightclass/video-service/pkg/models"
)

// DefaultTimeframe is applied when a query names no window.
const DefaultTimeframe = "30d"

// Options select the aggregation window and cache behavior.
type Options struct {
	Timeframe    string `json:"timeframe,omitempty"`
	ForceRefresh bool   `json:"-"`
}

// Engine computes analytics aggregates over recorded view sessions.
type Engine struct {
	sessions      *SessionStore
	videos        *videostore.Store
	cache         *Cache
	retentionDays int
	log           *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(sessions *SessionStore, videos *videostore.Store, cache *Cache, retentionDays int, log *slog.Logger) *Engine {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL, DefaultCacheEntries)
	}
	return &Engine{
		sessions:      sessions,
		videos:        videos,
		cache:         cache,
		retentionDays: retentionDays,
		log:           log,
	}
}

// RecordView upserts a view session and invalidates the lesson's cached
// aggregates.
func (e *Engine) RecordView(ctx context.Context, session *models.ViewSession) error {
	if _, err := e.sessions.Record(ctx, session); err != nil {
		return err
	}
	e.cache.InvalidatePrefix(session.LessonID + ":")
	return nil
}

// LessonAnalytics computes the lesson aggregate for the options' window,
// serving from cache unless ForceRefresh is set.
func (e *Engine) LessonAnalytics(ctx context.Context, lessonID string, opts Options) (*models.LessonAnalytics, error) {
	if opts.Timeframe == "" {
		opts.Timeframe = DefaultTimeframe
	}

	key := cacheKey(lessonID, opts)
	if !opts.ForceRefresh {
		if cached, ok := e.cache.Get(key); ok {
			metrics.AnalyticsCacheLookups.WithLabelValues("hit").Inc()
			return cached.(*models.LessonAnalytics), nil
		}
	}
	metrics.AnalyticsCacheLookups.WithLabelValues("miss").Inc()

	sessions, err := e.sessions.ListByLesson(ctx, lessonID, timeframeSince(opts.Timeframe))
	if err != nil {
		return nil, err
	}

	result := ComputeLessonAnalytics(lessonID, opts.Timeframe, sessions)
	e.cache.Set(key, result)
	return result, nil
}

// RefreshLesson recomputes and re-caches the default aggregate; the
// periodic analytics sync uses it to keep dashboards warm.
func (e *Engine) RefreshLesson(ctx context.Context, lessonID string) error {
	_, err := e.LessonAnalytics(ctx, lessonID, Options{Timeframe: DefaultTimeframe, ForceRefresh: true})
	return err
}

// ClearCache drops a lesson's cached aggregates, or everything when
// lessonID is empty.
func (e *Engine) ClearCache(lessonID string) {
	if lessonID == "" {
		e.cache.Clear()
		return
	}
	e.cache.InvalidatePrefix(lessonID + ":")
}

// Cleanup deletes sessions older than the retention window and returns the
// number removed.
func (e *Engine) Cleanup(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -e.retentionDays)
	deleted, err := e.sessions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return deleted, err
	}
	if deleted > 0 {
		e.cache.Clear()
	}
	return deleted, nil
}

// LessonHeatmap buckets playback positions across the lesson timeline.
func (e *Engine) LessonHeatmap(ctx context.Context, lessonID string, segments int) (*models.Heatmap, error) {
	lesson, err := e.videos.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.DurationSeconds <= 0 {
		return &models.Heatmap{Segments: []models.HeatmapSegment{}, Total: 0}, nil
	}

	sessions, err := e.sessions.ListByLesson(ctx, lessonID, time.Time{})
	if err != nil {
		return nil, err
	}

	return BuildHeatmap(sessions, lesson.DurationSeconds, segments), nil
}

// CourseAnalytics sums per-lesson aggregates; uniqueViewers is distinct
// across the lesson set, not the sum.
func (e *Engine) CourseAnalytics(ctx context.Context, courseID string, opts Options) (*models.CourseAnalytics, error) {
	if opts.Timeframe == "" {
		opts.Timeframe = DefaultTimeframe
	}

	lessons, err := e.videos.ListLessonsByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	result := &models.CourseAnalytics{CourseID: courseID}
	viewers := make(map[string]bool)
	completedViews := 0

	since := timeframeSince(opts.Timeframe)
	for _, lesson := range lessons {
		sessions, err := e.sessions.ListByLesson(ctx, lesson.ID, since)
		if err != nil {
			return nil, err
		}

		summary := ComputeLessonAnalytics(lesson.ID, opts.Timeframe, sessions)
		result.Lessons = append(result.Lessons, *summary)
		result.TotalViews += summary.TotalViews
		result.TotalWatchTime += summary.TotalWatchTime
		completedViews += summary.CompletedViews

		for _, s := range sessions {
			viewers[viewerKey(&s)] = true
		}
	}

	result.UniqueViewers = len(viewers)
	if result.TotalViews > 0 {
		result.CompletionRate = round2(float64(completedViews) / float64(result.TotalViews) * 100)
	}
	return result, nil
}

// TeacherDashboard aggregates across all of a teacher's courses and ranks
// the top lessons by views. When no view sessions exist at all, the result
// is approximated from the lesson progress table.
func (e *Engine) TeacherDashboard(ctx context.Context, teacherID string, limit int) (*models.TeacherDashboard, error) {
	if limit <= 0 {
		limit = 10
	}

	courses, err := e.videos.ListCoursesByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	dashboard := &models.TeacherDashboard{TeacherID: teacherID}
	viewers := make(map[string]bool)
	var stats []models.TeacherLessonStat
	var allLessons []models.Lesson

	for _, course := range courses {
		lessons, err := e.videos.ListLessonsByCourse(ctx, course.ID)
		if err != nil {
			return nil, err
		}
		allLessons = append(allLessons, lessons...)

		for _, lesson := range lessons {
			sessions, err := e.sessions.ListByLesson(ctx, lesson.ID, time.Time{})
			if err != nil {
				return nil, err
			}
			if len(sessions) == 0 {
				continue
			}

			stat := models.TeacherLessonStat{
				LessonID: lesson.ID,
				CourseID: lesson.CourseID,
				Title:    lesson.Title,
			}
			lessonViewers := make(map[string]bool)
			for _, s := range sessions {
				stat.TotalViews++
				stat.TotalWatchTime += s.WatchTimeSeconds
				key := viewerKey(&s)
				lessonViewers[key] = true
				viewers[key] = true
			}
			stat.UniqueViewers = len(lessonViewers)
			stats = append(stats, stat)

			dashboard.TotalViews += stat.TotalViews
			dashboard.TotalWatchTime += stat.TotalWatchTime
		}
	}

	if len(stats) == 0 {
		return e.approximateDashboard(ctx, dashboard, allLessons, limit)
	}

	dashboard.UniqueViewers = len(viewers)
	sort.Slice(stats, func(i, j int) bool { return stats[i].TotalViews > stats[j].TotalViews })
	if len(stats) > limit {
		stats = stats[:limit]
	}
	dashboard.TopLessons = stats
	return dashboard, nil
}

// approximateDashboard counts distinct users with non-zero lesson progress
// when no view sessions have been recorded yet.
func (e *Engine) approximateDashboard(ctx context.Context, dashboard *models.TeacherDashboard, lessons []models.Lesson, limit int) (*models.TeacherDashboard, error) {
	dashboard.Approximated = true

	var stats []models.TeacherLessonStat
	for _, lesson := range lessons {
		count, err := e.videos.CountLessonProgress(ctx, lesson.ID)
		if err != nil {
			e.log.WarnContext(ctx, "Failed to count lesson progress",
				"lessonId", lesson.ID,
				"error", err,
			)
			continue
		}
		if count == 0 {
			continue
		}
		stats = append(stats, models.TeacherLessonStat{
			LessonID:      lesson.ID,
			CourseID:      lesson.CourseID,
			Title:         lesson.Title,
			TotalViews:    count,
			UniqueViewers: count,
		})
		dashboard.TotalViews += count
		dashboard.UniqueViewers += count
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].TotalViews > stats[j].TotalViews })
	if len(stats) > limit {
		stats = stats[:limit]
	}
	dashboard.TopLessons = stats
	return dashboard, nil
}

// ComputeLessonAnalytics aggregates raw sessions into the lesson summary.
// Pure; the window has already been applied by the query.
func ComputeLessonAnalytics(lessonID, timeframe string, sessions []models.ViewSession) *models.LessonAnalytics {
	result := &models.LessonAnalytics{
		LessonID:        lessonID,
		Timeframe:       timeframe,
		DeviceBreakdown: make(map[string]int),
		TopCountries:    []models.CountryViews{},
		DailyTrend:      []models.DailyViewCount{},
		LastSynced:      time.Now().UTC().Format(time.RFC3339),
	}
	if len(sessions) == 0 {
		return result
	}

	viewers := make(map[string]bool)
	countries := make(map[string]int)
	daily := make(map[string]*models.DailyViewCount)
	var completionSum float64
	var rebufferDurationSum float64
	rebufferSessions := 0

	for _, s := range sessions {
		result.TotalViews++
		result.TotalWatchTime += s.WatchTimeSeconds
		completionSum += s.CompletionPercentage
		if s.SessionCompleted {
			result.CompletedViews++
		}
		result.TotalRebuffers += s.RebufferCount
		if s.RebufferCount > 0 {
			rebufferDurationSum += float64(s.RebufferDurationMS)
			rebufferSessions++
		}

		viewers[viewerKey(&s)] = true
		if s.DeviceType != "" {
			result.DeviceBreakdown[s.DeviceType]++
		}
		if s.Country != "" {
			countries[s.Country]++
		}

		day := sessionDay(&s)
		bucket, ok := daily[day]
		if !ok {
			bucket = &models.DailyViewCount{Date: day}
			daily[day] = bucket
		}
		bucket.Views++
		bucket.WatchTime += s.WatchTimeSeconds
		if s.SessionCompleted {
			bucket.CompletedViews++
		}
	}

	result.UniqueViewers = len(viewers)
	result.AverageWatchTime = round2(result.TotalWatchTime / float64(result.TotalViews))
	result.AverageCompletionRate = round2(completionSum / float64(result.TotalViews))
	result.CompletionRate = round2(float64(result.CompletedViews) / float64(result.TotalViews) * 100)
	if rebufferSessions > 0 {
		result.AverageRebufferDuration = round2(rebufferDurationSum / float64(rebufferSessions))
	}

	// Top-10 countries, descending by views.
	for country, views := range countries {
		result.TopCountries = append(result.TopCountries, models.CountryViews{Country: country, Views: views})
	}
	sort.Slice(result.TopCountries, func(i, j int) bool {
		if result.TopCountries[i].Views != result.TopCountries[j].Views {
			return result.TopCountries[i].Views > result.TopCountries[j].Views
		}
		return result.TopCountries[i].Country < result.TopCountries[j].Country
	})
	if len(result.TopCountries) > 10 {
		result.TopCountries = result.TopCountries[:10]
	}

	for _, bucket := range daily {
		result.DailyTrend = append(result.DailyTrend, *bucket)
	}
	sort.Slice(result.DailyTrend, func(i, j int) bool {
		return result.DailyTrend[i].Date < result.DailyTrend[j].Date
	})

	return result
}

// BuildHeatmap partitions [0, duration] into equal buckets and counts the
// deepest playback position of each session.
func BuildHeatmap(sessions []models.ViewSession, durationSeconds float64, segments int) *models.Heatmap {
	if segments <= 0 {
		segments = 100
	}

	segmentDuration := durationSeconds / float64(segments)
	heatmap := &models.Heatmap{
		Segments:        make([]models.HeatmapSegment, segments),
		DurationSeconds: durationSeconds,
	}
	for i := range heatmap.Segments {
		heatmap.Segments[i] = models.HeatmapSegment{
			StartTime: round2(float64(i) * segmentDuration),
			EndTime:   round2(float64(i+1) * segmentDuration),
		}
	}

	for _, s := range sessions {
		t := s.PlaybackProgress / 100 * durationSeconds
		if t < 0 {
			t = 0
		}
		if t > durationSeconds {
			t = durationSeconds
		}
		idx := int(t / segmentDuration)
		if idx >= segments {
			idx = segments - 1
		}
		heatmap.Segments[idx].WatchCount++
		heatmap.Total++
	}
	return heatmap
}

// viewerKey dedupes sessions per user; anonymous sessions count once each.
func viewerKey(s *models.ViewSession) string {
	if s.UserID != "" {
		return "user:" + s.UserID
	}
	return "anon:" + s.ID
}

// sessionDay returns the UTC day bucket for a session.
func sessionDay(s *models.ViewSession) string {
	if t, err := time.Parse(time.RFC3339, s.SessionStartedAt); err == nil {
		return t.UTC().Format("2006-01-02")
	}
	if len(s.SessionStartedAt) >= 10 {
		return s.SessionStartedAt[:10]
	}
	return "unknown"
}

// timeframeSince maps a timeframe label to the window start. "all" and
// unknown labels return the zero time, meaning no lower bound.
func timeframeSince(timeframe string) time.Time {
	now := time.Now().UTC()
	switch timeframe {
	case "24h":
		return now.Add(-24 * time.Hour)
	case "7d":
		return now.AddDate(0, 0, -7)
	case "30d":
		return now.AddDate(0, 0, -30)
	case "90d":
		return now.AddDate(0, 0, -90)
	default:
		return time.Time{}
	}
}

func cacheKey(lessonID string, opts Options) string {
	raw, _ := json.Marshal(opts)
	return lessonID + ":" + string(raw)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
