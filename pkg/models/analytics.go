package models

// CompletionThreshold is the completion percentage at or above which a view
// session counts as completed.
const CompletionThreshold = 90.0

// ViewSession is one playback session reported by a client or the managed
// provider's data feed.
type ViewSession struct {
	PK     string `dynamodbav:"pk"`
	SK     string `dynamodbav:"sk"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty"`

	ID                   string  `dynamodbav:"session_id" json:"sessionId"`
	LessonID             string  `dynamodbav:"lesson_id" json:"lessonId"`
	UserID               string  `dynamodbav:"user_id,omitempty" json:"userId,omitempty"`
	ExternalViewID       string  `dynamodbav:"external_view_id,omitempty" json:"externalViewId,omitempty"`
	WatchTimeSeconds     float64 `dynamodbav:"watch_time_seconds" json:"watchTimeSeconds"`
	VideoDurationSeconds float64 `dynamodbav:"video_duration_seconds,omitempty" json:"videoDurationSeconds,omitempty"`
	CompletionPercentage float64 `dynamodbav:"completion_percentage" json:"completionPercentage"`
	SessionCompleted     bool    `dynamodbav:"session_completed" json:"sessionCompleted"`
	PlaybackProgress     float64 `dynamodbav:"playback_progress,omitempty" json:"playbackProgress,omitempty"`
	DeviceType           string  `dynamodbav:"device_type,omitempty" json:"deviceType,omitempty"`
	Browser              string  `dynamodbav:"browser,omitempty" json:"browser,omitempty"`
	OS                   string  `dynamodbav:"os,omitempty" json:"os,omitempty"`
	Country              string  `dynamodbav:"country,omitempty" json:"country,omitempty"`
	RebufferCount        int     `dynamodbav:"rebuffer_count,omitempty" json:"rebufferCount,omitempty"`
	RebufferDurationMS   int64   `dynamodbav:"rebuffer_duration_ms,omitempty" json:"rebufferDurationMs,omitempty"`
	SessionStartedAt     string  `dynamodbav:"session_started_at" json:"sessionStartedAt"`
	SessionEndedAt       string  `dynamodbav:"session_ended_at,omitempty" json:"sessionEndedAt,omitempty"`
}

// Normalize derives the completed flag from the completion percentage.
func (s *ViewSession) Normalize() {
	s.SessionCompleted = s.CompletionPercentage >= CompletionThreshold
}

// LessonAnalytics is the aggregate for one lesson over a timeframe.
type LessonAnalytics struct {
	LessonID                string           `json:"lessonId"`
	Timeframe               string           `json:"timeframe"`
	TotalViews              int              `json:"totalViews"`
	UniqueViewers           int              `json:"uniqueViewers"`
	TotalWatchTime          float64          `json:"totalWatchTime"`
	AverageWatchTime        float64          `json:"averageWatchTime"`
	AverageCompletionRate   float64          `json:"averageCompletionRate"`
	CompletionRate          float64          `json:"completionRate"`
	CompletedViews          int              `json:"completedViews"`
	TotalRebuffers          int              `json:"totalRebuffers"`
	AverageRebufferDuration float64          `json:"averageRebufferDuration"`
	DeviceBreakdown         map[string]int   `json:"deviceBreakdown"`
	TopCountries            []CountryViews   `json:"topCountries"`
	DailyTrend              []DailyViewCount `json:"dailyTrend"`
	LastSynced              string           `json:"lastSynced"`
}

// CountryViews is one row of the per-country breakdown.
type CountryViews struct {
	Country string `json:"country"`
	Views   int    `json:"views"`
}

// DailyViewCount is one UTC-day bucket of the view trend.
type DailyViewCount struct {
	Date           string  `json:"date"`
	Views          int     `json:"views"`
	WatchTime      float64 `json:"watchTime"`
	CompletedViews int     `json:"completedViews"`
}

// HeatmapSegment is one timeline bucket of the engagement heatmap.
type HeatmapSegment struct {
	StartTime  float64 `json:"startTime"`
	EndTime    float64 `json:"endTime"`
	WatchCount int     `json:"watchCount"`
}

// Heatmap is the per-segment engagement distribution for a lesson.
type Heatmap struct {
	Segments        []HeatmapSegment `json:"segments"`
	Total           int              `json:"total"`
	DurationSeconds float64          `json:"duration,omitempty"`
}

// CourseAnalytics sums lesson aggregates across a course.
type CourseAnalytics struct {
	CourseID       string            `json:"courseId"`
	TotalViews     int               `json:"totalViews"`
	UniqueViewers  int               `json:"uniqueViewers"`
	TotalWatchTime float64           `json:"totalWatchTime"`
	CompletionRate float64           `json:"completionRate"`
	Lessons        []LessonAnalytics `json:"lessons"`
}

// TeacherLessonStat is one row of the teacher dashboard ranking.
type TeacherLessonStat struct {
	LessonID       string  `json:"lessonId"`
	CourseID       string  `json:"courseId"`
	Title          string  `json:"title,omitempty"`
	TotalViews     int     `json:"totalViews"`
	UniqueViewers  int     `json:"uniqueViewers"`
	TotalWatchTime float64 `json:"totalWatchTime"`
}

// TeacherDashboard aggregates analytics across a teacher's courses.
type TeacherDashboard struct {
	TeacherID      string              `json:"teacherId"`
	TotalViews     int                 `json:"totalViews"`
	UniqueViewers  int                 `json:"uniqueViewers"`
	TotalWatchTime float64             `json:"totalWatchTime"`
	TopLessons     []TeacherLessonStat `json:"topLessons"`
	Approximated   bool                `json:"approximated,omitempty"`
}
