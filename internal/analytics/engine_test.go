package analytics

import (
	"testing"
	"time"

	"github.com/brightclass/video-service/pkg/models"
)

func session(userID string, watchTime, completion float64, startedAt string) models.ViewSession {
	s := models.ViewSession{
		ID:                   "s-" + userID + startedAt,
		LessonID:             "lesson-1",
		UserID:               userID,
		WatchTimeSeconds:     watchTime,
		CompletionPercentage: completion,
		SessionStartedAt:     startedAt,
	}
	s.Normalize()
	return s
}

func TestComputeLessonAnalytics_Empty(t *testing.T) {
	got := ComputeLessonAnalytics("lesson-1", "30d", nil)

	if got.TotalViews != 0 {
		t.Errorf("TotalViews = %d, want 0", got.TotalViews)
	}
	if got.TopCountries == nil || got.DailyTrend == nil {
		t.Error("empty aggregate should have non-nil slices")
	}
	if got.LastSynced == "" {
		t.Error("LastSynced should be set")
	}
}

func TestComputeLessonAnalytics_Aggregation(t *testing.T) {
	sessions := []models.ViewSession{
		session("u1", 100, 95, "2026-08-01T10:00:00Z"),
		session("u1", 50, 40, "2026-08-01T12:00:00Z"),
		session("u2", 150, 92, "2026-08-02T09:00:00Z"),
	}
	sessions[0].DeviceType = "desktop"
	sessions[1].DeviceType = "desktop"
	sessions[2].DeviceType = "mobile"
	sessions[0].Country = "US"
	sessions[2].Country = "DE"

	got := ComputeLessonAnalytics("lesson-1", "30d", sessions)

	if got.TotalViews != 3 {
		t.Errorf("TotalViews = %d, want 3", got.TotalViews)
	}
	if got.UniqueViewers != 2 {
		t.Errorf("UniqueViewers = %d, want 2", got.UniqueViewers)
	}
	if got.TotalWatchTime != 300 {
		t.Errorf("TotalWatchTime = %v, want 300", got.TotalWatchTime)
	}
	if got.AverageWatchTime != 100 {
		t.Errorf("AverageWatchTime = %v, want 100", got.AverageWatchTime)
	}
	if got.CompletedViews != 2 {
		t.Errorf("CompletedViews = %d, want 2", got.CompletedViews)
	}
	if got.CompletionRate != 66.67 {
		t.Errorf("CompletionRate = %v, want 66.67", got.CompletionRate)
	}
	if got.DeviceBreakdown["desktop"] != 2 || got.DeviceBreakdown["mobile"] != 1 {
		t.Errorf("DeviceBreakdown = %v", got.DeviceBreakdown)
	}
	if len(got.TopCountries) != 2 {
		t.Fatalf("TopCountries len = %d, want 2", len(got.TopCountries))
	}
	if len(got.DailyTrend) != 2 {
		t.Fatalf("DailyTrend len = %d, want 2", len(got.DailyTrend))
	}
	if got.DailyTrend[0].Date != "2026-08-01" || got.DailyTrend[0].Views != 2 {
		t.Errorf("DailyTrend[0] = %+v", got.DailyTrend[0])
	}
	if got.DailyTrend[1].Date != "2026-08-02" || got.DailyTrend[1].Views != 1 {
		t.Errorf("DailyTrend[1] = %+v", got.DailyTrend[1])
	}
}

func TestComputeLessonAnalytics_AnonymousViewersCountedOnce(t *testing.T) {
	anon1 := models.ViewSession{ID: "a1", LessonID: "lesson-1", SessionStartedAt: "2026-08-01T10:00:00Z"}
	anon2 := models.ViewSession{ID: "a2", LessonID: "lesson-1", SessionStartedAt: "2026-08-01T11:00:00Z"}

	got := ComputeLessonAnalytics("lesson-1", "7d", []models.ViewSession{anon1, anon2})

	// Each anonymous session counts as its own viewer.
	if got.UniqueViewers != 2 {
		t.Errorf("UniqueViewers = %d, want 2", got.UniqueViewers)
	}
}

func TestComputeLessonAnalytics_CountryRanking(t *testing.T) {
	var sessions []models.ViewSession
	counts := map[string]int{"US": 3, "DE": 3, "FR": 1}
	for country, n := range counts {
		for i := 0; i < n; i++ {
			s := session("u", 10, 10, "2026-08-01T10:00:00Z")
			s.Country = country
			sessions = append(sessions, s)
		}
	}

	got := ComputeLessonAnalytics("lesson-1", "30d", sessions)

	// Equal view counts fall back to alphabetical order.
	if got.TopCountries[0].Country != "DE" || got.TopCountries[1].Country != "US" {
		t.Errorf("TopCountries = %v", got.TopCountries)
	}
	if got.TopCountries[2].Country != "FR" {
		t.Errorf("TopCountries[2] = %v, want FR", got.TopCountries[2])
	}
}

func TestBuildHeatmap(t *testing.T) {
	var sessions []models.ViewSession
	for _, progress := range []float64{5, 15, 15, 95, 100} {
		sessions = append(sessions, models.ViewSession{PlaybackProgress: progress})
	}

	hm := BuildHeatmap(sessions, 100, 10)

	if len(hm.Segments) != 10 {
		t.Fatalf("Segments len = %d, want 10", len(hm.Segments))
	}
	if hm.Total != 5 {
		t.Errorf("Total = %d, want 5", hm.Total)
	}
	if hm.Segments[0].WatchCount != 1 {
		t.Errorf("segment 0 = %d, want 1", hm.Segments[0].WatchCount)
	}
	if hm.Segments[1].WatchCount != 2 {
		t.Errorf("segment 1 = %d, want 2", hm.Segments[1].WatchCount)
	}
	// 100% lands in the last bucket, not one past the end.
	if hm.Segments[9].WatchCount != 2 {
		t.Errorf("segment 9 = %d, want 2", hm.Segments[9].WatchCount)
	}
	if hm.Segments[0].StartTime != 0 || hm.Segments[0].EndTime != 10 {
		t.Errorf("segment 0 bounds = [%v, %v], want [0, 10]", hm.Segments[0].StartTime, hm.Segments[0].EndTime)
	}
}

func TestBuildHeatmap_ClampsOutOfRangeProgress(t *testing.T) {
	sessions := []models.ViewSession{
		{PlaybackProgress: -10},
		{PlaybackProgress: 250},
	}

	hm := BuildHeatmap(sessions, 60, 6)

	if hm.Segments[0].WatchCount != 1 {
		t.Errorf("segment 0 = %d, want 1", hm.Segments[0].WatchCount)
	}
	if hm.Segments[5].WatchCount != 1 {
		t.Errorf("segment 5 = %d, want 1", hm.Segments[5].WatchCount)
	}
}

func TestBuildHeatmap_DefaultSegments(t *testing.T) {
	hm := BuildHeatmap(nil, 100, 0)
	if len(hm.Segments) != 100 {
		t.Errorf("Segments len = %d, want 100", len(hm.Segments))
	}
}

func TestTimeframeSince(t *testing.T) {
	tests := []struct {
		timeframe string
		wantZero  bool
		wantDays  int
	}{
		{"24h", false, 1},
		{"7d", false, 7},
		{"30d", false, 30},
		{"90d", false, 90},
		{"all", true, 0},
		{"bogus", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.timeframe, func(t *testing.T) {
			got := timeframeSince(tt.timeframe)
			if tt.wantZero {
				if !got.IsZero() {
					t.Errorf("timeframeSince(%q) = %v, want zero", tt.timeframe, got)
				}
				return
			}
			age := time.Since(got)
			want := time.Duration(tt.wantDays) * 24 * time.Hour
			if age < want-time.Minute || age > want+time.Minute {
				t.Errorf("timeframeSince(%q) is %v old, want about %v", tt.timeframe, age, want)
			}
		})
	}
}

func TestViewSessionNormalize(t *testing.T) {
	tests := []struct {
		completion float64
		want       bool
	}{
		{89.9, false},
		{90, true},
		{100, true},
		{0, false},
	}

	for _, tt := range tests {
		s := models.ViewSession{CompletionPercentage: tt.completion}
		s.Normalize()
		if s.SessionCompleted != tt.want {
			t.Errorf("Normalize() with %.1f%% completed = %v, want %v", tt.completion, s.SessionCompleted, tt.want)
		}
	}
}
