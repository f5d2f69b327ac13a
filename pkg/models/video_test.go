package models

import (
	"errors"
	"testing"
)

func TestManagedStatusRank(t *testing.T) {
	if ManagedPreparing.Rank() >= ManagedProcessing.Rank() {
		t.Error("preparing should rank below processing")
	}
	if ManagedProcessing.Rank() >= ManagedReady.Rank() {
		t.Error("processing should rank below ready")
	}
	// Terminal states rank equal so repeated webhook deliveries are no-ops.
	if ManagedReady.Rank() != ManagedErrored.Rank() {
		t.Error("ready and errored should rank equal")
	}
	if ManagedStatus("bogus").Rank() != 0 {
		t.Error("unknown status should rank 0")
	}
}

func TestAssetStatusIsValid(t *testing.T) {
	for _, s := range []AssetStatus{AssetProcessing, AssetRetrying, AssetReady, AssetFailed} {
		if !s.IsValid() {
			t.Errorf("IsValid() = false for %q", s)
		}
	}
	if AssetStatus("done").IsValid() {
		t.Error("IsValid() = true for unknown status")
	}
	if AssetStatus("").IsValid() {
		t.Error("IsValid() = true for empty status")
	}
}

func TestLessonHasSelfVideo(t *testing.T) {
	tests := []struct {
		name   string
		lesson Lesson
		want   bool
	}{
		{"video url", Lesson{VideoURL: "https://cdn/v.mp4"}, true},
		{"object key", Lesson{ObjectKey: "originals/a.mp4"}, true},
		{"hls url", Lesson{HLSURL: "https://cdn/hls/a/master.m3u8"}, true},
		{"managed only", Lesson{Managed: ManagedVideo{PlaybackID: "pb-1"}}, false},
		{"empty", Lesson{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.lesson.HasSelfVideo(); got != tt.want {
				t.Errorf("HasSelfVideo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTranscodeJobValidate(t *testing.T) {
	base := TranscodeJob{
		LessonID:  "lesson-1",
		AssetID:   "asset-1",
		ObjectKey: "originals/a.mp4",
		Bucket:    "videos",
	}
	if err := base.Validate(); err != nil {
		t.Errorf("Validate() error = %v for a complete job", err)
	}

	tests := []struct {
		name   string
		mutate func(*TranscodeJob)
	}{
		{"missing lesson id", func(j *TranscodeJob) { j.LessonID = "" }},
		{"missing asset id", func(j *TranscodeJob) { j.AssetID = "" }},
		{"missing object key", func(j *TranscodeJob) { j.ObjectKey = "" }},
		{"missing bucket", func(j *TranscodeJob) { j.Bucket = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := base
			tt.mutate(&job)
			if err := job.Validate(); !errors.Is(err, ErrJobParseFailed) {
				t.Errorf("Validate() error = %v, want ErrJobParseFailed", err)
			}
		})
	}
}
