package queue

import (
	"errors"
	"testing"

	"github.com/brightclass/video-service/pkg/models"
)

func TestParseJob(t *testing.T) {
	valid := `{"lessonId":"lesson-1","assetId":"asset-1","objectKey":"originals/a.mp4","bucket":"videos","filename":"a.mp4","attempt":2}`

	t.Run("valid job", func(t *testing.T) {
		job, err := ParseJob(&valid)
		if err != nil {
			t.Fatalf("ParseJob() error = %v", err)
		}
		if job.LessonID != "lesson-1" || job.AssetID != "asset-1" {
			t.Errorf("job = %+v", job)
		}
		if job.ObjectKey != "originals/a.mp4" || job.Bucket != "videos" {
			t.Errorf("job = %+v", job)
		}
		if job.Attempt != 2 {
			t.Errorf("Attempt = %d, want 2", job.Attempt)
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing lesson id", `{"assetId":"a","objectKey":"k","bucket":"b"}`},
		{"missing asset id", `{"lessonId":"l","objectKey":"k","bucket":"b"}`},
		{"missing object key", `{"lessonId":"l","assetId":"a","bucket":"b"}`},
		{"missing bucket", `{"lessonId":"l","assetId":"a","objectKey":"k"}`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if _, err := ParseJob(&body); !errors.Is(err, models.ErrJobParseFailed) {
				t.Errorf("ParseJob() error = %v, want ErrJobParseFailed", err)
			}
		})
	}

	t.Run("nil body", func(t *testing.T) {
		if _, err := ParseJob(nil); !errors.Is(err, models.ErrJobParseFailed) {
			t.Errorf("ParseJob(nil) error = %v, want ErrJobParseFailed", err)
		}
	})
}
