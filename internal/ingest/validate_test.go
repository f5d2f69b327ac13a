package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/brightclass/video-service/pkg/models"
)

func mp4Header() []byte {
	return append([]byte{0, 0, 0, 0x20}, []byte("ftypisom")...)
}

func webmHeader() []byte {
	return []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01, 0x02}
}

func TestValidateUpload(t *testing.T) {
	const maxBytes = int64(1) << 30

	tests := []struct {
		name     string
		filename string
		size     int64
		header   []byte
		wantErr  error
	}{
		{"valid mp4", "lecture.mp4", 1024, mp4Header(), nil},
		{"valid mov", "lecture.mov", 1024, mp4Header(), nil},
		{"mp4 with moof box", "frag.mp4", 1024, append([]byte{0, 0, 0, 8}, []byte("moofabcd")...), nil},
		{"mp4 box at offset zero", "remuxed.mp4", 1024, []byte("mdat0000"), nil},
		{"valid webm", "recording.webm", 1024, webmHeader(), nil},
		{"webm ascii doctype", "recording.webm", 1024, []byte("\x00\x00webm\x00"), nil},
		{"mkv matroska token", "movie.mkv", 1024, []byte("xxmatroskaxx"), nil},
		{"avi passes on extension", "old.avi", 1024, []byte("RIFFxxxx"), nil},
		{"wmv passes on extension", "old.wmv", 1024, []byte{0, 1, 2, 3}, nil},
		{"empty file", "lecture.mp4", 0, mp4Header(), models.ErrInvalidInput},
		{"negative size", "lecture.mp4", -5, mp4Header(), models.ErrInvalidInput},
		{"too large", "lecture.mp4", maxBytes + 1, mp4Header(), models.ErrFileTooLarge},
		{"filename too long", strings.Repeat("a", 300) + ".mp4", 1024, mp4Header(), models.ErrFilenameTooLong},
		{"unsupported extension", "notes.pdf", 1024, mp4Header(), models.ErrInvalidContainer},
		{"no extension", "lecture", 1024, mp4Header(), models.ErrInvalidContainer},
		{"mp4 with wrong magic", "fake.mp4", 1024, []byte("not a video file"), models.ErrInvalidContainer},
		{"webm with wrong magic", "fake.webm", 1024, []byte("definitely text!"), models.ErrInvalidContainer},
		{"mp4 header too short", "tiny.mp4", 1024, []byte{0, 0}, models.ErrInvalidContainer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.filename, tt.size, maxBytes, tt.header)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateUpload() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateUpload() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSafeObjectName(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"clean name", "lecture-01.mp4", "lecture-01.mp4"},
		{"spaces replaced", "my lecture.mp4", "my_lecture.mp4"},
		{"path stripped", "../../etc/passwd.mp4", "passwd.mp4"},
		{"unicode replaced", "vidéo finale.mp4", "vid_o_finale.mp4"},
		{"special chars collapsed", "a!!@@##b.mp4", "a_b.mp4"},
		{"leading dots trimmed", "...hidden.mp4", "hidden.mp4"},
		{"all unsafe", "!!!", "video"},
		{"empty", "", "video"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeObjectName(tt.filename); got != tt.want {
				t.Errorf("SafeObjectName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

func TestContentTypeForExt(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"a.mp4", "video/mp4"},
		{"a.MOV", "video/quicktime"},
		{"a.webm", "video/webm"},
		{"a.mkv", "video/x-matroska"},
		{"a.mpg", "video/mpeg"},
		{"a.unknown", "video/mp4"},
	}

	for _, tt := range tests {
		if got := contentTypeForExt(tt.filename); got != tt.want {
			t.Errorf("contentTypeForExt(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
