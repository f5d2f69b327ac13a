package transcoder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSelectPresets(t *testing.T) {
	tests := []struct {
		name         string
		sourceHeight int
		wantNames    []string
	}{
		{"1080p source keeps full ladder", 1080, []string{"1080p", "720p", "480p"}},
		{"4k source keeps full ladder", 2160, []string{"1080p", "720p", "480p"}},
		{"720p source drops 1080p", 720, []string{"720p", "480p"}},
		{"480p source keeps only 480p", 480, []string{"480p"}},
		{"tiny source keeps lowest rung", 240, []string{"480p"}},
		{"unknown height keeps full ladder", 0, []string{"1080p", "720p", "480p"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectPresets(DefaultPresets, tt.sourceHeight)
			if len(got) != len(tt.wantNames) {
				t.Fatalf("SelectPresets() returned %d presets, want %d", len(got), len(tt.wantNames))
			}
			for i, p := range got {
				if p.Name != tt.wantNames[i] {
					t.Errorf("preset[%d] = %s, want %s", i, p.Name, tt.wantNames[i])
				}
			}
		})
	}
}

func TestBuildFilterComplex(t *testing.T) {
	got := BuildFilterComplex(DefaultPresets[:2])
	want := "[0:v]split=2[v1][v2];[v1]scale=1920:1080[v1out];[v2]scale=1280:720[v2out]"
	if got != want {
		t.Errorf("BuildFilterComplex() = %q, want %q", got, want)
	}

	if got := BuildFilterComplex(nil); got != "" {
		t.Errorf("BuildFilterComplex(nil) = %q, want empty", got)
	}
}

func TestGetPresetByName(t *testing.T) {
	if p := GetPresetByName(DefaultPresets, "720p"); p == nil || p.Height != 720 {
		t.Errorf("GetPresetByName(720p) = %+v", p)
	}
	if p := GetPresetByName(DefaultPresets, "240p"); p != nil {
		t.Errorf("GetPresetByName(240p) = %+v, want nil", p)
	}
}

func TestGenerateMasterPlaylist(t *testing.T) {
	dir := t.TempDir()

	if err := GenerateMasterPlaylist(dir, DefaultPresets[:2]); err != nil {
		t.Fatalf("GenerateMasterPlaylist() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "master.m3u8"))
	if err != nil {
		t.Fatalf("reading playlist: %v", err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "#EXTM3U\n#EXT-X-VERSION:3\n") {
		t.Errorf("playlist missing header:\n%s", content)
	}
	if !strings.Contains(content, "#EXT-X-STREAM-INF:BANDWIDTH=4192000,RESOLUTION=1920x1080\n1080p.m3u8\n") {
		t.Errorf("playlist missing 1080p entry:\n%s", content)
	}
	if !strings.Contains(content, "#EXT-X-STREAM-INF:BANDWIDTH=2128000,RESOLUTION=1280x720\n720p.m3u8\n") {
		t.Errorf("playlist missing 720p entry:\n%s", content)
	}
}
