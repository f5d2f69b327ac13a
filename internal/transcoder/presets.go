package transcoder

import (
	"fmt"
	"strings"
)

// Preset defines video encoding parameters for one rendition of the ladder.
type Preset struct {
	Name      string
	Width     int
	Height    int
	Bitrate   string
	MaxRate   string
	BufSize   string
	AudioBPS  string
	Bandwidth int
}

// DefaultPresets is the adaptive ladder for self-hosted HLS output.
var DefaultPresets = []Preset{
	{"1080p", 1920, 1080, "4000k", "4000k", "8000k", "192k", 4192000},
	{"720p", 1280, 720, "2000k", "2000k", "4000k", "128k", 2128000},
	{"480p", 854, 480, "800k", "800k", "1600k", "96k", 896000},
}

// SelectPresets returns the ladder renditions that do not exceed the source
// height. A zero sourceHeight (probe unavailable) keeps the full ladder.
func SelectPresets(presets []Preset, sourceHeight int) []Preset {
	if sourceHeight <= 0 {
		return presets
	}
	var selected []Preset
	for _, p := range presets {
		if p.Height <= sourceHeight {
			selected = append(selected, p)
		}
	}
	if len(selected) == 0 && len(presets) > 0 {
		// Source smaller than the lowest rung; keep the lowest rung.
		selected = []Preset{presets[len(presets)-1]}
	}
	return selected
}

// BuildFilterComplex generates the FFmpeg filter_complex string for
// multi-resolution output.
func BuildFilterComplex(presets []Preset) string {
	n := len(presets)
	if n == 0 {
		return ""
	}

	var splitOutputs strings.Builder
	for i := 1; i <= n; i++ {
		splitOutputs.WriteString(fmt.Sprintf("[v%d]", i))
	}

	var filter strings.Builder
	filter.WriteString(fmt.Sprintf("[0:v]split=%d%s;", n, splitOutputs.String()))

	for i, preset := range presets {
		filter.WriteString(fmt.Sprintf("[v%d]scale=%d:%d[v%dout]",
			i+1, preset.Width, preset.Height, i+1))
		if i < n-1 {
			filter.WriteString(";")
		}
	}

	return filter.String()
}

// GetPresetByName returns the preset matching the given name, or nil.
func GetPresetByName(presets []Preset, name string) *Preset {
	for i := range presets {
		if presets[i].Name == name {
			return &presets[i]
		}
	}
	return nil
}
