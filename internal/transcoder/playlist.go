package transcoder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateMasterPlaylist writes the master HLS playlist referencing each
// rendition playlist with its bandwidth and resolution.
func GenerateMasterPlaylist(hlsDir string, presets []Preset) error {
	var builder strings.Builder
	builder.WriteString("#EXTM3U\n")
	builder.WriteString("#EXT-X-VERSION:3\n")

	for _, preset := range presets {
		builder.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n",
			preset.Bandwidth, preset.Width, preset.Height))
		builder.WriteString(fmt.Sprintf("%s.m3u8\n", preset.Name))
	}

	return os.WriteFile(filepath.Join(hlsDir, "master.m3u8"), []byte(builder.String()), 0644)
}
