package transcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeResult carries the source attributes the pipeline cares about.
type ProbeResult struct {
	DurationSeconds float64
	Width           int
	Height          int
	VideoCodec      string
	AudioCodec      string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe inspects the input file with ffprobe. Callers treat a missing probe
// binary as non-fatal for browser-generated containers.
func (t *Transcoder) Probe(ctx context.Context, inputPath string) (*ProbeResult, error) {
	if _, err := exec.LookPath(t.config.ProbePath); err != nil {
		return nil, fmt.Errorf("%w: %s", errProbeMissing, t.config.ProbePath)
	}

	cmd := exec.CommandContext(ctx, t.config.ProbePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{}
	if parsed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			result.DurationSeconds = d
		}
	}
	for _, stream := range parsed.Streams {
		switch stream.CodecType {
		case "video":
			if result.VideoCodec == "" {
				result.VideoCodec = stream.CodecName
				result.Width = stream.Width
				result.Height = stream.Height
			}
		case "audio":
			if result.AudioCodec == "" {
				result.AudioCodec = stream.CodecName
			}
		}
	}

	if result.VideoCodec == "" {
		return nil, fmt.Errorf("no video stream found in %s", inputPath)
	}
	return result, nil
}
