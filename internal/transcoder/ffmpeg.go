// Package transcoder drives the external encoder to produce a
// multi-rendition HLS ladder from an uploaded original.
package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/brightclass/video-service/internal/metrics"
	"github.com/brightclass/video-service/pkg/models"
)

// HLSSegmentDuration is the duration of each HLS segment in seconds.
const HLSSegmentDuration = 4

var (
	tracer          = otel.Tracer("video-transcoder")
	errProbeMissing = errors.New("probe binary not available")
)

// ProgressFunc receives encoder progress in [0,100]. Best effort; only
// called when the source duration is known.
type ProgressFunc func(percent float64)

// Config holds encoder configuration.
type Config struct {
	BinaryPath string
	ProbePath  string
	Presets    []Preset
	Logger     *slog.Logger
}

// Transcoder handles video transcoding operations.
type Transcoder struct {
	config *Config
}

// New creates a Transcoder with the given configuration.
func New(config *Config) *Transcoder {
	if len(config.Presets) == 0 {
		config.Presets = DefaultPresets
	}
	if config.BinaryPath == "" {
		config.BinaryPath = "ffmpeg"
	}
	if config.ProbePath == "" {
		config.ProbePath = "ffprobe"
	}
	return &Transcoder{config: config}
}

// Available reports whether the encoder binary can be found on the host.
// When it cannot, ingest proceeds in degraded mode and playback falls back
// to the signed original.
func (t *Transcoder) Available() bool {
	_, err := exec.LookPath(t.config.BinaryPath)
	return err == nil
}

// IsProbeMissing reports whether the error came from a missing probe binary.
func IsProbeMissing(err error) bool {
	return errors.Is(err, errProbeMissing)
}

// TranscodeToHLS transcodes the input video into an HLS ladder under hlsDir:
// one <res>.m3u8 playlist plus <res>_NNN.ts segments per rendition, and a
// synthesized master.m3u8. Returns the renditions actually produced.
func (t *Transcoder) TranscodeToHLS(ctx context.Context, inputPath, hlsDir string, sourceHeight int, durationSeconds float64, progress ProgressFunc) ([]Preset, error) {
	ctx, span := tracer.Start(ctx, "transcode-hls")
	defer span.End()

	if !t.Available() {
		return nil, fmt.Errorf("%w: %s", models.ErrTranscoderMissing, t.config.BinaryPath)
	}

	presets := SelectPresets(t.config.Presets, sourceHeight)
	start := time.Now()

	if err := t.runFFmpeg(ctx, inputPath, hlsDir, presets, durationSeconds, progress); err != nil {
		return nil, err
	}

	if err := GenerateMasterPlaylist(hlsDir, presets); err != nil {
		return nil, fmt.Errorf("failed to generate master playlist: %w", err)
	}

	metrics.TranscodeDuration.Observe(time.Since(start).Seconds())
	return presets, nil
}

// runFFmpeg executes the encoder for HLS transcoding.
func (t *Transcoder) runFFmpeg(ctx context.Context, inputPath, hlsDir string, presets []Preset, durationSeconds float64, progress ProgressFunc) error {
	ctx, span := tracer.Start(ctx, "ffmpeg-execute")
	defer span.End()

	args := t.buildFFmpegArgs(inputPath, hlsDir, presets)
	cmd := exec.CommandContext(ctx, t.config.BinaryPath, args...)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrTranscoderFailed, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		t.monitorOutput(ctx, stderrPipe, durationSeconds, progress)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(io.Discard, stdoutPipe)
	}()

	cmdErr := cmd.Wait()
	wg.Wait()

	if cmdErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: context canceled", models.ErrTranscoderFailed)
		}
		return fmt.Errorf("%w: %v", models.ErrTranscoderFailed, cmdErr)
	}
	return nil
}

// buildFFmpegArgs constructs the encoder command arguments. GOP is fixed at
// 96 frames so segment boundaries land on keyframes at 4-second segments.
func (t *Transcoder) buildFFmpegArgs(inputPath, hlsDir string, presets []Preset) []string {
	args := []string{
		"-i", inputPath,
		"-preset", "veryfast",
		"-c:v", "libx264",
		"-profile:v", "main",
		"-level", "4.1",
		"-g", "96",
		"-keyint_min", "96",
		"-sc_threshold", "0",
		"-flags", "+cgop",
		"-filter_complex", BuildFilterComplex(presets),
	}

	for i, preset := range presets {
		streamArgs := []string{
			"-map", fmt.Sprintf("[v%dout]", i+1),
			"-map", "0:a?",
			fmt.Sprintf("-c:v:%d", i), "libx264",
			fmt.Sprintf("-b:v:%d", i), preset.Bitrate,
			fmt.Sprintf("-maxrate:v:%d", i), preset.MaxRate,
			fmt.Sprintf("-bufsize:v:%d", i), preset.BufSize,
			fmt.Sprintf("-c:a:%d", i), "aac",
			fmt.Sprintf("-b:a:%d", i), preset.AudioBPS,
			"-hls_time", fmt.Sprintf("%d", HLSSegmentDuration),
			"-hls_playlist_type", "vod",
			"-hls_list_size", "0",
			"-hls_segment_filename", filepath.Join(hlsDir, preset.Name+"_%03d.ts"),
			filepath.Join(hlsDir, preset.Name+".m3u8"),
		}
		args = append(args, streamArgs...)
	}

	return args
}

// monitorOutput reads encoder output, logging anomalies and reporting
// progress parsed from "time=" fields.
func (t *Transcoder) monitorOutput(ctx context.Context, r io.Reader, durationSeconds float64, progress ProgressFunc) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		switch {
		case strings.Contains(line, "time="):
			if progress != nil && durationSeconds > 0 {
				if elapsed, ok := parseEncodedTime(line); ok {
					pct := elapsed / durationSeconds * 100
					if pct > 100 {
						pct = 100
					}
					progress(pct)
				}
			}
			t.config.Logger.Debug("encoder progress", "output", line)
		case strings.Contains(line, "error"), strings.Contains(line, "Error"):
			t.config.Logger.Warn("encoder warning", "output", line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.config.Logger.Warn("encoder output scanner error", "error", err)
	}
}

// parseEncodedTime extracts the encoded position in seconds from a progress
// line containing "time=HH:MM:SS.cc".
func parseEncodedTime(line string) (float64, bool) {
	idx := strings.Index(line, "time=")
	if idx == -1 {
		return 0, false
	}
	field := line[idx+len("time="):]
	if end := strings.IndexByte(field, ' '); end != -1 {
		field = field[:end]
	}

	var h, m int
	var s float64
	if _, err := fmt.Sscanf(field, "%d:%d:%f", &h, &m, &s); err != nil {
		return 0, false
	}
	return float64(h)*3600 + float64(m)*60 + s, true
}

// GetPresets returns the configured ladder.
func (t *Transcoder) GetPresets() []Preset {
	return t.config.Presets
}
