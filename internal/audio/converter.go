package audio

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

var supportedExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
	".webm": true,
	".ogg":  true,
	".flac": true,
	".aac":  true,
	".wma":  true,
}

// FFMPEGConverter converts uploads to 16kHz mono WAV and probes durations.
type FFMPEGConverter struct {
	ffmpegCommand  string
	ffprobeCommand string
}

func NewFFMPEGConverter(ffmpegCommand, ffprobeCommand string) *FFMPEGConverter {
	if ffmpegCommand == "" {
		ffmpegCommand = "ffmpeg"
	}
	if ffprobeCommand == "" {
		ffprobeCommand = "ffprobe"
	}
	return &FFMPEGConverter{ffmpegCommand: ffmpegCommand, ffprobeCommand: ffprobeCommand}
}

func (c *FFMPEGConverter) IsSupportedFormat(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

func (c *FFMPEGConverter) ConvertToWAV(ctx context.Context, sourcePath, destPath string) error {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-i", sourcePath,
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		"-y", destPath,
	}
	cmd := exec.CommandContext(ctx, c.ffmpegCommand, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg convert: %w: %s", err, trimSpaceSafe(stderr.String()))
	}
	return nil
}

func (c *FFMPEGConverter) DurationMS(ctx context.Context, path string) (int64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	out, err := exec.CommandContext(ctx, c.ffprobeCommand, args...).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return int64(math.Round(seconds * 1000)), nil
}
