// Package transcode normalizes downloaded camera clips to H.264 MP4 so the
// face recognition backend accepts them regardless of vendor codec.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

type Converter struct {
	FFmpegPath string
	Timeout    time.Duration
}

func NewConverter(ffmpegPath string) (*Converter, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	resolved, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("locating ffmpeg: %w", err)
	}
	return &Converter{FFmpegPath: resolved, Timeout: 2 * time.Minute}, nil
}

// BuildArgs returns the ffmpeg argument list for converting input to output.
// Resolution is capped at 1280x720 preserving aspect ratio.
func BuildArgs(input, output string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", input,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "25",
		"-vf", "scale='min(1280,iw)':'min(720,ih)':force_original_aspect_ratio=decrease",
		"-movflags", "+faststart",
		"-an",
		"-y", output,
	}
}

func (c *Converter) Convert(ctx context.Context, input, output string) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.FFmpegPath, BuildArgs(input, output)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("transcoding %s: %w", input, ctx.Err())
		}
		return fmt.Errorf("transcoding %s: %w: %s", input, err, stderr.String())
	}
	return nil
}
