package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hireloop/interview-capture/internal/chunk"
	internalmedia "github.com/hireloop/interview-capture/internal/media"
)

const (
	extractTimeout   = 3 * time.Second
	transcodeTimeout = 15 * time.Minute
	probeTimeout     = 10 * time.Second
	convertTimeout   = 3 * time.Minute
)

// FFmpegProcessor shells out to ffmpeg/ffprobe.
type FFmpegProcessor struct {
	ffmpegPath  string
	ffprobePath string
}

func NewFFmpegProcessor() internalmedia.Processor {
	return &FFmpegProcessor{ffmpegPath: "ffmpeg", ffprobePath: "ffprobe"}
}

// CheckInstallation verifies ffmpeg is present on PATH.
func CheckInstallation() error {
	if err := exec.Command("ffmpeg", "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg is not installed or not in PATH: %w", err)
	}
	return nil
}

func (p *FFmpegProcessor) ExtractOpus(ctx context.Context, container []byte) ([]byte, error) {
	if len(container) < 4 {
		return nil, errors.New("container chunk too small")
	}
	if !chunk.IsWebM(container) {
		// Might already be raw audio; pass through unchanged.
		return container, nil
	}

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-i", "pipe:0",
		"-vn",
		"-acodec", "copy",
		"-f", "ogg",
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(container)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("opus extraction failed: %w: %s", err, tail(stderr.String(), 200))
	}
	if out.Len() == 0 {
		return nil, errors.New("opus extraction produced no output")
	}
	return out.Bytes(), nil
}

func (p *FFmpegProcessor) Transcode(ctx context.Context, src, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	// Live-captured WebM fragments are rarely clean: generate timestamps,
	// drop corrupt packets, and force constant 30fps output so variable or
	// duplicated frames from the capture side cannot break playback.
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-analyzeduration", "10000000",
		"-probesize", "10000000",
		"-fflags", "+genpts+igndts+discardcorrupt",
		"-err_detect", "ignore_err",
		"-i", src,
		"-vsync", "cfr",
		"-r", "30",
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		"-avoid_negative_ts", "make_zero",
		"-f", "mp4",
		"-y",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("transcode timed out after %s", elapsed.Round(time.Second))
		}
		return fmt.Errorf("transcode failed: %w: %s", err, tail(stderr.String(), 1000))
	}
	slog.Debug("transcode completed", "src", src, "dst", dst, "elapsed", elapsed.Round(time.Millisecond))
	return nil
}

func (p *FFmpegProcessor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	duration, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable duration %q: %w", line, err)
	}
	return duration, nil
}

func (p *FFmpegProcessor) ConvertToWAV(ctx context.Context, audio []byte) ([]byte, error) {
	if len(audio) == 0 {
		return nil, errors.New("empty audio input")
	}
	ctx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-i", "pipe:0",
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-sample_fmt", "s16",
		"-f", "wav",
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(audio)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("wav conversion failed: %w: %s", err, tail(stderr.String(), 500))
	}
	return out.Bytes(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
