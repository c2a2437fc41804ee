package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// ConcatOptions controls how clips are joined into one video.
type ConcatOptions struct {
	Codec      string
	AudioCodec string
	CRF        int
}

// Runner defines the stitching behaviour backed by ffmpeg.
type Runner interface {
	Concat(ctx context.Context, clipPaths []string, outputPath string, opts ConcatOptions) error
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Option configures the CLI runner.
type Option func(*CLI)

// WithBinary overrides the default ffmpeg binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithProbeBinary overrides the default ffprobe binary name.
func WithProbeBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.probeBinary = binary
		}
	}
}

// CLI wraps the ffmpeg and ffprobe command-line tools.
type CLI struct {
	binary      string
	probeBinary string
}

// NewCLI constructs a CLI runner using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg", probeBinary: "ffprobe"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Concat joins the clips in order into outputPath using the concat demuxer.
// Clips are re-encoded so mismatched source encodes still produce a
// playable result.
func (c *CLI) Concat(ctx context.Context, clipPaths []string, outputPath string, opts ConcatOptions) error {
	if len(clipPaths) == 0 {
		return errors.New("no clips to concatenate")
	}
	if outputPath == "" {
		return errors.New("output path required")
	}

	listPath, err := writeConcatList(clipPaths, outputPath)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	codec := opts.Codec
	if codec == "" {
		codec = "libx264"
	}
	audioCodec := opts.AudioCodec
	if audioCodec == "" {
		audioCodec = "aac"
	}
	crf := opts.CRF
	if crf <= 0 {
		crf = 23
	}

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", codec,
		"-crf", strconv.Itoa(crf),
		"-c:a", audioCodec,
		"-movflags", "+faststart",
		outputPath,
	}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w: %s", err, tail(string(output)))
	}
	return nil
}

// Duration reports the container duration of a media file via ffprobe.
func (c *CLI) Duration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := commandContext(ctx, c.probeBinary, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// writeConcatList emits the file list the concat demuxer consumes. Single
// quotes in paths are escaped per ffmpeg's quoting rules.
func writeConcatList(clipPaths []string, outputPath string) (string, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	list, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	defer list.Close()

	for _, clip := range clipPaths {
		escaped := strings.ReplaceAll(clip, "'", `'\''`)
		if _, err := fmt.Fprintf(list, "file '%s'\n", escaped); err != nil {
			os.Remove(list.Name())
			return "", fmt.Errorf("write concat list: %w", err)
		}
	}
	return list.Name(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	const max = 512
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}

var _ Runner = (*CLI)(nil)
