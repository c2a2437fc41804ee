package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/ffmpeg"), WithProbeBinary("/opt/ffprobe"))
	if cli.binary != "/opt/ffmpeg" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
	if cli.probeBinary != "/opt/ffprobe" {
		t.Fatalf("expected probe binary override to be applied, got %q", cli.probeBinary)
	}
}

func TestConcatRequiresClips(t *testing.T) {
	cli := NewCLI()
	if err := cli.Concat(context.Background(), nil, "/tmp/out.mp4", ConcatOptions{}); err == nil {
		t.Fatal("expected error when clip list is empty")
	}
}

func TestConcatRequiresOutputPath(t *testing.T) {
	cli := NewCLI()
	if err := cli.Concat(context.Background(), []string{"/tmp/a.mp4"}, "", ConcatOptions{}); err == nil {
		t.Fatal("expected error when output path is empty")
	}
}

func setHelperCommand(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string(nil), args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestConcatBuildsDemuxerArgs(t *testing.T) {
	var capturedArgs []string
	setHelperCommand(t, "success", &capturedArgs)

	tempDir := t.TempDir()
	clips := []string{
		filepath.Join(tempDir, "scene_01.mp4"),
		filepath.Join(tempDir, "scene_02.mp4"),
	}
	output := filepath.Join(tempDir, "final.mp4")

	cli := NewCLI()
	if err := cli.Concat(context.Background(), clips, output, ConcatOptions{Codec: "libx265", CRF: 20}); err != nil {
		t.Fatalf("Concat returned error: %v", err)
	}

	joined := strings.Join(capturedArgs, " ")
	for _, fragment := range []string{"-f concat", "-safe 0", "-c:v libx265", "-crf 20", "-c:a aac"} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("expected args to contain %q, got %v", fragment, capturedArgs)
		}
	}
	if capturedArgs[len(capturedArgs)-1] != output {
		t.Fatalf("expected output path as final arg, got %v", capturedArgs)
	}
}

func TestConcatListOrderPreserved(t *testing.T) {
	var listContents string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		for i, arg := range args {
			if arg == "-i" && i+1 < len(args) {
				data, err := os.ReadFile(args[i+1])
				if err == nil {
					listContents = string(data)
				}
			}
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	tempDir := t.TempDir()
	clips := []string{
		filepath.Join(tempDir, "scene_01.mp4"),
		filepath.Join(tempDir, "scene_02.mp4"),
		filepath.Join(tempDir, "scene_03.mp4"),
	}
	cli := NewCLI()
	if err := cli.Concat(context.Background(), clips, filepath.Join(tempDir, "final.mp4"), ConcatOptions{}); err != nil {
		t.Fatalf("Concat returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(listContents), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 list entries, got %d: %q", len(lines), listContents)
	}
	for i, line := range lines {
		if !strings.Contains(line, fmt.Sprintf("scene_%02d.mp4", i+1)) {
			t.Fatalf("expected entry %d to reference scene_%02d, got %q", i, i+1, line)
		}
	}
}

func TestDurationParsesProbeOutput(t *testing.T) {
	setHelperCommand(t, "duration", nil)

	cli := NewCLI()
	duration, err := cli.Duration(context.Background(), "/tmp/final.mp4")
	if err != nil {
		t.Fatalf("Duration returned error: %v", err)
	}
	if duration != 125*time.Second+500*time.Millisecond {
		t.Fatalf("unexpected duration: %s", duration)
	}
}

func TestConcatSurfacesFailure(t *testing.T) {
	setHelperCommand(t, "fail", nil)

	tempDir := t.TempDir()
	cli := NewCLI()
	err := cli.Concat(context.Background(), []string{filepath.Join(tempDir, "a.mp4")}, filepath.Join(tempDir, "out.mp4"), ConcatOptions{})
	if err == nil {
		t.Fatal("expected concat failure to surface")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "success":
		os.Exit(0)
	case "duration":
		fmt.Println("125.500000")
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "Invalid data found when processing input")
		os.Exit(1)
	}
	os.Exit(2)
}
