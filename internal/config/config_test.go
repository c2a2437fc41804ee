package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gridlock/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Video.SceneCount != 24 {
		t.Fatalf("default scene count = %d, want 24", cfg.Video.SceneCount)
	}
	if cfg.Synth.Quality != "standard" {
		t.Fatalf("default quality = %q", cfg.Synth.Quality)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[paths]
data_dir = "~/gridlock-data"

[synth]
quality = "HIGH"
space_id = "acme/synth"

[video]
scene_count = 12
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("exists=%v resolved=%s", exists, resolved)
	}
	if strings.HasPrefix(cfg.Paths.DataDir, "~") {
		t.Fatalf("data_dir not expanded: %s", cfg.Paths.DataDir)
	}
	if cfg.Synth.Quality != "high" {
		t.Fatalf("quality not lowered: %q", cfg.Synth.Quality)
	}
	if cfg.Video.SceneCount != 12 {
		t.Fatalf("scene count = %d", cfg.Video.SceneCount)
	}
	// Sections absent from the file keep defaults.
	if cfg.Workflow.SceneMaxRetries != 3 {
		t.Fatalf("scene retries = %d", cfg.Workflow.SceneMaxRetries)
	}
}

func TestValidateRejectsBadQuality(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Normalize(); err != nil {
		t.Fatal(err)
	}
	cfg.Synth.Quality = "cinematic"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "synth.quality") {
		t.Fatalf("expected quality error, got %v", err)
	}
}

func TestValidateRejectsBadPrivacy(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Normalize(); err != nil {
		t.Fatal(err)
	}
	cfg.YouTube.PrivacyStatus = "secret"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected privacy error")
	}
}

func TestEnvOverlayFillsSecrets(t *testing.T) {
	t.Setenv("GRIDLOCK_SCRIPT_API_KEY", "sk-test-123")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Script.APIKey != "sk-test-123" {
		t.Fatalf("script api key = %q", cfg.Script.APIKey)
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error when sample already exists")
	}
}
