package testsupport

import (
	"path/filepath"
	"testing"

	"gridlock/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Script.APIKey = "test"
	cfg.Image.APIKey = "test"
	cfg.Synth.SpaceID = "test/ovi-space"
	cfg.Synth.Token = "test"
	cfg.Storage.Endpoint = "127.0.0.1:0"
	cfg.Storage.AccessKey = "test"
	cfg.Storage.SecretKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithSceneCount overrides the scenes-per-episode setting on the test config.
func WithSceneCount(count int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Video.SceneCount = count
	}
}

// WithSceneMaxRetries overrides the per-scene retry ceiling on the test config.
func WithSceneMaxRetries(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.SceneMaxRetries = limit
	}
}
