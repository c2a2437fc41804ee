package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Script contains configuration for the script-generation LLM.
type Script struct {
	APIKey          string  `toml:"api_key"`
	BaseURL         string  `toml:"base_url"`
	Model           string  `toml:"model"`
	MaxTokens       int     `toml:"max_tokens"`
	Temperature     float64 `toml:"temperature"`
	InputCostPer1K  float64 `toml:"input_cost_per_1k"`
	OutputCostPer1K float64 `toml:"output_cost_per_1k"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
}

// Image contains configuration for the scene-image generator.
type Image struct {
	APIKey              string `toml:"api_key"`
	BaseURL             string `toml:"base_url"`
	Model               string `toml:"model"`
	Resolution          string `toml:"resolution"`
	StyleReferenceCount int    `toml:"style_reference_count"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// Synth contains configuration for the video-synthesis backend and its
// pay-per-use lifecycle.
type Synth struct {
	SpaceID                string `toml:"space_id"`
	Token                  string `toml:"token"`
	APIBaseURL             string `toml:"api_base_url"`
	EndpointURL            string `toml:"endpoint_url"`
	Quality                string `toml:"quality"`
	StartupTimeoutSeconds  int    `toml:"startup_timeout_seconds"`
	PollIntervalSeconds    int    `toml:"poll_interval_seconds"`
	MaxAttempts            int    `toml:"max_attempts"`
	GenerateTimeoutSeconds int    `toml:"generate_timeout_seconds"`
}

// Storage contains object-storage configuration.
type Storage struct {
	Endpoint          string `toml:"endpoint"`
	AccessKey         string `toml:"access_key"`
	SecretKey         string `toml:"secret_key"`
	UseSSL            bool   `toml:"use_ssl"`
	BucketCharacters  string `toml:"bucket_characters"`
	BucketSceneImages string `toml:"bucket_scene_images"`
	BucketVideoClips  string `toml:"bucket_video_clips"`
	BucketFinalVideos string `toml:"bucket_final_videos"`
	RetentionRaces    int    `toml:"retention_races"`
}

// YouTube contains publishing-platform configuration.
type YouTube struct {
	CredentialsFile string `toml:"credentials_file"`
	TokenFile       string `toml:"token_file"`
	PrivacyStatus   string `toml:"privacy_status"`
	CategoryID      string `toml:"category_id"`
	ChannelTag      string `toml:"channel_tag"`
}

// Video contains episode shape and stitching configuration.
type Video struct {
	SceneCount           int    `toml:"scene_count"`
	SceneDurationSeconds int    `toml:"scene_duration_seconds"`
	Codec                string `toml:"codec"`
	AudioCodec           string `toml:"audio_codec"`
	CRF                  int    `toml:"crf"`
	StitchTimeoutSeconds int    `toml:"stitch_timeout_seconds"`
}

// Workflow contains daemon timing and retry configuration.
type Workflow struct {
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	MaxConcurrent      int `toml:"max_concurrent"`
	SceneMaxRetries    int `toml:"scene_max_retries"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Episodes       bool   `toml:"episodes"`
	Errors         bool   `toml:"errors"`
}

// Config is the root configuration document.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Script        Script        `toml:"script"`
	Image         Image         `toml:"image"`
	Synth         Synth         `toml:"synth"`
	Storage       Storage       `toml:"storage"`
	YouTube       YouTube       `toml:"youtube"`
	Video         Video         `toml:"video"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gridlock/config.toml")
}

// Load locates, parses, normalizes, and validates a configuration file. The
// boolean reports whether a file was found; defaults are returned otherwise.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, readErr := os.ReadFile(resolvedPath)
		if readErr != nil {
			return nil, "", false, fmt.Errorf("read config %s: %w", resolvedPath, readErr)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	applyEnvOverlay(&cfg)

	if err := cfg.Normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// applyEnvOverlay fills secret fields from the environment so they can stay
// out of the config file. A .env in the working directory is honored when
// present.
func applyEnvOverlay(cfg *Config) {
	_ = godotenv.Load()

	overlay := func(target *string, key string) {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*target = value
		}
	}
	overlay(&cfg.Script.APIKey, "GRIDLOCK_SCRIPT_API_KEY")
	overlay(&cfg.Image.APIKey, "GRIDLOCK_IMAGE_API_KEY")
	overlay(&cfg.Synth.Token, "GRIDLOCK_SYNTH_TOKEN")
	overlay(&cfg.Storage.AccessKey, "GRIDLOCK_STORAGE_ACCESS_KEY")
	overlay(&cfg.Storage.SecretKey, "GRIDLOCK_STORAGE_SECRET_KEY")
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, statErr := os.Stat(expanded); statErr == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// Sample returns the embedded sample configuration text.
func Sample() string {
	return sampleConfig
}

// EnsureDirectories creates the configured data, work, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "gridlock.db")
}

// LockPath returns the daemon instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "gridlockd.lock")
}

func resolveConfigPath(path string) (string, bool, error) {
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		def, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		candidate = def
	} else {
		expanded, err := expandPath(candidate)
		if err != nil {
			return "", false, err
		}
		candidate = expanded
	}

	if _, err := os.Stat(candidate); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, false, nil
		}
		return "", false, fmt.Errorf("stat config %s: %w", candidate, err)
	}
	return candidate, true, nil
}
