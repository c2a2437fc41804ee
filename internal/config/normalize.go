package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Normalize expands user-relative paths and fills zero values with defaults.
func (c *Config) Normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(valueOr(c.Paths.DataDir, defaultDataDir)); err != nil {
		return err
	}
	if c.Paths.WorkDir, err = expandPath(valueOr(c.Paths.WorkDir, defaultWorkDir)); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(valueOr(c.Paths.LogDir, defaultLogDir)); err != nil {
		return err
	}
	if c.YouTube.CredentialsFile, err = expandPath(valueOr(c.YouTube.CredentialsFile, defaultYouTubeCredentials)); err != nil {
		return err
	}
	if c.YouTube.TokenFile, err = expandPath(valueOr(c.YouTube.TokenFile, defaultYouTubeToken)); err != nil {
		return err
	}

	c.Logging.Level = strings.ToLower(valueOr(c.Logging.Level, defaultLogLevel))
	c.Logging.Format = strings.ToLower(valueOr(c.Logging.Format, defaultLogFormat))

	c.Script.BaseURL = strings.TrimRight(valueOr(c.Script.BaseURL, defaultScriptBaseURL), "/")
	c.Image.BaseURL = strings.TrimRight(valueOr(c.Image.BaseURL, defaultImageBaseURL), "/")
	c.Synth.APIBaseURL = strings.TrimRight(valueOr(c.Synth.APIBaseURL, defaultSynthAPIBaseURL), "/")
	c.Synth.EndpointURL = strings.TrimRight(strings.TrimSpace(c.Synth.EndpointURL), "/")
	c.Synth.Quality = strings.ToLower(valueOr(c.Synth.Quality, defaultSynthQuality))

	if c.Script.MaxTokens <= 0 {
		c.Script.MaxTokens = defaultScriptMaxTokens
	}
	if c.Script.TimeoutSeconds <= 0 {
		c.Script.TimeoutSeconds = defaultScriptTimeoutSec
	}
	if c.Image.TimeoutSeconds <= 0 {
		c.Image.TimeoutSeconds = defaultImageTimeoutSec
	}
	if c.Image.StyleReferenceCount < 0 {
		c.Image.StyleReferenceCount = 0
	}
	if c.Synth.StartupTimeoutSeconds <= 0 {
		c.Synth.StartupTimeoutSeconds = defaultSynthStartupSec
	}
	if c.Synth.PollIntervalSeconds <= 0 {
		c.Synth.PollIntervalSeconds = defaultSynthPollSec
	}
	if c.Synth.MaxAttempts <= 0 {
		c.Synth.MaxAttempts = defaultSynthMaxAttempts
	}
	if c.Synth.GenerateTimeoutSeconds <= 0 {
		c.Synth.GenerateTimeoutSeconds = defaultSynthGenerateSec
	}
	if c.Storage.RetentionRaces <= 0 {
		c.Storage.RetentionRaces = defaultRetentionRaces
	}
	if c.Video.SceneCount <= 0 {
		c.Video.SceneCount = defaultSceneCount
	}
	if c.Video.SceneDurationSeconds <= 0 {
		c.Video.SceneDurationSeconds = defaultSceneDurationSec
	}
	if c.Video.StitchTimeoutSeconds <= 0 {
		c.Video.StitchTimeoutSeconds = defaultStitchTimeoutSec
	}
	if c.Workflow.PollInterval <= 0 {
		c.Workflow.PollInterval = defaultPollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.MaxConcurrent <= 0 {
		c.Workflow.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Workflow.SceneMaxRetries <= 0 {
		c.Workflow.SceneMaxRetries = defaultSceneMaxRetries
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
	return nil
}

func valueOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return abs, nil
}
