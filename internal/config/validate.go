package config

import (
	"errors"
	"fmt"
	"strings"
)

var validQualities = map[string]struct{}{
	"draft":    {},
	"standard": {},
	"high":     {},
	"ultra":    {},
}

// Validate checks cross-field constraints. Secrets are not required here;
// clients report their own configuration errors when first used so read-only
// CLI commands work without credentials.
func (c *Config) Validate() error {
	var problems []string

	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if _, ok := validQualities[c.Synth.Quality]; !ok {
		problems = append(problems, fmt.Sprintf("synth.quality: must be one of draft, standard, high, ultra (got %q)", c.Synth.Quality))
	}

	if c.Video.SceneCount > 60 {
		problems = append(problems, fmt.Sprintf("video.scene_count: %d exceeds the 60-scene episode ceiling", c.Video.SceneCount))
	}

	switch strings.TrimSpace(c.YouTube.PrivacyStatus) {
	case "public", "private", "unlisted":
	default:
		problems = append(problems, fmt.Sprintf("youtube.privacy_status: must be public, private, or unlisted (got %q)", c.YouTube.PrivacyStatus))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}
