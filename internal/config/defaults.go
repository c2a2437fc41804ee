package config

const (
	defaultDataDir = "~/.local/share/gridlock"
	defaultWorkDir = "~/.local/share/gridlock/work"
	defaultLogDir  = "~/.local/share/gridlock/logs"

	defaultLogLevel  = "info"
	defaultLogFormat = "console"

	defaultScriptBaseURL        = "https://api.anthropic.com"
	defaultScriptModel          = "claude-3-haiku-20240307"
	defaultScriptMaxTokens      = 4096
	defaultScriptTemperature    = 0.8
	defaultScriptInputCostPer1K = 0.00025
	defaultScriptOutputCost     = 0.00125
	defaultScriptTimeoutSec     = 120

	defaultImageBaseURL    = "https://generativelanguage.googleapis.com"
	defaultImageModel      = "imagen-4.0-generate-001"
	defaultImageResolution = "1024x1536"
	defaultStyleRefCount   = 4
	defaultImageTimeoutSec = 120

	defaultSynthAPIBaseURL   = "https://huggingface.co"
	defaultSynthQuality      = "standard"
	defaultSynthStartupSec   = 300
	defaultSynthPollSec      = 10
	defaultSynthMaxAttempts  = 3
	defaultSynthGenerateSec  = 300
	defaultBucketCharacters  = "gl-characters"
	defaultBucketSceneImages = "gl-scene-images"
	defaultBucketVideoClips  = "gl-video-clips"
	defaultBucketFinalVideos = "gl-final-videos"
	defaultRetentionRaces    = 3

	defaultYouTubeCredentials = "~/.config/gridlock/youtube/client_secret.json"
	defaultYouTubeToken       = "~/.config/gridlock/youtube/token.json"
	defaultYouTubePrivacy     = "public"
	defaultYouTubeCategory    = "17" // Sports

	defaultSceneCount       = 24
	defaultSceneDurationSec = 5
	defaultVideoCodec       = "libx264"
	defaultAudioCodec       = "aac"
	defaultVideoCRF         = 23
	defaultStitchTimeoutSec = 300

	defaultPollInterval       = 15
	defaultErrorRetryInterval = 30
	defaultMaxConcurrent      = 1
	defaultSceneMaxRetries    = 3

	defaultNtfyRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Script: Script{
			BaseURL:         defaultScriptBaseURL,
			Model:           defaultScriptModel,
			MaxTokens:       defaultScriptMaxTokens,
			Temperature:     defaultScriptTemperature,
			InputCostPer1K:  defaultScriptInputCostPer1K,
			OutputCostPer1K: defaultScriptOutputCost,
			TimeoutSeconds:  defaultScriptTimeoutSec,
		},
		Image: Image{
			BaseURL:             defaultImageBaseURL,
			Model:               defaultImageModel,
			Resolution:          defaultImageResolution,
			StyleReferenceCount: defaultStyleRefCount,
			TimeoutSeconds:      defaultImageTimeoutSec,
		},
		Synth: Synth{
			APIBaseURL:             defaultSynthAPIBaseURL,
			Quality:                defaultSynthQuality,
			StartupTimeoutSeconds:  defaultSynthStartupSec,
			PollIntervalSeconds:    defaultSynthPollSec,
			MaxAttempts:            defaultSynthMaxAttempts,
			GenerateTimeoutSeconds: defaultSynthGenerateSec,
		},
		Storage: Storage{
			UseSSL:            true,
			BucketCharacters:  defaultBucketCharacters,
			BucketSceneImages: defaultBucketSceneImages,
			BucketVideoClips:  defaultBucketVideoClips,
			BucketFinalVideos: defaultBucketFinalVideos,
			RetentionRaces:    defaultRetentionRaces,
		},
		YouTube: YouTube{
			CredentialsFile: defaultYouTubeCredentials,
			TokenFile:       defaultYouTubeToken,
			PrivacyStatus:   defaultYouTubePrivacy,
			CategoryID:      defaultYouTubeCategory,
		},
		Video: Video{
			SceneCount:           defaultSceneCount,
			SceneDurationSeconds: defaultSceneDurationSec,
			Codec:                defaultVideoCodec,
			AudioCodec:           defaultAudioCodec,
			CRF:                  defaultVideoCRF,
			StitchTimeoutSeconds: defaultStitchTimeoutSec,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			MaxConcurrent:      defaultMaxConcurrent,
			SceneMaxRetries:    defaultSceneMaxRetries,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Episodes:       true,
			Errors:         true,
		},
	}
}
