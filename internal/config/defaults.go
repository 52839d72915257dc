package config

const (
	defaultDataDir            = "~/.local/share/clipforge/data"
	defaultStagingDir         = "~/.local/share/clipforge/staging"
	defaultLogDir             = "~/.local/share/clipforge/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultMaxConcurrency     = 5
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 300
	defaultJobTimeout         = 1800
	defaultShortJobTimeout    = 600
	defaultPollInterval       = 5
	defaultRetryAttempts      = 3
	defaultUploadTimeout      = 300
	defaultClipDurationSec    = 10
	defaultAspectRatio        = "9:16"
	defaultMotionStrength     = 5
	defaultLLMBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel           = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds  = 60
	defaultBlackMinDuration   = 0.2
	defaultBlackPixelRatio    = 0.98
	defaultNtfyTimeout        = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Workflow: Workflow{
			MaxConcurrency:     defaultMaxConcurrency,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		MediaGen: MediaGen{
			JobTimeout:     defaultJobTimeout,
			PollInterval:   defaultPollInterval,
			RetryAttempts:  defaultRetryAttempts,
			DurationSec:    defaultClipDurationSec,
			AspectRatio:    defaultAspectRatio,
			MotionStrength: defaultMotionStrength,
		},
		Voice: Voice{
			JobTimeout:    defaultShortJobTimeout,
			PollInterval:  defaultPollInterval,
			RetryAttempts: defaultRetryAttempts,
		},
		LipSync: LipSync{
			JobTimeout:    defaultJobTimeout,
			PollInterval:  defaultPollInterval,
			RetryAttempts: defaultRetryAttempts,
		},
		Storage: Storage{
			FolderPrefix:  "clipforge",
			RetryAttempts: defaultRetryAttempts,
			UploadTimeout: defaultUploadTimeout,
		},
		Assembly: Assembly{
			BlackMinDuration: defaultBlackMinDuration,
			BlackPixelRatio:  defaultBlackPixelRatio,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			AutoApprove:    true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Production:     true,
			Queue:          true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
