package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Workflow contains scheduler timing and concurrency settings.
type Workflow struct {
	MaxConcurrency     int `toml:"max_concurrency"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// MediaGen contains settings for the image-to-video generation API.
type MediaGen struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	JobTimeout     int    `toml:"job_timeout"`
	PollInterval   int    `toml:"poll_interval"`
	RetryAttempts  int    `toml:"retry_attempts"`
	DurationSec    int    `toml:"duration_sec"`
	AspectRatio    string `toml:"aspect_ratio"`
	MotionStrength int    `toml:"motion_strength"`
}

// Voice contains settings for the text-to-speech API.
type Voice struct {
	BaseURL       string `toml:"base_url"`
	APIKey        string `toml:"api_key"`
	JobTimeout    int    `toml:"job_timeout"`
	PollInterval  int    `toml:"poll_interval"`
	RetryAttempts int    `toml:"retry_attempts"`
	DefaultVoice  string `toml:"default_voice"`
}

// LipSync contains settings for the lip synchronization API.
type LipSync struct {
	BaseURL       string `toml:"base_url"`
	APIKey        string `toml:"api_key"`
	JobTimeout    int    `toml:"job_timeout"`
	PollInterval  int    `toml:"poll_interval"`
	RetryAttempts int    `toml:"retry_attempts"`
}

// Storage contains settings for durable artifact storage.
type Storage struct {
	BaseURL       string `toml:"base_url"`
	APIKey        string `toml:"api_key"`
	FolderPrefix  string `toml:"folder_prefix"`
	RetryAttempts int    `toml:"retry_attempts"`
	UploadTimeout int    `toml:"upload_timeout"`
}

// Assembly contains settings for local ffmpeg-based clip assembly.
type Assembly struct {
	FFmpegBinary     string  `toml:"ffmpeg_binary"`
	FFprobeBinary    string  `toml:"ffprobe_binary"`
	BlackMinDuration float64 `toml:"black_min_duration"`
	BlackPixelRatio  float64 `toml:"black_pixel_ratio"`
}

// LLM contains connection settings for planning/approval decisions.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	AutoApprove    bool   `toml:"auto_approve"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Production     bool   `toml:"production"`
	Queue          bool   `toml:"queue"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipforge.
//
// Configuration sections by subsystem:
//   - Paths: data, staging, and log directories
//   - Workflow: scheduler polling, concurrency ceiling, heartbeats
//   - MediaGen / Voice / LipSync: external generation API connections
//   - Storage: durable artifact storage connection
//   - Assembly: local ffmpeg/ffprobe invocation settings
//   - LLM: shared model connection for planning approval
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	MediaGen      MediaGen      `toml:"mediagen"`
	Voice         Voice         `toml:"voice"`
	LipSync       LipSync       `toml:"lipsync"`
	Storage       Storage       `toml:"storage"`
	Assembly      Assembly      `toml:"assembly"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used by the assembly engine.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Assembly.FFmpegBinary); v != "" {
		return v
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for duration checks.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Assembly.FFprobeBinary); v != "" {
		return v
	}
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
