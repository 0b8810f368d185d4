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

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	InboxDir string `toml:"inbox_dir"`
	APIBind  string `toml:"api_bind"`
}

// Storage contains configuration for the cloud storage backend.
type Storage struct {
	BaseURL        string `toml:"base_url"`
	Folder         string `toml:"folder"`
	TokenPath      string `toml:"token_path"`
	ProbeURL       string `toml:"probe_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Transcription contains configuration for the speech-to-text backend.
type Transcription struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Workflow contains configuration for scheduler timing and retry behavior.
type Workflow struct {
	Workers            int `toml:"workers"`
	TaskPollInterval   int `toml:"task_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	RetryBackoffBase   int `toml:"retry_backoff_base"`
	RetryBackoffCap    int `toml:"retry_backoff_cap"`
	InboxPollInterval  int `toml:"inbox_poll_interval"`
	ConnectivityTTL    int `toml:"connectivity_ttl"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Captures       bool   `toml:"captures"`
	Uploads        bool   `toml:"uploads"`
	Transcripts    bool   `toml:"transcripts"`
	Errors         bool   `toml:"errors"`
}

// Recorder contains configuration for the external capture device.
type Recorder struct {
	// DeviceGlob matches udev DEVNAME values announced when the recorder
	// attaches (e.g. "/dev/sd*"). Empty disables the device monitor.
	DeviceGlob string   `toml:"device_glob"`
	Extensions []string `toml:"extensions"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for capnote.
//
// Configuration sections by subsystem:
//   - Paths: data/log/inbox directories and API bind address
//   - Storage: cloud storage endpoint and credentials
//   - Transcription: speech-to-text endpoint
//   - Recorder: capture device detection and accepted file extensions
//   - Workflow: scheduler workers, polling, and retry backoff
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Transcription Transcription `toml:"transcription"`
	Recorder      Recorder      `toml:"recorder"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/capnote/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
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

	projectPath, err := filepath.Abs("capnote.toml")
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
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.InboxDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RecordingsDir returns the directory where captured audio files live after
// the inbox monitor admits them.
func (c *Config) RecordingsDir() string {
	return filepath.Join(c.Paths.DataDir, "recordings")
}

// DatabasePath returns the SQLite database location shared by the record
// store and the task scheduler.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "capnote.db")
}

// AcceptsExtension reports whether a file extension names a supported
// recording format.
func (c *Config) AcceptsExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimSpace(ext))
	for _, candidate := range c.Recorder.Extensions {
		if strings.EqualFold(strings.TrimSpace(candidate), ext) {
			return true
		}
	}
	return false
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
