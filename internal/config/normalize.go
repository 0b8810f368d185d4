package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeRecorder()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.BaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.BaseURL), "/")
	c.Storage.Folder = strings.TrimSpace(c.Storage.Folder)
	c.Storage.ProbeURL = strings.TrimSpace(c.Storage.ProbeURL)
	if c.Storage.ProbeURL == "" {
		c.Storage.ProbeURL = c.Storage.BaseURL
	}
	var err error
	if c.Storage.TokenPath, err = expandPath(c.Storage.TokenPath); err != nil {
		return fmt.Errorf("storage.token_path: %w", err)
	}
	if c.Storage.RequestTimeout <= 0 {
		c.Storage.RequestTimeout = defaultStorageTimeout
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscribeModel
	}
	if c.Transcription.RequestTimeout <= 0 {
		c.Transcription.RequestTimeout = defaultTranscribeTimeout
	}
}

func (c *Config) normalizeRecorder() {
	c.Recorder.DeviceGlob = strings.TrimSpace(c.Recorder.DeviceGlob)
	normalized := make([]string, 0, len(c.Recorder.Extensions))
	for _, ext := range c.Recorder.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	if len(normalized) == 0 {
		normalized = Default().Recorder.Extensions
	}
	c.Recorder.Extensions = normalized
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.TaskPollInterval <= 0 {
		c.Workflow.TaskPollInterval = defaultTaskPollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Workflow.RetryBackoffBase <= 0 {
		c.Workflow.RetryBackoffBase = defaultRetryBackoffBase
	}
	if c.Workflow.RetryBackoffCap <= 0 {
		c.Workflow.RetryBackoffCap = defaultRetryBackoffCap
	}
	if c.Workflow.InboxPollInterval <= 0 {
		c.Workflow.InboxPollInterval = defaultInboxPollInterval
	}
	if c.Workflow.ConnectivityTTL <= 0 {
		c.Workflow.ConnectivityTTL = defaultConnectivityTTL
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
