package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.Storage.BaseURL) == "" {
		return errors.New("storage.base_url must be set")
	}
	if strings.TrimSpace(c.Storage.TokenPath) == "" {
		return errors.New("storage.token_path must be set")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if strings.TrimSpace(c.Transcription.BaseURL) == "" {
		return errors.New("transcription.base_url must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.task_poll_interval":   c.Workflow.TaskPollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.heartbeat_interval":   c.Workflow.HeartbeatInterval,
		"workflow.heartbeat_timeout":    c.Workflow.HeartbeatTimeout,
		"workflow.retry_backoff_base":   c.Workflow.RetryBackoffBase,
		"workflow.retry_backoff_cap":    c.Workflow.RetryBackoffCap,
		"workflow.inbox_poll_interval":  c.Workflow.InboxPollInterval,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, value)
		}
	}
	return nil
}
