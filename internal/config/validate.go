package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. It checks values only; the
// existence of the watched root and reconstruction paths is a runtime concern
// handled by the preflight checks.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateReconstruction(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ResultsDir) == "" {
		return errors.New("paths.results_dir must be set")
	}
	if c.Paths.WatchDir == c.Paths.ResultsDir {
		return errors.New("paths.results_dir must differ from paths.watch_dir")
	}
	return nil
}

func (c *Config) validateReconstruction() error {
	if strings.TrimSpace(c.Reconstruction.Executable) == "" {
		return errors.New("reconstruction.executable must be set")
	}
	if c.Reconstruction.Timeout <= 0 {
		return errors.New("reconstruction.timeout must be positive")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.Command == "" {
		return errors.New("analysis.command must be set")
	}
	if c.Analysis.Timeout <= 0 {
		return errors.New("analysis.timeout must be positive")
	}
	if c.Analysis.Threshold < 0 {
		return errors.New("analysis.threshold must be non-negative")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if c.Workflow.MaxRuntime <= 0 {
		return errors.New("workflow.max_runtime must be positive")
	}
	if c.Workflow.SettleDelay < 0 {
		return errors.New("workflow.settle_delay must be non-negative")
	}
	for _, name := range c.Workflow.ExcludedDirs {
		if strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("workflow.excluded_dirs: %q must be a plain directory name", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be non-negative")
	}
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}
