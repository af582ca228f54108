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
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Concurrency < 1 {
		return errors.New("workflow.concurrency must be at least 1")
	}
	if c.Workflow.MaxStageAttempts < 1 {
		return errors.New("workflow.max_stage_attempts must be at least 1")
	}
	if c.Workflow.ProgressPollInterval < 0 {
		return errors.New("workflow.progress_poll_interval_ms must not be negative")
	}
	return nil
}

func (c *Config) validateServices() error {
	if c.CiteLink.TimeoutSeconds < 0 || c.ContentFetch.TimeoutSeconds < 0 || c.Extract.TimeoutSeconds < 0 {
		return errors.New("service timeouts must not be negative")
	}
	return nil
}
