package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"folio/internal/cascade"
	"folio/internal/config"
	"folio/internal/library"
	"folio/internal/logging"
	"folio/internal/services/citelink"
	"folio/internal/services/contentfetch"
	"folio/internal/services/extract"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the library store for the duration of one command.
func (c *commandContext) withStore(fn func(*config.Config, *library.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := library.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

// newOrchestrator wires the cascade against the configured collaborators.
func (c *commandContext) newOrchestrator(cfg *config.Config, store *library.Store, logger *slog.Logger) *cascade.Orchestrator {
	linker := citelink.NewClient(citelink.Config{
		BaseURL:        cfg.CiteLink.BaseURL,
		TimeoutSeconds: cfg.CiteLink.TimeoutSeconds,
	})
	fetcher := contentfetch.NewClient(contentfetch.Config{
		BaseURL:        cfg.ContentFetch.BaseURL,
		TimeoutSeconds: cfg.ContentFetch.TimeoutSeconds,
	})
	extractor := extract.NewClient(extract.Config{
		APIKey:         cfg.Extract.APIKey,
		BaseURL:        cfg.Extract.BaseURL,
		Model:          cfg.Extract.Model,
		TimeoutSeconds: cfg.Extract.TimeoutSeconds,
	})
	return cascade.NewOrchestrator(store, linker, fetcher, extractor, logger,
		cascade.WithMaxStageAttempts(cfg.Workflow.MaxStageAttempts))
}

func (c *commandContext) newLogger(cfg *config.Config) *slog.Logger {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func parseItemID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", arg)
	}
	return id, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
