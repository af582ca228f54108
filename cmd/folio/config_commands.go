package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage the configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a commented sample configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample config to %s\n", path)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "data_dir:              %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "log_dir:               %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "log_level:             %s\n", cfg.Logging.Level)
			fmt.Fprintf(out, "log_format:            %s\n", cfg.Logging.Format)
			fmt.Fprintf(out, "concurrency:           %d\n", cfg.Workflow.Concurrency)
			fmt.Fprintf(out, "max_stage_attempts:    %d\n", cfg.Workflow.MaxStageAttempts)
			fmt.Fprintf(out, "citelink_url:          %s\n", orDash(cfg.CiteLink.BaseURL))
			fmt.Fprintf(out, "contentfetch_url:      %s\n", orDash(cfg.ContentFetch.BaseURL))
			fmt.Fprintf(out, "extract_model:         %s\n", cfg.Extract.Model)
			fmt.Fprintf(out, "extract_api_key:       %s\n", maskSecret(cfg.Extract.APIKey))
			return nil
		},
	})

	return configCmd
}

func maskSecret(value string) string {
	if value == "" {
		return "-"
	}
	if len(value) <= 4 {
		return "****"
	}
	return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
}
