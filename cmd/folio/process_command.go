package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/config"
	"folio/internal/library"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <id>",
		Short: "Run the acquisition cascade for one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				logger := ctx.newLogger(cfg)
				orchestrator := ctx.newOrchestrator(cfg, store, logger)
				defer orchestrator.WaitEnrichment()

				result, err := orchestrator.Process(cmd.Context(), id)
				if err != nil {
					return err
				}
				if result.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "Item %d is already being processed elsewhere\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d finished as %s\n", id, result.FinalStatus)
				if result.ErrorMessage != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", result.ErrorMessage)
				}
				return nil
			})
		},
	}
}
