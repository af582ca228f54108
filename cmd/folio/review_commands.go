package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/config"
	"folio/internal/library"
)

func newSelectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "select <id> [identifier]",
		Short: "Pick an identifier for an item awaiting selection",
		Long: "Without an identifier, lists the alternates discovered for the item. With one, " +
			"records the choice and immediately re-runs citation linking.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				if len(args) == 1 {
					return printAlternates(cmd, store, id)
				}

				logger := ctx.newLogger(cfg)
				orchestrator := ctx.newOrchestrator(cfg, store, logger)
				defer orchestrator.WaitEnrichment()

				result, err := orchestrator.ResolveSelection(cmd.Context(), id, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d finished as %s\n", id, result.FinalStatus)
				return nil
			})
		},
	}
}

func printAlternates(cmd *cobra.Command, store *library.Store, id int64) error {
	item, err := store.GetByID(cmd.Context(), id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %d not found", id)
	}
	if item.Status != library.StatusAwaitingSelection {
		return fmt.Errorf("item %d is %s, not awaiting selection", id, item.Status)
	}

	var identifiers []string
	if strings.TrimSpace(item.AltIdentifiersJSON) != "" {
		if err := json.Unmarshal([]byte(item.AltIdentifiersJSON), &identifiers); err != nil {
			return fmt.Errorf("parse alternate identifiers: %w", err)
		}
	}
	if len(identifiers) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No alternate identifiers recorded")
		return nil
	}
	for i, identifier := range identifiers {
		fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s\n", i+1, identifier)
	}
	return nil
}

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Resolve items awaiting metadata review",
	}

	reviewCmd.AddCommand(&cobra.Command{
		Use:   "approve <id>",
		Short: "Accept extracted metadata and store the item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				orchestrator := ctx.newOrchestrator(cfg, store, ctx.newLogger(cfg))
				if err := orchestrator.ApproveReview(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d stored\n", id)
				return nil
			})
		},
	})

	reviewCmd.AddCommand(&cobra.Command{
		Use:   "reject <id>",
		Short: "Discard extracted metadata and mark the item exhausted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				orchestrator := ctx.newOrchestrator(cfg, store, ctx.newLogger(cfg))
				if err := orchestrator.RejectReview(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d marked exhausted\n", id)
				return nil
			})
		},
	})

	return reviewCmd
}
