package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/config"
	"folio/internal/library"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset an item to not_started for a fresh cascade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				if err := store.ResetToNotStarted(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d reset\n", id)
				return nil
			})
		},
	}
}

func newIgnoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ignore <id>",
		Short: "Exclude an item from all automatic processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				item, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("item %d not found", id)
				}
				if err := store.Transition(cmd.Context(), id, item.Status, library.StatusIgnored, nil); err != nil {
					return err
				}
				if err := store.SetUserIntent(cmd.Context(), id, library.IntentIgnore); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d ignored\n", id)
				return nil
			})
		},
	}
}

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive an item without acquiring metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				item, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("item %d not found", id)
				}
				if err := store.Transition(cmd.Context(), id, item.Status, library.StatusArchived, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d archived\n", id)
				return nil
			})
		},
	}
}

func newManualStoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "manual-store <id>",
		Short: "Record that an exhausted item's citation was created by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				cleared := ""
				err := store.Transition(cmd.Context(), id, library.StatusExhausted, library.StatusStoredCustom, &library.Patch{
					ErrorMessage: &cleared,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d marked stored_custom\n", id)
				return nil
			})
		},
	}
}

func newIntentCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "intent <id> <auto|ignore|priority|manual_only|archive>",
		Short: "Set the owner policy flag for an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			intent, ok := library.ParseIntent(args[1])
			if !ok {
				return fmt.Errorf("unknown intent %q", args[1])
			}
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				if err := store.SetUserIntent(cmd.Context(), id, intent); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d intent set to %s\n", id, intent)
				return nil
			})
		},
	}
}
