package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/config"
	"folio/internal/library"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a bookmarked resource to the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimSpace(args[0])
			parsed, err := url.Parse(raw)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				return fmt.Errorf("invalid url %q", raw)
			}

			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				if existing, err := store.FindByURL(cmd.Context(), raw); err != nil {
					return err
				} else if existing != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Already tracked as item %d (%s)\n", existing.ID, existing.Status)
					return nil
				}
				item, err := store.Add(cmd.Context(), raw, title)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added item %d\n", item.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Optional display title")
	return cmd
}
