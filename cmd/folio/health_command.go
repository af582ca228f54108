package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"folio/internal/config"
	"folio/internal/library"
	"folio/internal/services/citelink"
	"folio/internal/services/contentfetch"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the library and the configured services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}

				rows := [][]string{
					{"total", strconv.Itoa(summary.Total)},
					{"not started", strconv.Itoa(summary.NotStarted)},
					{"processing", strconv.Itoa(summary.Processing)},
					{"awaiting human", strconv.Itoa(summary.AwaitingHuman)},
					{"stored", strconv.Itoa(summary.Stored)},
					{"exhausted", strconv.Itoa(summary.Exhausted)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Library", "Items"}, rows, 1))

				checkCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()

				linker := citelink.NewClient(citelink.Config{BaseURL: cfg.CiteLink.BaseURL, TimeoutSeconds: cfg.CiteLink.TimeoutSeconds})
				fetcher := contentfetch.NewClient(contentfetch.Config{BaseURL: cfg.ContentFetch.BaseURL, TimeoutSeconds: cfg.ContentFetch.TimeoutSeconds})

				serviceRows := [][]string{
					{"citelink", healthLabel(linker.HealthCheck(checkCtx))},
					{"contentfetch", healthLabel(fetcher.HealthCheck(checkCtx))},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Service", "Health"}, serviceRows))
				return nil
			})
		},
	}
}

func healthLabel(err error) string {
	if err != nil {
		return "unreachable"
	}
	return "ok"
}
