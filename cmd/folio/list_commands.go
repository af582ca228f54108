package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"folio/internal/config"
	"folio/internal/library"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List library items",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []library.Status
			for _, raw := range listStatuses {
				status, ok := library.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}

			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Library is empty")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						truncate(displayTitle(item), 48),
						string(item.Status),
						string(item.UserIntent),
						strconv.Itoa(item.AttemptCount),
						item.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				out := renderTable([]string{"ID", "Title", "Status", "Intent", "Attempts", "Updated"}, rows, 0, 4)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show item counts per lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Library is empty")
					return nil
				}

				rows := make([][]string, 0, len(stats))
				for _, status := range library.AllStatuses() {
					count, ok := stats[status]
					if !ok {
						continue
					}
					rows = append(rows, []string{string(status), strconv.Itoa(count)})
				}
				out := renderTable([]string{"Status", "Count"}, rows, 1)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Display one item with its attempt history",
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

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Item %d\n", item.ID)
				fmt.Fprintf(out, "  URL:          %s\n", item.URL)
				if item.Title != "" {
					fmt.Fprintf(out, "  Title:        %s\n", item.Title)
				}
				fmt.Fprintf(out, "  Status:       %s\n", item.Status)
				fmt.Fprintf(out, "  Intent:       %s\n", item.UserIntent)
				fmt.Fprintf(out, "  Attempts:     %d\n", item.AttemptCount)
				fmt.Fprintf(out, "  Identifier:   %s\n", orDash(item.Identifier))
				fmt.Fprintf(out, "  Citation key: %s\n", orDash(item.CitationKey))
				if item.Citation != "" {
					fmt.Fprintf(out, "  Citation:     %s\n", item.Citation)
				}
				if item.QualityScore > 0 {
					fmt.Fprintf(out, "  Quality:      %d\n", item.QualityScore)
				}
				fmt.Fprintf(out, "  Cached:       %s\n", yesNo(item.HasCachedContent))
				if item.NeedsReview {
					fmt.Fprintf(out, "  Review:       %s\n", orDash(item.ReviewReason))
				}
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:        %s\n", item.ErrorMessage)
				}

				attempts, err := store.Attempts(cmd.Context(), item.ID)
				if err != nil {
					return err
				}
				if len(attempts) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(attempts))
				for _, attempt := range attempts {
					outcome := "failed"
					if attempt.Success {
						outcome = "ok"
					} else if attempt.FinishedAt == nil {
						outcome = "running"
					}
					rows = append(rows, []string{
						strconv.FormatInt(attempt.ID, 10),
						string(attempt.Stage),
						outcome,
						orDash(attempt.ErrorCategory),
						truncate(attempt.Error, 60),
						attempt.StartedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable([]string{"#", "Stage", "Outcome", "Category", "Error", "Started"}, rows, 0))
				return nil
			})
		},
	}
}

func displayTitle(item *library.Item) string {
	if strings.TrimSpace(item.Title) != "" {
		return item.Title
	}
	return item.URL
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
