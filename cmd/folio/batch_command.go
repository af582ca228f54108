package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"folio/internal/batch"
	"folio/internal/config"
	"folio/internal/library"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		concurrency  int
		statusFilter string
		ignoreIntent bool
	)

	cmd := &cobra.Command{
		Use:   "batch [id...]",
		Short: "Run the cascade over many items with bounded concurrency",
		Long: "Processes the given item ids, or every item in the filter status when no ids " +
			"are passed. Only one batch may run against a library at a time.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *library.Store) error {
				// One scheduler per library. The lock lives next to the
				// database so concurrent invocations fail fast instead of
				// double-claiming items.
				lock := flock.New(filepath.Join(cfg.Paths.DataDir, "batch.lock"))
				locked, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire batch lock: %w", err)
				}
				if !locked {
					return fmt.Errorf("another batch is already running against %s", cfg.Paths.DataDir)
				}
				defer lock.Unlock()

				itemIDs, err := resolveBatchItems(cmd, store, args, statusFilter)
				if err != nil {
					return err
				}
				if len(itemIDs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to process")
					return nil
				}

				logger := ctx.newLogger(cfg)
				orchestrator := ctx.newOrchestrator(cfg, store, logger)
				defer orchestrator.WaitEnrichment()
				scheduler := batch.NewScheduler(orchestrator, logger)

				if concurrency <= 0 {
					concurrency = cfg.Workflow.Concurrency
				}
				session, err := scheduler.Start(cmd.Context(), itemIDs, batch.Options{
					Concurrency:       concurrency,
					RespectUserIntent: !ignoreIntent,
				})
				if err != nil {
					return err
				}

				poll := time.Duration(cfg.Workflow.ProgressPollInterval) * time.Millisecond
				if poll <= 0 {
					poll = 500 * time.Millisecond
				}
				ticker := time.NewTicker(poll)
				defer ticker.Stop()
				for {
					select {
					case <-cmd.Context().Done():
						_ = scheduler.Cancel(session.ID())
					case <-ticker.C:
					}
					snap, err := scheduler.Status(session.ID())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "\r%3.0f%% (%d/%d, %d failed, %d skipped)",
						snap.Progress(), len(snap.Completed), snap.Total, len(snap.Failed), len(snap.Skipped))
					if snap.Done() {
						break
					}
				}
				fmt.Fprintln(cmd.OutOrStdout())

				snap, err := scheduler.Wait(cmd.Context(), session.ID())
				if err != nil && cmd.Context().Err() == nil {
					return err
				}
				rows := [][]string{
					{"completed", strconv.Itoa(len(snap.Completed))},
					{"failed", strconv.Itoa(len(snap.Failed))},
					{"skipped", strconv.Itoa(len(snap.Skipped))},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Outcome", "Items"}, rows, 1))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Worker pool size (default from config)")
	cmd.Flags().StringVar(&statusFilter, "status", string(library.StatusNotStarted), "Status to select items from when no ids are given")
	cmd.Flags().BoolVar(&ignoreIntent, "ignore-intent", false, "Count intent-blocked items as failures instead of skipping them")
	return cmd
}

func resolveBatchItems(cmd *cobra.Command, store *library.Store, args []string, statusFilter string) ([]int64, error) {
	if len(args) > 0 {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := parseItemID(arg)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	status, ok := library.ParseStatus(statusFilter)
	if !ok {
		return nil, fmt.Errorf("unknown status %q", statusFilter)
	}
	return store.IDsByStatus(cmd.Context(), status)
}
