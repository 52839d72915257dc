package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
)

func newProduceCommand(ctx *commandContext) *cobra.Command {
	var batchSize int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "produce [content-id...]",
		Short: "Run the production pipeline for content items",
		Long: "Produce runs the full pipeline (generation, synthesis, lip-sync, assembly, " +
			"upload) for the named content items, or for up to --batch planned items. " +
			"Batch mode continues past individual failures and exits non-zero if any item failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && batchSize <= 0 {
				return errors.New("provide at least one content id or --batch N")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			return ctx.withStore(func(st *store.Store, queue *taskqueue.Queue) error {
				targets := append([]string(nil), args...)
				if batchSize > 0 {
					planned, err := st.PollContent(cmd.Context(), store.ContentPlanned, batchSize)
					if err != nil {
						return fmt.Errorf("poll planned content: %w", err)
					}
					for _, content := range planned {
						targets = append(targets, content.ContentID)
					}
				}
				if len(targets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No planned content to produce")
					return nil
				}

				orchestrator := buildOrchestrator(cfg, st, queue, logger, dryRun)
				notifier := notifications.NewService(cfg)

				started := time.Now()
				var failed int
				rows := make([][]string, 0, len(targets))
				for _, contentID := range targets {
					runErr := orchestrator.Produce(cmd.Context(), contentID)
					if runErr != nil {
						failed++
						rows = append(rows, []string{contentID, "failed", truncate(runErr.Error(), 60)})
						continue
					}
					outcome := "ready"
					if dryRun {
						outcome = "dry-run"
					}
					rows = append(rows, []string{contentID, outcome, ""})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"Content", "Outcome", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))

				if batchSize > 0 && !dryRun {
					if err := notifier.NotifyQueueDrained(cmd.Context(), len(targets)-failed, failed, time.Since(started)); err != nil {
						logger.Warn("batch notification failed", logging.Error(err))
					}
				}

				if failed > 0 {
					return fmt.Errorf("%d of %d items failed", failed, len(targets))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch", "b", 0, "Produce up to N planned items")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log intended steps without calling external services")
	return cmd
}
