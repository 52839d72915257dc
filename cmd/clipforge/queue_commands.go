package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the task queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueReclaimCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store, queue *taskqueue.Queue) error {
				stats, err := queue.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				statuses := make([]string, 0, len(stats))
				for status := range stats {
					statuses = append(statuses, string(status))
				}
				sort.Strings(statuses)

				rows := make([][]string, 0, len(statuses))
				for _, status := range statuses {
					rows = append(rows, []string{
						statusLabel(status),
						strconv.Itoa(stats[taskqueue.Status(status)]),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"Status", "Count"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store, queue *taskqueue.Queue) error {
				statuses := make([]taskqueue.Status, 0, len(listStatuses))
				for _, status := range listStatuses {
					statuses = append(statuses, taskqueue.Status(status))
				}

				tasks, err := queue.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					rows = append(rows, []string{
						strconv.FormatInt(task.ID, 10),
						string(task.Type),
						statusLabel(string(task.Status)),
						strconv.Itoa(task.Priority),
						formatTimestamp(task.CreatedAt),
						truncate(task.ErrorMessage, 48),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Type", "Status", "Priority", "Created", "Error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by task status (repeatable)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [taskID...]",
		Short: "Re-queue failed tasks",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid task id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withStore(func(st *store.Store, queue *taskqueue.Queue) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					updated, err := queue.RetryFailed(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Retried %s\n", formatCount("failed task", updated))
					return nil
				}

				for _, id := range ids {
					task, err := queue.Get(cmd.Context(), id)
					if err != nil {
						return err
					}
					if task == nil {
						fmt.Fprintf(out, "Task %d not found\n", id)
						continue
					}
					if task.Status != taskqueue.StatusFailed {
						fmt.Fprintf(out, "Task %d is not in failed state\n", id)
						continue
					}
					if _, err := queue.RetryFailed(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(out, "Task %d reset for retry\n", id)
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove terminal tasks from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted == clearFailed {
				return errors.New("specify exactly one of --completed or --failed")
			}
			return ctx.withStore(func(st *store.Store, queue *taskqueue.Queue) error {
				out := cmd.OutOrStdout()
				if clearCompleted {
					removed, err := queue.ClearCompleted(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %s\n", formatCount("completed task", removed))
					return nil
				}
				removed, err := queue.ClearFailed(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %s\n", formatCount("failed task", removed))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove completed tasks")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed tasks")
	return cmd
}

func newQueueReclaimCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim-stale",
		Short: "Return expired in-flight claims to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store, queue *taskqueue.Queue) error {
				cutoff := time.Now().Add(-heartbeatTimeout(cfg))
				reclaimed, err := queue.ReclaimStale(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %s\n", formatCount("stale task", reclaimed))
				return nil
			})
		},
	}
}

func heartbeatTimeout(cfg *config.Config) time.Duration {
	timeout := time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return timeout
}
