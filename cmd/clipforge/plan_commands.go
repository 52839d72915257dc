package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipforge/internal/logging"
	"clipforge/internal/planner"
	"clipforge/internal/services/llm"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Review and approve content plans",
	}

	planCmd.AddCommand(newPlanListCommand(ctx))
	planCmd.AddCommand(newPlanApproveCommand(ctx))
	planCmd.AddCommand(newPlanRejectCommand(ctx))
	planCmd.AddCommand(newPlanRunCommand(ctx))

	return planCmd
}

func (c *commandContext) withPlanner(fn func(p *planner.Planner) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	return c.withStore(func(st *store.Store, queue *taskqueue.Queue) error {
		return fn(planner.New(st, queue, llm.NewClient(cfg), logger))
	})
}

func newPlanListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List content awaiting approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store, queue *taskqueue.Queue) error {
				items, err := st.ListContent(cmd.Context(), store.ContentPendingApproval)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No content awaiting approval")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ContentID,
						item.ContentFormat,
						strconv.Itoa(len(item.Sections)),
						item.PlannedPostDate,
						formatTimestamp(item.CreatedAt),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"Content", "Format", "Sections", "Post Date", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
}

func newPlanApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <content-id>",
		Short: "Approve a plan and queue it for production",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPlanner(func(p *planner.Planner) error {
				if err := p.Approve(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved %s for production\n", args[0])
				return nil
			})
		},
	}
}

func newPlanRejectCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <content-id>",
		Short: "Reject a plan and cancel the content item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPlanner(func(p *planner.Planner) error {
				if err := p.Reject(cmd.Context(), args[0], reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Reason recorded with the rejection")
	return cmd
}

func newPlanRunCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Review pending plans with the configured model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPlanner(func(p *planner.Planner) error {
				approved, err := p.RunOnce(cmd.Context(), limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved %d plan(s)\n", approved)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum plans to review")
	return cmd
}
