package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var filterStatuses []string

	cmd := &cobra.Command{
		Use:   "status [content-id]",
		Short: "Show content lifecycle status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store, queue *taskqueue.Queue) error {
				if len(args) == 1 {
					return showContent(cmd, st, args[0])
				}
				return showOverview(cmd, st, filterStatuses)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&filterStatuses, "status", "s", nil, "Filter by content status (repeatable)")
	return cmd
}

func showOverview(cmd *cobra.Command, st *store.Store, filterStatuses []string) error {
	out := cmd.OutOrStdout()

	health, err := st.Health(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Total: %d  Planned: %d  Producing: %d  Ready: %d  Errored: %d\n\n",
		health.Total, health.Planned, health.Producing, health.Ready, health.Errored)

	statuses := make([]store.ContentStatus, 0, len(filterStatuses))
	for _, status := range filterStatuses {
		statuses = append(statuses, store.ContentStatus(status))
	}
	items, err := st.ListContent(cmd.Context(), statuses...)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "No content items")
		return nil
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ContentID,
			statusLabel(string(item.Status)),
			strconv.Itoa(len(item.Sections)),
			item.PlannedPostDate,
			formatDurationSeconds(item.ProcessingTimeSec),
			truncate(item.ErrorMessage, 48),
		})
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"Content", "Status", "Sections", "Post Date", "Produced In", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft}))
	return nil
}

func showContent(cmd *cobra.Command, st *store.Store, contentID string) error {
	out := cmd.OutOrStdout()

	content, err := st.GetContent(cmd.Context(), contentID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Content:   %s\n", content.ContentID)
	fmt.Fprintf(out, "Status:    %s\n", statusLabel(string(content.Status)))
	fmt.Fprintf(out, "Format:    %s\n", content.ContentFormat)
	fmt.Fprintf(out, "Language:  %s\n", content.ScriptLanguage)
	fmt.Fprintf(out, "Post date: %s\n", content.PlannedPostDate)
	if content.VideoArtifactRef != "" {
		fmt.Fprintf(out, "Video:     %s\n", content.VideoArtifactRef)
	}
	if content.DriveFolderRef != "" {
		fmt.Fprintf(out, "Folder:    %s\n", content.DriveFolderRef)
	}
	if content.ProcessingTimeSec > 0 {
		fmt.Fprintf(out, "Produced:  %s\n", formatDurationSeconds(content.ProcessingTimeSec))
	}
	if content.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", content.ErrorMessage)
	}

	if len(content.Sections) > 0 {
		rows := make([][]string, 0, len(content.Sections))
		for _, section := range content.Sections {
			rows = append(rows, []string{
				strconv.Itoa(section.Index),
				section.ComponentRef,
				truncate(section.Script, 64),
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(out,
			[]string{"Section", "Component", "Script"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft}))
	}

	publications, err := st.PublicationsForContent(cmd.Context(), content.ContentID)
	if err != nil {
		return err
	}
	if len(publications) > 0 {
		rows := make([][]string, 0, len(publications))
		for _, pub := range publications {
			rows = append(rows, []string{
				strconv.FormatInt(pub.ID, 10),
				pub.Platform,
				pub.AccountID,
				statusLabel(string(pub.Status)),
				pub.PlatformPostID,
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(out,
			[]string{"Publication", "Platform", "Account", "Status", "Post ID"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}))
	}
	return nil
}
