package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-chapter progress and queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				status, err := d.Status.Handle(ctx)
				if err != nil {
					return err
				}

				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"#", "Chapter", "Status", "Units", "Degraded"})
				for _, ch := range status.Chapters {
					t.AppendRow(table.Row{ch.Ordinal, ch.Title, ch.Status, ch.Units, ch.Degraded})
				}
				t.Render()

				fmt.Printf("\nEntities: %d (%d confirmed)   Pending review: %d\n",
					status.Entities, status.Confirmed, status.PendingItems)
				if status.PendingItems > 0 {
					fmt.Println("Run 'narravid validate' to unblock the pipeline.")
				}
				return nil
			})
		},
	}
}
