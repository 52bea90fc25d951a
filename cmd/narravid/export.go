package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export the whole project state to a JSON document",
		Long:  "Serializes chapters, the entity registry, the validation queue and the asset manifest into one portable document.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				snap, err := d.Snapshot.Export(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Exported %d chapters, %d entities, %d queue items to %s\n",
					len(snap.Chapters), len(snap.Entities), len(snap.Pending), args[0])
				return nil
			})
		},
	}
}
