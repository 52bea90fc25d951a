package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the project state with an exported document",
		Long:  "Atomically replaces the whole project state. On any error the previous state is left intact.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				snap, err := d.Snapshot.Import(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d chapters, %d entities, %d queue items from %s\n",
					len(snap.Chapters), len(snap.Entities), len(snap.Pending), args[0])
				return nil
			})
		},
	}
}
