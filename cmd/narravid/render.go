package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/narravid/narravid/internal/infrastructure/config"
)

func newRenderCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the final project video",
		Long:  "Concatenates every composed chapter's clips in order and muxes the full subtitle track. All chapters must be composed first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				outPath := out
				if outPath == "" {
					outPath = filepath.Join(config.OutputDir(d.BasePath), "project.mp4")
				}
				rendered, err := d.Render.Handle(ctx, outPath)
				if err != nil {
					return err
				}
				fmt.Printf("Rendered %s\n", rendered)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output video path (default output/project.mp4)")
	return cmd
}
