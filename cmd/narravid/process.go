package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/infrastructure/config"
)

func newProcessCmd() *cobra.Command {
	var through string
	var chapters []string

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Scan chapters and advance them through the pipeline",
		Long: "Fingerprints every chapter file, picks up new and modified chapters, and advances each " +
			"chapter through extraction, scripting, synthesis and composition. Chapters stop at the " +
			"validation boundary while the review queue is non-empty.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var stage entities.ChapterStatus
			if through != "" {
				stage = entities.ChapterStatus(through)
				if !stage.Valid() {
					return fmt.Errorf("unknown stage %q", through)
				}
			}

			return withDeps(cmd.Context(), func(d *Deps) error {
				result, err := d.Process.Handle(cmd.Context(), config.ChaptersDir(d.BasePath), stage, chapters)
				if err != nil {
					return err
				}

				fmt.Printf("Scanned: %d new, %d modified, %d unchanged\n",
					len(result.Scan.New), len(result.Scan.Modified), len(result.Scan.Unchanged))
				for _, outcome := range result.Outcomes {
					switch {
					case outcome.Err != nil:
						fmt.Printf("  %-24s %-12s error: %v\n", outcome.ChapterID, outcome.Status, outcome.Err)
					case outcome.Blocked:
						fmt.Printf("  %-24s %-12s waiting on validation\n", outcome.ChapterID, outcome.Status)
					default:
						fmt.Printf("  %-24s %s\n", outcome.ChapterID, outcome.Status)
					}
				}
				if result.Blocked > 0 {
					fmt.Printf("\n%d chapter(s) blocked. Run 'narravid validate' to review pending entities.\n", result.Blocked)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&through, "through", "", "Stop after this stage (extracted|validated|scripted|synthesized|composed)")
	cmd.Flags().StringSliceVar(&chapters, "chapter", nil, "Restrict to specific chapter IDs")
	return cmd
}
